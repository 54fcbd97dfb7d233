package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedGroup(levels int) DecisionConfig {
	cfg := DecisionConfig{
		Kind: RecipeBot,
		Bot:  &BotParams{Field: "open_positions", Comparison: Comparison{Operator: OpEqual, Value: NumberPtr(0)}},
	}
	for i := 0; i < levels; i++ {
		cfg = DecisionConfig{
			Kind:  RecipeGrouped,
			Group: &GroupParams{Operator: LogicAnd, Decisions: []DecisionConfig{cfg}},
		}
	}
	return cfg
}

func TestDecisionConfigUnmarshalFlat(t *testing.T) {
	raw := `{
		"recipe_type": "grouped",
		"logic_operator": "AND",
		"grouped_decisions": [
			{"recipe_type": "stock", "symbol": "SPY", "price_field": "last", "comparison": "above", "value": 440},
			{"recipe_type": "indicator", "symbol": "SPY", "indicator": "RSI", "comparison": "between", "value": 30, "value2": 70},
			{"recipe_type": "general", "condition_type": "day_of_week", "days": ["Monday"]}
		]
	}`

	var cfg DecisionConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	require.NotNil(t, cfg.Group)
	assert.Equal(t, LogicAnd, cfg.Group.Operator)
	require.Len(t, cfg.Group.Decisions, 3)

	stock := cfg.Group.Decisions[0].Stock
	require.NotNil(t, stock)
	assert.Equal(t, OpGreater, stock.Operator)
	assert.Equal(t, Number(440), *stock.Value)

	ind := cfg.Group.Decisions[1].Indicator
	require.NotNil(t, ind)
	assert.Equal(t, "rsi", ind.Indicator)
	assert.Equal(t, 14, ind.Period)
	assert.Equal(t, Number(70), *ind.Value2)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"SPY"}, cfg.Symbols())
}

func TestSymbolsIncludeConditionMarkets(t *testing.T) {
	general := func(condition string) DecisionConfig {
		return DecisionConfig{Kind: RecipeGeneral, General: &GeneralParams{Condition: condition, Comparison: Comparison{Operator: OpEqual, Value: NumberPtr(1)}}}
	}
	cfg := DecisionConfig{Kind: RecipeGrouped, Group: &GroupParams{Operator: LogicOr, Decisions: []DecisionConfig{
		general("vix_level"), general("market_regime"), general("market_time"),
	}}}
	assert.Equal(t, []string{"VIX", "SPY"}, cfg.Symbols())
}

func TestDecisionConfigRoundTripKeepsFieldNames(t *testing.T) {
	cfg := DecisionConfig{
		Kind: RecipePosition,
		Position: &PositionParams{
			Reference:  "current",
			Field:      "days_open",
			Comparison: Comparison{Operator: OpGreaterOrEqual, Value: NumberPtr(5)},
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recipe_type":"position","position_reference":"current","position_field":"days_open","comparison":"greater_than_or_equal","value":5}`, string(data))
}

func TestDecisionConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  DecisionConfig
		err  error
	}{
		{"ten nested groups", nestedGroup(10), nil},
		{"eleven nested groups", nestedGroup(11), ErrMaxDepthExceeded},
		{"unknown kind", DecisionConfig{Kind: "weather"}, ErrUnsupportedRecipeKind},
		{"between without value2", DecisionConfig{
			Kind:  RecipeStock,
			Stock: &StockParams{Symbol: "SPY", PriceField: "last", Comparison: Comparison{Operator: OpBetween, Value: NumberPtr(1)}},
		}, ErrMissingOperand},
		{"unknown operator", DecisionConfig{
			Kind: RecipeBot,
			Bot:  &BotParams{Field: "open_positions", Comparison: Comparison{Operator: "roughly", Value: NumberPtr(1)}},
		}, ErrUnsupportedOperator},
		{"empty group", DecisionConfig{Kind: RecipeGrouped, Group: &GroupParams{Operator: LogicOr}}, ErrInvalidConfig},
		{"mismatched block", DecisionConfig{Kind: RecipeStock, Bot: &BotParams{Field: "x"}}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestValueUnmarshal(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`"Monday"`), &v))
	assert.Equal(t, String("Monday"), v)
	require.NoError(t, json.Unmarshal([]byte(`12.5`), &v))
	assert.Equal(t, Number(12.5), v)
	assert.Error(t, json.Unmarshal([]byte(`true`), &v))
}

func TestAutomationValidate(t *testing.T) {
	def := AutomationDefinition{
		Name:    "spy-scanner",
		BotName: "bot-1",
		Actions: []ActionNode{{
			Type: ActionDecision,
			Decision: &DecisionConfig{
				Kind:  RecipeStock,
				Stock: &StockParams{Symbol: "SPY", PriceField: "last", Comparison: Comparison{Operator: OpGreater, Value: NumberPtr(440)}},
			},
			YesPath: []ActionNode{{Type: ActionOpenPosition, Position: &PositionSpec{Symbol: "SPY", Quantity: 1}}},
		}},
	}
	require.NoError(t, def.Validate())
	assert.Len(t, def.DecisionNodes(), 1)

	def.Actions[0].YesPath[0].Position.Quantity = 0
	assert.ErrorIs(t, def.Validate(), ErrInvalidAutomation)
}
