package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxDecisionDepth bounds grouped decision nesting. A chain of ten nested
// groups is accepted; an eleventh level is rejected.
const MaxDecisionDepth = 10

// RecipeKind selects the evaluator for a decision.
type RecipeKind string

const (
	RecipeStock     RecipeKind = "stock"
	RecipeIndicator RecipeKind = "indicator"
	RecipePosition  RecipeKind = "position"
	RecipeBot       RecipeKind = "bot"
	RecipeGeneral   RecipeKind = "general"
	RecipeGrouped   RecipeKind = "grouped"
)

// LogicOperator combines the children of a grouped decision.
type LogicOperator string

const (
	LogicAnd LogicOperator = "and"
	LogicOr  LogicOperator = "or"
)

// Operator is a relational comparison operator.
type Operator string

const (
	OpEqual          Operator = "equal_to"
	OpNotEqual       Operator = "not_equal_to"
	OpGreater        Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_than_or_equal"
	OpLess           Operator = "less_than"
	OpLessOrEqual    Operator = "less_than_or_equal"
	OpBetween        Operator = "between"
)

// operatorAliases maps legacy operator spellings onto canonical operators.
var operatorAliases = map[string]Operator{
	"above":  OpGreater,
	"below":  OpLess,
	"is":     OpEqual,
	"is_not": OpNotEqual,
}

// NormalizeOperator resolves aliases and case. Unknown names are returned
// unchanged so the evaluator can report them.
func NormalizeOperator(s string) Operator {
	s = strings.ToLower(strings.TrimSpace(s))
	if op, ok := operatorAliases[s]; ok {
		return op
	}
	return Operator(s)
}

// Valid reports whether op is one of the canonical operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpBetween:
		return true
	}
	return false
}

// Comparison is the relational test shared by every leaf recipe.
type Comparison struct {
	Operator Operator
	Value    *Value
	Value2   *Value
}

// StockParams compares a market data field of one symbol.
type StockParams struct {
	Symbol     string
	PriceField string
	Comparison
}

// IndicatorParams compares a technical indicator computed over a symbol's
// price history, or matches its discrete signal.
type IndicatorParams struct {
	Symbol    string
	Indicator string
	Period    int
	Signal    string
	Comparison
}

// PositionParams selects a position by id, or by symbol/strategy filter, and
// compares one of its attributes. Reference "current" picks the most recent
// open position.
type PositionParams struct {
	PositionID string
	Reference  string
	Symbol     string
	Strategy   string
	Field      string
	Comparison
}

// BotParams compares a bot-level counter.
type BotParams struct {
	Field string
	Comparison
}

// GeneralParams evaluates an environment condition such as time of day.
type GeneralParams struct {
	Condition string
	Days      []string
	Comparison
}

// GroupParams composes nested decisions with a logic operator.
type GroupParams struct {
	Operator  LogicOperator
	Decisions []DecisionConfig
}

// DecisionConfig is a tagged union over recipe kinds. Exactly one parameter
// block matching Kind is set. The JSON form is flat and keeps the field names
// used by saved automation documents (recipe_type, symbol, price_field, ...).
type DecisionConfig struct {
	Kind        RecipeKind
	Description string

	Stock     *StockParams
	Indicator *IndicatorParams
	Position  *PositionParams
	Bot       *BotParams
	General   *GeneralParams
	Group     *GroupParams
}

// Leaf returns the comparison of a non-grouped config, or nil.
func (c *DecisionConfig) Leaf() *Comparison {
	switch {
	case c.Stock != nil:
		return &c.Stock.Comparison
	case c.Indicator != nil:
		return &c.Indicator.Comparison
	case c.Position != nil:
		return &c.Position.Comparison
	case c.Bot != nil:
		return &c.Bot.Comparison
	case c.General != nil:
		return &c.General.Comparison
	}
	return nil
}

// Depth returns the grouped nesting depth; a leaf has depth 0.
func (c *DecisionConfig) Depth() int {
	if c.Group == nil {
		return 0
	}
	deepest := 0
	for i := range c.Group.Decisions {
		if d := c.Group.Decisions[i].Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

// Symbols returns every symbol referenced by the config tree, in first-seen
// order. General conditions that read the VIX add "VIX"; market_regime adds
// "SPY".
func (c *DecisionConfig) Symbols() []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	var walk func(cfg *DecisionConfig, depth int)
	walk = func(cfg *DecisionConfig, depth int) {
		if depth > MaxDecisionDepth+1 {
			return
		}
		switch {
		case cfg.Stock != nil:
			add(cfg.Stock.Symbol)
		case cfg.Indicator != nil:
			add(cfg.Indicator.Symbol)
		case cfg.Position != nil:
			add(cfg.Position.Symbol)
		case cfg.General != nil:
			switch cfg.General.Condition {
			case "vix_level", "volatility_environment":
				add("VIX")
			case "market_regime":
				add("SPY")
			}
		case cfg.Group != nil:
			for i := range cfg.Group.Decisions {
				walk(&cfg.Group.Decisions[i], depth+1)
			}
		}
	}
	walk(c, 0)
	return out
}

// Validate checks the structural shape of the config: the parameter block
// matches Kind, required fields are present, operators are known and the
// nesting depth is within MaxDecisionDepth.
func (c *DecisionConfig) Validate() error {
	return c.validate(0)
}

func (c *DecisionConfig) validate(depth int) error {
	if depth > MaxDecisionDepth {
		return ErrMaxDepthExceeded
	}
	switch c.Kind {
	case RecipeStock, RecipeIndicator, RecipePosition, RecipeBot, RecipeGeneral, RecipeGrouped:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedRecipeKind, c.Kind)
	}
	set := 0
	for _, p := range []bool{c.Stock != nil, c.Indicator != nil, c.Position != nil, c.Bot != nil, c.General != nil, c.Group != nil} {
		if p {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one parameter block for %q, got %d", ErrInvalidConfig, c.Kind, set)
	}

	switch c.Kind {
	case RecipeGrouped:
		if c.Group == nil {
			return fmt.Errorf("%w: grouped config without group parameters", ErrInvalidConfig)
		}
		if c.Group.Operator != LogicAnd && c.Group.Operator != LogicOr {
			return fmt.Errorf("%w: logic_operator %q", ErrInvalidConfig, c.Group.Operator)
		}
		if len(c.Group.Decisions) == 0 {
			return fmt.Errorf("%w: grouped config has no decisions", ErrInvalidConfig)
		}
		for i := range c.Group.Decisions {
			if err := c.Group.Decisions[i].validate(depth + 1); err != nil {
				return err
			}
		}
		return nil
	case RecipeStock:
		if c.Stock == nil || c.Stock.Symbol == "" {
			return fmt.Errorf("%w: stock recipe requires symbol", ErrInvalidConfig)
		}
	case RecipeIndicator:
		if c.Indicator == nil || c.Indicator.Symbol == "" || c.Indicator.Indicator == "" {
			return fmt.Errorf("%w: indicator recipe requires symbol and indicator", ErrInvalidConfig)
		}
		if c.Indicator.Signal != "" {
			return nil
		}
	case RecipePosition:
		if c.Position == nil || c.Position.Field == "" {
			return fmt.Errorf("%w: position recipe requires position_field", ErrInvalidConfig)
		}
	case RecipeBot:
		if c.Bot == nil || c.Bot.Field == "" {
			return fmt.Errorf("%w: bot recipe requires bot_field", ErrInvalidConfig)
		}
	case RecipeGeneral:
		if c.General == nil || c.General.Condition == "" {
			return fmt.Errorf("%w: general recipe requires condition_type", ErrInvalidConfig)
		}
		if c.General.Condition == "day_of_week" || c.General.Condition == "market_day" {
			return nil
		}
	}

	cmp := c.Leaf()
	if cmp == nil {
		return fmt.Errorf("%w: parameter block does not match recipe_type %q", ErrInvalidConfig, c.Kind)
	}
	if !cmp.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedOperator, cmp.Operator)
	}
	if cmp.Value == nil {
		return fmt.Errorf("%w: value", ErrMissingOperand)
	}
	if cmp.Operator == OpBetween && cmp.Value2 == nil {
		return fmt.Errorf("%w: between requires value2", ErrMissingOperand)
	}
	return nil
}

// decisionWire is the flat JSON shape of a DecisionConfig.
type decisionWire struct {
	RecipeType        RecipeKind       `json:"recipe_type"`
	Description       string           `json:"description,omitempty"`
	Symbol            string           `json:"symbol,omitempty"`
	PriceField        string           `json:"price_field,omitempty"`
	Indicator         string           `json:"indicator,omitempty"`
	IndicatorPeriod   int              `json:"indicator_period,omitempty"`
	IndicatorSignal   string           `json:"indicator_signal,omitempty"`
	PositionID        string           `json:"position_id,omitempty"`
	PositionReference string           `json:"position_reference,omitempty"`
	Strategy          string           `json:"strategy,omitempty"`
	PositionField     string           `json:"position_field,omitempty"`
	BotField          string           `json:"bot_field,omitempty"`
	ConditionType     string           `json:"condition_type,omitempty"`
	Days              []string         `json:"days,omitempty"`
	Comparison        string           `json:"comparison,omitempty"`
	Value             *Value           `json:"value,omitempty"`
	Value2            *Value           `json:"value2,omitempty"`
	LogicOperator     LogicOperator    `json:"logic_operator,omitempty"`
	GroupedDecisions  []DecisionConfig `json:"grouped_decisions,omitempty"`
}

// UnmarshalJSON decodes the flat document form into the tagged union. Shape
// errors are left to Validate so a malformed config still yields ERROR at
// evaluation time instead of failing the surrounding document.
func (c *DecisionConfig) UnmarshalJSON(data []byte) error {
	var w decisionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cmp := Comparison{Operator: NormalizeOperator(w.Comparison), Value: w.Value, Value2: w.Value2}

	*c = DecisionConfig{Kind: RecipeKind(strings.ToLower(string(w.RecipeType))), Description: w.Description}
	switch c.Kind {
	case RecipeStock:
		field := w.PriceField
		if field == "" {
			field = "last"
		}
		c.Stock = &StockParams{Symbol: w.Symbol, PriceField: field, Comparison: cmp}
	case RecipeIndicator:
		period := w.IndicatorPeriod
		if period == 0 {
			period = 14
		}
		c.Indicator = &IndicatorParams{
			Symbol: w.Symbol, Indicator: strings.ToLower(w.Indicator),
			Period: period, Signal: strings.ToLower(w.IndicatorSignal), Comparison: cmp,
		}
	case RecipePosition:
		c.Position = &PositionParams{
			PositionID: w.PositionID, Reference: w.PositionReference,
			Symbol: w.Symbol, Strategy: w.Strategy, Field: w.PositionField, Comparison: cmp,
		}
	case RecipeBot:
		c.Bot = &BotParams{Field: w.BotField, Comparison: cmp}
	case RecipeGeneral:
		cond := w.ConditionType
		if cond == "" {
			cond = "market_time"
		}
		c.General = &GeneralParams{Condition: cond, Days: w.Days, Comparison: cmp}
	case RecipeGrouped:
		c.Group = &GroupParams{
			Operator:  LogicOperator(strings.ToLower(string(w.LogicOperator))),
			Decisions: w.GroupedDecisions,
		}
	}
	return nil
}

// MarshalJSON encodes the config in its flat document form.
func (c DecisionConfig) MarshalJSON() ([]byte, error) {
	w := decisionWire{RecipeType: c.Kind, Description: c.Description}
	setCmp := func(cmp Comparison) {
		w.Comparison = string(cmp.Operator)
		w.Value = cmp.Value
		w.Value2 = cmp.Value2
	}
	switch {
	case c.Stock != nil:
		w.Symbol, w.PriceField = c.Stock.Symbol, c.Stock.PriceField
		setCmp(c.Stock.Comparison)
	case c.Indicator != nil:
		w.Symbol, w.Indicator = c.Indicator.Symbol, c.Indicator.Indicator
		w.IndicatorPeriod, w.IndicatorSignal = c.Indicator.Period, c.Indicator.Signal
		setCmp(c.Indicator.Comparison)
	case c.Position != nil:
		w.PositionID, w.PositionReference = c.Position.PositionID, c.Position.Reference
		w.Symbol, w.Strategy, w.PositionField = c.Position.Symbol, c.Position.Strategy, c.Position.Field
		setCmp(c.Position.Comparison)
	case c.Bot != nil:
		w.BotField = c.Bot.Field
		setCmp(c.Bot.Comparison)
	case c.General != nil:
		w.ConditionType, w.Days = c.General.Condition, c.General.Days
		setCmp(c.General.Comparison)
	case c.Group != nil:
		w.LogicOperator, w.GroupedDecisions = c.Group.Operator, c.Group.Decisions
	}
	return json.Marshal(w)
}

// DecisionResult is the tri-state outcome of an evaluation.
type DecisionResult string

const (
	ResultYes   DecisionResult = "YES"
	ResultNo    DecisionResult = "NO"
	ResultError DecisionResult = "ERROR"
)

// FailureKind classifies why a result is ERROR.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureConfig          FailureKind = "config"
	FailureDataUnavailable FailureKind = "data_unavailable"
	FailureDepthExceeded   FailureKind = "depth_exceeded"
)

// DetailedDecisionResult is the immutable outcome produced by the decision
// engine. Confidence is informational and never changes Result.
type DetailedDecisionResult struct {
	Result      DecisionResult `json:"result"`
	Confidence  float64        `json:"confidence"`
	Reasoning   string         `json:"reasoning"`
	RecipeKind  RecipeKind     `json:"recipe_kind"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
	CacheHit    bool           `json:"cache_hit"`
	Failure     FailureKind    `json:"failure,omitempty"`
}

// DecisionRecord is one statistics/audit entry for an evaluation.
type DecisionRecord struct {
	RecipeKind RecipeKind     `json:"recipe_kind"`
	Result     DecisionResult `json:"result"`
	Confidence float64        `json:"confidence"`
	CacheHit   bool           `json:"cache_hit"`
	Failure    FailureKind    `json:"failure,omitempty"`
	Reasoning  string         `json:"reasoning"`
	RecordedAt time.Time      `json:"recorded_at"`
	ConfigHash string         `json:"config_hash,omitempty"`
}

// DecisionStatistics aggregates decision records over a window.
type DecisionStatistics struct {
	Window            time.Duration            `json:"window"`
	TotalDecisions    int                      `json:"total_decisions"`
	ByResult          map[DecisionResult]int   `json:"by_result"`
	ByRecipeKind      map[RecipeKind]int       `json:"by_recipe_kind"`
	AverageConfidence float64                  `json:"average_confidence"`
	ErrorRate         float64                  `json:"error_rate"`
	CacheHits         int                      `json:"cache_hits"`
	CacheHitRate      float64                  `json:"cache_hit_rate"`
	Lifetime          LifetimeDecisionCounters `json:"lifetime"`
}

// LifetimeDecisionCounters are the running counters since the last reset.
type LifetimeDecisionCounters struct {
	TotalEvaluations int                `json:"total_evaluations"`
	ByRecipeKind     map[RecipeKind]int `json:"by_recipe_kind"`
	Errors           int                `json:"errors"`
	CacheHits        int                `json:"cache_hits"`
}

// ScenarioResult is one row of a config test battery.
type ScenarioResult struct {
	Scenario    string                 `json:"scenario"`
	Description string                 `json:"description"`
	Result      DetailedDecisionResult `json:"result"`
}

// ConfigTestReport summarises a config test battery.
type ConfigTestReport struct {
	Valid     bool                   `json:"valid"`
	Error     string                 `json:"error,omitempty"`
	Scenarios []ScenarioResult       `json:"scenarios"`
	Summary   map[DecisionResult]int `json:"summary"`
}
