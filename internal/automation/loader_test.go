package automation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

const scannerYAML = `
automations:
  - name: spy-scanner
    bot_name: bot-a
    position_limit: 3
    trigger:
      type: continuous
      automation_type: scanner
    actions:
      - type: decision
        decision:
          recipe_type: stock
          symbol: SPY
          price_field: last
          comparison: above
          value: 440
        yes_path:
          - type: open_position
            position:
              symbol: SPY
              position_type: put_spread
              quantity: 1
`

const monitorJSON = `{
  "name": "spy-monitor",
  "bot_name": "bot-a",
  "trigger": {"type": "continuous", "automation_type": "monitor"},
  "actions": [{"type": "close_position", "close_config": {"symbol": "SPY"}}]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a-scanner.yaml", scannerYAML)
	writeFile(t, dir, "nested/b-monitor.json", monitorJSON)
	writeFile(t, dir, "README.md", "ignored")

	defs, err := LoadDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	scanner := defs[0]
	assert.Equal(t, "spy-scanner", scanner.Name)
	assert.Equal(t, 3, scanner.PositionLimit)
	assert.Equal(t, domain.TriggerContinuous, scanner.Trigger.Type)
	require.Len(t, scanner.Actions, 1)
	node := scanner.Actions[0]
	require.NotNil(t, node.Decision)
	assert.Equal(t, domain.RecipeStock, node.Decision.Kind)
	require.Len(t, node.YesPath, 1)
	assert.Equal(t, "put_spread", node.YesPath[0].Position.Strategy)

	assert.Equal(t, "spy-monitor", defs[1].Name)
	assert.Equal(t, "SPY", defs[1].Actions[0].CloseConfig.Symbol)
}

func TestSampleDefinitionsLoad(t *testing.T) {
	defs, err := LoadDefinitions(filepath.Join("..", "..", "automations"))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	entry := defs[0]
	assert.Equal(t, "spy-oversold-entry", entry.Name)
	require.NotNil(t, entry.Actions[0].Decision)
	assert.Equal(t, domain.RecipeGrouped, entry.Actions[0].Decision.Kind)
	assert.Len(t, entry.Actions[0].Decision.Group.Decisions, 3)
	assert.Equal(t, domain.TriggerMarketClose, defs[1].Trigger.Type)
}

func TestLoadFileList(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "list.json", "["+monitorJSON+"]")
	defs, err := LoadFile(p)
	require.NoError(t, err)
	require.Len(t, defs, 1)
}

func TestLoadDefinitionsReportsAllProblems(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", monitorJSON)
	writeFile(t, dir, "b.json", monitorJSON)
	writeFile(t, dir, "c.yaml", "automations: [: broken")
	writeFile(t, dir, "d.json", `{"name": "x", "bot_name": "bot-a", "actions": [{"type": "notification"}]}`)

	defs, err := LoadDefinitions(dir)
	require.Error(t, err)
	assert.Len(t, defs, 1)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.ErrorIs(t, err, domain.ErrInvalidAutomation)
	assert.Contains(t, err.Error(), "c.yaml")
}

type memAutomationStore struct {
	defs map[string]domain.AutomationDefinition
	err  error
}

func (m *memAutomationStore) Upsert(_ context.Context, def domain.AutomationDefinition) error {
	if m.err != nil {
		return m.err
	}
	if m.defs == nil {
		m.defs = map[string]domain.AutomationDefinition{}
	}
	m.defs[def.Name] = def
	return nil
}

func (m *memAutomationStore) Get(_ context.Context, name string) (domain.AutomationDefinition, error) {
	d, ok := m.defs[name]
	if !ok {
		return domain.AutomationDefinition{}, domain.ErrNotFound
	}
	return d, nil
}

func (m *memAutomationStore) List(context.Context) ([]domain.AutomationDefinition, error) {
	out := make([]domain.AutomationDefinition, 0, len(m.defs))
	for _, d := range m.defs {
		out = append(out, d)
	}
	return out, nil
}

func (m *memAutomationStore) Delete(_ context.Context, name string) error {
	delete(m.defs, name)
	return nil
}

func TestSeedStore(t *testing.T) {
	var def domain.AutomationDefinition
	require.NoError(t, json.Unmarshal([]byte(monitorJSON), &def))

	store := &memAutomationStore{}
	require.NoError(t, SeedStore(context.Background(), store, []domain.AutomationDefinition{def}))
	got, err := store.Get(context.Background(), "spy-monitor")
	require.NoError(t, err)
	assert.Equal(t, "bot-a", got.BotName)

	store.err = errors.New("db down")
	assert.ErrorContains(t, SeedStore(context.Background(), store, []domain.AutomationDefinition{def}), "db down")

	listed, err := StaticSource{def}.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
