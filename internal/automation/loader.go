package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// definitionFile is the document shape of an automations file: either a
// single definition or a list under "automations".
type definitionFile struct {
	Automations []domain.AutomationDefinition `json:"automations"`
}

// LoadDefinitions reads every .json, .yaml and .yml file under dir. Each
// definition is validated; all problems are reported together.
func LoadDefinitions(dir string) ([]domain.AutomationDefinition, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("automation: scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	var (
		defs []domain.AutomationDefinition
		errs []error
		seen = map[string]string{}
	)
	for _, p := range paths {
		loaded, err := LoadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, d := range loaded {
			key := d.BotName + "/" + d.Name
			if prev, dup := seen[key]; dup {
				errs = append(errs, fmt.Errorf("%w: %s defined in %s and %s", domain.ErrAlreadyExists, key, prev, p))
				continue
			}
			seen[key] = p
			defs = append(defs, d)
		}
	}
	return defs, errors.Join(errs...)
}

// LoadFile decodes one automations file. YAML documents are normalised to
// JSON first so both formats share the JSON field names.
func LoadFile(path string) ([]domain.AutomationDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("automation: read %s: %w", path, err)
	}
	data := raw
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("automation: parse %s: %w", path, err)
		}
	}
	defs, err := decodeDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("automation: decode %s: %w", path, err)
	}
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return nil, fmt.Errorf("automation: %s: %w", path, err)
		}
	}
	return defs, nil
}

func decodeDefinitions(data []byte) ([]domain.AutomationDefinition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var defs []domain.AutomationDefinition
		if err := json.Unmarshal(trimmed, &defs); err != nil {
			return nil, err
		}
		return defs, nil
	}
	var file definitionFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, err
	}
	if len(file.Automations) > 0 {
		return file.Automations, nil
	}
	var def domain.AutomationDefinition
	if err := json.Unmarshal(trimmed, &def); err != nil {
		return nil, err
	}
	return []domain.AutomationDefinition{def}, nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// SeedStore upserts defs into store.
func SeedStore(ctx context.Context, store domain.AutomationStore, defs []domain.AutomationDefinition) error {
	for _, d := range defs {
		if err := store.Upsert(ctx, d); err != nil {
			return fmt.Errorf("automation: seed %s: %w", d.Name, err)
		}
	}
	return nil
}

// StaticSource serves a fixed set of definitions.
type StaticSource []domain.AutomationDefinition

// List implements AutomationSource.
func (s StaticSource) List(context.Context) ([]domain.AutomationDefinition, error) {
	return append([]domain.AutomationDefinition(nil), s...), nil
}
