package alerting

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// stateDoc is the on-disk shape of the persisted alert set: a single
// "alerts" section whose children are positional numeric keys. The keys
// carry no meaning, only the values do.
type stateDoc struct {
	Alerts map[string]string `yaml:"alerts"`
}

// SaveState writes the active-alert set to path atomically (temp file plus
// rename), so a crash mid-write never leaves a truncated state file.
func SaveState(path string, assets []string) error {
	doc := stateDoc{Alerts: make(map[string]string, len(assets))}
	for i, asset := range assets {
		doc.Alerts[strconv.Itoa(i)] = asset
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

// LoadState reads a previously saved alert set. The returned order is
// unspecified; the set content is what matters.
func LoadState(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("state: read: %w", err)
	}
	var doc stateDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("state: decode: %w", err)
	}
	assets := make([]string, 0, len(doc.Alerts))
	for _, asset := range doc.Alerts {
		if asset != "" {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}
