// Package fixtures provides the demo datasets the agents operate on.
// Most datasets are embedded JSON documents; the monthly general ledger is
// synthesized deterministically so every period from 2024-01 through 2026-01
// has records without shipping thousands of rows.
package fixtures

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed data/*.json data/invoices/*.txt
var dataFS embed.FS

// Load returns an embedded dataset decoded as a generic JSON object. Runners
// pass these straight into model context payloads.
func Load(name string) (map[string]any, error) {
	raw, err := dataFS.ReadFile("data/" + name)
	if err != nil {
		return nil, fmt.Errorf("fixtures.Load: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("fixtures.Load: decode %s: %w", name, err)
	}
	return doc, nil
}

// Document returns an embedded plain-text document, such as a demo invoice.
// The path is relative to the data root, e.g. "invoices/INV-9001.txt".
func Document(path string) (string, error) {
	raw, err := dataFS.ReadFile("data/" + path)
	if err != nil {
		return "", fmt.Errorf("fixtures.Document: %w", err)
	}
	return string(raw), nil
}

func load(name string, dst any) error {
	raw, err := dataFS.ReadFile("data/" + name)
	if err != nil {
		return fmt.Errorf("fixtures: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("fixtures: decode %s: %w", name, err)
	}
	return nil
}
