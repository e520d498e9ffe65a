package render

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed default.css
var defaultStylesheet string

// LoadStylesheet returns the CSS payload at path, or the built-in one when
// path is empty.
func LoadStylesheet(path string) (string, error) {
	if path == "" {
		return defaultStylesheet, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading stylesheet: %w", err)
	}
	return string(data), nil
}
