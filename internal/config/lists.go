package config

import (
	"fmt"
	"strconv"
	"strings"
)

// StringList is a comma-separated list in the environment and a
// sequence in YAML.
type StringList []string

// Decode parses a comma-separated environment value. Empty entries are
// dropped.
func (l *StringList) Decode(value string) error {
	items := make([]string, 0, strings.Count(value, ",")+1)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*l = items
	return nil
}

// FloatList is a comma-separated list of numbers in the environment and
// a sequence in YAML.
type FloatList []float64

// Decode parses a comma-separated environment value.
func (l *FloatList) Decode(value string) error {
	items := make([]float64, 0, strings.Count(value, ",")+1)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		f, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", item, err)
		}
		items = append(items, f)
	}
	*l = items
	return nil
}
