package config

import (
	"fmt"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/spendsense/spendsense/pkg/parser"
)

// LoadParserConfig returns parser.DefaultConfig with the tables present in
// the JSON file at path replacing the built-in ones. Keys missing from the
// file keep their defaults. An empty path yields the defaults.
func LoadParserConfig(path string) (parser.Config, error) {
	cfg := parser.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return parser.Config{}, fmt.Errorf("loading parser config %s: %w", path, err)
	}

	var override parser.Config
	if err := k.UnmarshalWithConf("", &override, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return parser.Config{}, fmt.Errorf("unmarshaling parser config %s: %w", path, err)
	}

	if k.Exists("currencyMarkers") {
		cfg.CurrencyMarkers = override.CurrencyMarkers
	}
	if k.Exists("thousandsSeparator") {
		cfg.ThousandsSeparator = override.ThousandsSeparator
	}
	if k.Exists("bankKeywords") {
		cfg.BankKeywords = override.BankKeywords
	}
	if k.Exists("categoryGroups") {
		cfg.CategoryGroups = override.CategoryGroups
	}

	if err := cfg.Validate(); err != nil {
		return parser.Config{}, fmt.Errorf("parser config %s: %w", path, err)
	}
	return cfg, nil
}
