package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/spendsense/spendsense/pkg/api"
)

// LoadCategories reads the category list advertised to clients from a JSON
// file shaped like {"categories": ["Food & Dining", ...]}. A missing file or
// an empty path yields the full built-in set. Every entry must belong to it.
func LoadCategories(path string) ([]api.Category, error) {
	if path == "" {
		return api.Categories(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return api.Categories(), nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, fmt.Errorf("loading categories %s: %w", path, err)
	}

	names := k.Strings("categories")
	if len(names) == 0 {
		return nil, fmt.Errorf("categories %s: no categories listed", path)
	}

	seen := make(map[api.Category]bool, len(names))
	out := make([]api.Category, 0, len(names))
	for i, name := range names {
		c := api.Category(name)
		if !c.Valid() {
			return nil, fmt.Errorf("categories %s: categories[%d]: unknown category %q", path, i, name)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
