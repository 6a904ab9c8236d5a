package parser

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spendsense/spendsense/pkg/api"
)

// SuggestCategory maps a merchant name to a category by keyword lookup.
// The first keyword group with a substring hit wins; no hit yields Other.
func (p *Parser) SuggestCategory(merchant string) api.Category {
	if merchant == "" {
		return api.CategoryOther
	}

	lower := cases.Lower(language.Und).String(merchant)
	for _, group := range p.categoryGroups {
		for _, kw := range group.Keywords {
			if strings.Contains(lower, kw) {
				return group.Category
			}
		}
	}
	return api.CategoryOther
}
