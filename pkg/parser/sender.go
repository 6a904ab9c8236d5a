package parser

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sender classification confidences.
const (
	confidenceBankKeyword  = 0.95
	confidencePaymentApp   = 0.9
	confidenceAlphaSender  = 0.9
	confidenceShortcode    = 0.8
	confidenceUnrecognized = 0.3
)

var (
	// alphaSenderRe matches letter-only SMS sender IDs such as "AXISBK".
	alphaSenderRe = regexp.MustCompile(`^[A-Z]{3,15}$`)
	shortcodeRe   = regexp.MustCompile(`^[0-9]{3,6}$`)
)

// ClassifySender decides whether sender looks like a bank or payment app and
// how confident that verdict is.
func (p *Parser) ClassifySender(sender string) (isBank bool, confidence float64) {
	v := p.classify(sender)
	return v.IsBank, v.Confidence
}

func (p *Parser) classify(sender string) Verdict {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return Verdict{IsBank: false, Confidence: confidenceUnrecognized}
	}

	upper := cases.Upper(language.Und).String(sender)
	for _, kw := range p.bankKeywords {
		if strings.Contains(upper, kw) {
			return Verdict{IsBank: true, Confidence: confidenceBankKeyword}
		}
	}

	switch {
	case alphaSenderRe.MatchString(upper):
		return Verdict{IsBank: true, Confidence: confidenceAlphaSender}
	case shortcodeRe.MatchString(upper):
		return Verdict{IsBank: true, Confidence: confidenceShortcode}
	default:
		return Verdict{IsBank: false, Confidence: confidenceUnrecognized}
	}
}
