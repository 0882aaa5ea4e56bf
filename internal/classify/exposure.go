package classify

import (
	"strings"
	"unicode"
)

// Exposure holds the macro channel flags derived from a sector name
type Exposure struct {
	Treated bool
	Energy  bool
	Risk    bool
	FX      bool
}

// keyword matches inside a lower-cased sector name. Short keywords that are
// common substrings ("it" in "utilities") must match a whole word.
type keyword struct {
	text  string
	whole bool
}

func kw(words ...string) []keyword {
	out := make([]keyword, len(words))
	for i, w := range words {
		out[i] = keyword{text: w}
	}
	return out
}

var (
	energyKeywords = kw("energy", "oil", "gas")
	tradeKeywords  = kw("industrial", "basic", "materials", "metal", "mining",
		"consumer cyclical", "transport", "infra", "port", "shipping")
	defensiveKeywords = kw("consumer defensive", "fmcg", "healthcare", "pharma", "utilities", "telecom")
	cyclicalKeywords  = kw("auto", "automobile", "bank", "financial services")
	riskKeywords      = kw("financial", "bank", "nbfc", "broker")
	fxKeywords        = []keyword{{text: "it", whole: true}, {text: "software"}, {text: "technology"}, {text: "tech"}}
)

// MacroExposure flags a sector's exposure to oil prices (Energy), global
// risk sentiment (Risk) and the rupee (FX). Treated marks non-defensive
// sectors with energy, trade, auto or banking exposure.
func MacroExposure(sector string) Exposure {
	s := strings.ToLower(strings.TrimSpace(sector))
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })

	energy := matchAny(s, words, energyKeywords)
	trade := matchAny(s, words, tradeKeywords)
	defensive := matchAny(s, words, defensiveKeywords)
	return Exposure{
		Treated: !defensive && (energy || trade || matchAny(s, words, cyclicalKeywords)),
		Energy:  energy,
		Risk:    matchAny(s, words, riskKeywords),
		FX:      matchAny(s, words, fxKeywords),
	}
}

func matchAny(s string, words []string, keys []keyword) bool {
	for _, k := range keys {
		if !k.whole {
			if strings.Contains(s, k.text) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == k.text {
				return true
			}
		}
	}
	return false
}
