// Package validator screens educational text for a target audience.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/voice-engine/internal/core"
)

// Scoring rules.
const (
	initialScore         = 100
	inappropriatePenalty = 20
	agePenalty           = 10
	lengthPenalty        = 5
)

// Verdict messages.
const (
	issueInappropriateFmt = "Conteúdo inadequado detectado: %s"
	issueTooShort         = "Conteúdo muito curto para uma aula"
	issueTooLong          = "Conteúdo muito longo, considere dividir em partes"
	suggestionTierFmt     = "Considere adicionar conteúdo mais apropriado para %s"
)

// Ruleset is the configurable vocabulary of the validator.
type Ruleset struct {
	// InappropriateTerms are matched case-insensitively as substrings.
	InappropriateTerms []string
	// TierIndicators lists, per tier, phrases of which at least one must appear.
	TierIndicators map[core.Tier][]string
	MinLength      int
	MaxLength      int
}

// DefaultRuleset returns the Portuguese vocabulary used for pt-BR content.
func DefaultRuleset() Ruleset {
	return Ruleset{
		InappropriateTerms: []string{
			"violência",
			"drogas",
			"álcool",
			"tabaco",
			"armas",
			"conteúdo inadequado",
			"linguagem ofensiva",
		},
		TierIndicators: map[core.Tier][]string{
			core.TierElementary: {"conteúdo básico", "explicações simples"},
			core.TierMiddle:     {"conteúdo intermediário", "exemplos práticos"},
			core.TierHigh:       {"conteúdo avançado", "análise crítica"},
			core.TierUniversity: {"conteúdo especializado", "pesquisa acadêmica"},
		},
		MinLength: 50,
		MaxLength: 5000,
	}
}

// Validator implements core.ContentValidator over a Ruleset. It is stateless
// and safe for concurrent use.
type Validator struct {
	rules Ruleset
}

// New creates a Validator. Terms and indicators are lower-cased once here.
func New(rules Ruleset) *Validator {
	normalized := Ruleset{
		InappropriateTerms: lowerAll(rules.InappropriateTerms),
		TierIndicators:     make(map[core.Tier][]string, len(rules.TierIndicators)),
		MinLength:          rules.MinLength,
		MaxLength:          rules.MaxLength,
	}

	for tier, indicators := range rules.TierIndicators {
		normalized.TierIndicators[tier] = lowerAll(indicators)
	}

	return &Validator{rules: normalized}
}

// Validate scores text for tier. The verdict is advisory: the caller decides
// whether an invalid verdict stops generation.
func (v *Validator) Validate(text string, tier core.Tier) core.Verdict {
	verdict := core.Verdict{
		Valid:          true,
		AgeAppropriate: true,
		Score:          initialScore,
		Issues:         []string{},
		Suggestions:    []string{},
	}

	lowered := strings.ToLower(text)

	for _, term := range v.rules.InappropriateTerms {
		if strings.Contains(lowered, term) {
			verdict.Valid = false
			verdict.Score -= inappropriatePenalty
			verdict.Issues = append(verdict.Issues, fmt.Sprintf(issueInappropriateFmt, term))
		}
	}

	// A tier without indicators is not screened for audience fit.
	indicators, known := v.rules.TierIndicators[tier]
	if known && len(indicators) > 0 && !containsAny(lowered, indicators) {
		verdict.AgeAppropriate = false
		verdict.Score -= agePenalty
		verdict.Suggestions = append(verdict.Suggestions, fmt.Sprintf(suggestionTierFmt, tier))
	}

	length := utf8.RuneCountInString(text)

	switch {
	case length < v.rules.MinLength:
		verdict.Score -= lengthPenalty
		verdict.Issues = append(verdict.Issues, issueTooShort)
	case length > v.rules.MaxLength:
		verdict.Score -= lengthPenalty
		verdict.Issues = append(verdict.Issues, issueTooLong)
	}

	return verdict
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	return false
}

func lowerAll(values []string) []string {
	lowered := make([]string, 0, len(values))
	for _, value := range values {
		lowered = append(lowered, strings.ToLower(value))
	}

	return lowered
}
