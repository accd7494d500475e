// Package text provides the text cleanup applied before synthesis.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for text preprocessing.
const (
	urlRegexPattern        = `https?://\S+`
	emailRegexPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referenceRegexPattern  = `\[\d+(?:[,-]\s*\d+)*\]`
	footnoteRegexPattern   = `([.,;:!?])[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespaceRegexPattern = `\s+`
	spaceBeforePunctuation = `\s+([.,;:!?])`
)

// Placeholders use private-use runes so that punctuation cleanup leaves them intact.
const placeholderPattern = "\uE000%d\uE001"

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// Preprocessor normalizes text for synthesis. It is language neutral: it never
// rewrites words, only spacing, punctuation, and reference markers.
type Preprocessor struct {
	urlPattern        *regexp.Regexp
	emailPattern      *regexp.Regexp
	referencePattern  *regexp.Regexp
	footnotePattern   *regexp.Regexp
	whitespacePattern *regexp.Regexp
	spacingPattern    *regexp.Regexp
	quoteReplacer     *strings.Replacer
}

// NewPreprocessor creates a new text preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		footnotePattern:   regexp.MustCompile(footnoteRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		spacingPattern:    regexp.MustCompile(spaceBeforePunctuation),
		quoteReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
			"«", `"`, "»", `"`,
		),
	}
}

// PreprocessText performs text normalization and cleaning.
func (p *Preprocessor) PreprocessText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// URLs and emails are protected from every later step.
	preservedText, placeholders := p.preserveTokens(text)

	cleanedText := p.removeReferences(preservedText)
	cleanedText = p.normalizeWhitespace(cleanedText)
	cleanedText = p.quoteReplacer.Replace(cleanedText)
	cleanedText = p.removeExcessivePunctuation(cleanedText)
	cleanedText = p.ensureProperSentenceEndings(cleanedText)

	return p.restoreTokens(cleanedText, placeholders)
}

// preserveTokens temporarily replaces URLs and emails with placeholders.
func (p *Preprocessor) preserveTokens(text string) (string, map[string]string) {
	placeholders := make(map[string]string)
	counter := 0

	replaceFunc := func(source string, pattern *regexp.Regexp) string {
		return pattern.ReplaceAllStringFunc(source, func(match string) string {
			placeholder := fmt.Sprintf(placeholderPattern, counter)
			placeholders[placeholder] = match
			counter++

			return placeholder
		})
	}

	processedText := replaceFunc(text, p.urlPattern)
	processedText = replaceFunc(processedText, p.emailPattern)

	return processedText, placeholders
}

func (p *Preprocessor) restoreTokens(text string, placeholders map[string]string) string {
	for placeholder, original := range placeholders {
		text = strings.ReplaceAll(text, placeholder, original)
	}

	return text
}

// removeReferences removes bracketed reference markers and superscript
// footnote numbers that follow punctuation. Superscripts after a letter or
// digit are exponents and stay.
func (p *Preprocessor) removeReferences(text string) string {
	text = p.referencePattern.ReplaceAllString(text, "")

	return p.footnotePattern.ReplaceAllString(text, "$1")
}

func (p *Preprocessor) normalizeWhitespace(text string) string {
	text = p.whitespacePattern.ReplaceAllString(text, " ")
	text = p.spacingPattern.ReplaceAllString(text, "$1")

	return strings.TrimSpace(text)
}

// removeExcessivePunctuation collapses runs of the same mark ("!!!" to "!").
// Dots are left alone so that ellipses survive.
func (p *Preprocessor) removeExcessivePunctuation(text string) string {
	var (
		result   strings.Builder
		previous rune
	)

	for _, char := range text {
		if char == previous && char != '.' && unicode.IsPunct(char) {
			continue
		}

		result.WriteRune(char)

		previous = char
	}

	return result.String()
}

// ensureProperSentenceEndings ensures the text ends with terminal punctuation.
func (p *Preprocessor) ensureProperSentenceEndings(text string) string {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(trimmedText)
	switch lastChar {
	case '.', '!', '?', '"', '\'', ')', '\uE001':
		return trimmedText
	case ',', ';', ':', '-':
		return strings.TrimRight(trimmedText, ",;:- ") + "."
	default:
		return trimmedText + "."
	}
}
