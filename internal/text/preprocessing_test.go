package text_test

import (
	"testing"

	"github.com/book-expert/voice-engine/internal/text"
	"github.com/stretchr/testify/assert"
)

// preprocessorTestCase defines a standard test case for the preprocessor.
type preprocessorTestCase struct {
	name     string
	input    string
	expected string
}

func runPreprocessorTests(t *testing.T, tests []preprocessorTestCase) {
	t.Helper()

	preprocessor := text.NewPreprocessor()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, preprocessor.PreprocessText(testCase.input))
		})
	}
}

func TestPreprocessText_Basics(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "blank", input: "  \n\t ", expected: ""},
		{name: "adds period", input: "Olá mundo", expected: "Olá mundo."},
		{name: "keeps question", input: "Tudo bem?", expected: "Tudo bem?"},
		{name: "replaces trailing comma", input: "primeiro, segundo,", expected: "primeiro, segundo."},
	})
}

func TestPreprocessText_Whitespace(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "collapses runs", input: "a  fotossíntese\n\né\tum processo.", expected: "a fotossíntese é um processo."},
		{name: "space before punctuation", input: "olá , mundo !", expected: "olá, mundo!"},
	})
}

func TestPreprocessText_Punctuation(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "repeated marks", input: "Incrível!!! Sério??", expected: "Incrível! Sério?"},
		{name: "ellipsis survives", input: "E então…", expected: "E então..."},
		{name: "smart quotes", input: "Ele disse “sim”", expected: `Ele disse "sim"`},
		{name: "dashes", input: "Recife — PE.", expected: "Recife - PE."},
		{name: "guillemets", input: "«Bom dia»", expected: `"Bom dia"`},
	})
}

func TestPreprocessText_References(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{name: "bracket markers", input: "A água ferve a 100 graus [1].", expected: "A água ferve a 100 graus."},
		{name: "marker lists", input: "Como visto [2, 3] antes.", expected: "Como visto antes."},
		{name: "footnote after punctuation", input: "Foi assim.² Depois mudou.", expected: "Foi assim. Depois mudou."},
		{name: "exponent", input: "Resolva x² + 3x = 0", expected: "Resolva x² + 3x = 0."},
		{name: "unit", input: "São 10 m² no total.", expected: "São 10 m² no total."},
		{name: "year in parentheses", input: "A Independência do Brasil (em 1822) mudou tudo.", expected: "A Independência do Brasil (em 1822) mudou tudo."},
		{name: "et al", input: "Souza et al. mostraram isso.", expected: "Souza et al. mostraram isso."},
	})
}

func TestPreprocessText_PreservesTokens(t *testing.T) {
	t.Parallel()

	runPreprocessorTests(t, []preprocessorTestCase{
		{
			name:     "url",
			input:    "Veja https://example.com/a--b?x=1!! agora",
			expected: "Veja https://example.com/a--b?x=1!! agora.",
		},
		{
			name:     "email",
			input:    "Escreva para prof..silva@escola.edu.br",
			expected: "Escreva para prof..silva@escola.edu.br",
		},
	})
}

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "texto simples", text.StripMarkup("texto simples"))
	assert.Equal(t, "Olá, mundo & todos", text.StripMarkup("<speak>Olá, <break time=\"1s\"/>mundo &amp; todos</speak>"))
}

func TestIsSSML(t *testing.T) {
	t.Parallel()

	assert.True(t, text.IsSSML("  <speak>Olá</speak>\n"))
	assert.True(t, text.IsSSML(`<speak version="1.1">Olá</speak>`))
	assert.False(t, text.IsSSML("<b>Olá</b>"))
	assert.False(t, text.IsSSML("Olá"))
}
