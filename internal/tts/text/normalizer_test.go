package text_test

import (
	"testing"

	"github.com/book-expert/tts-job-service/internal/tts/text"
	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	t.Parallel()

	normalizer := text.NewNormalizer()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "whitespace only", input: "   ", want: "   "},
		{name: "adds period", input: "hello", want: "hello."},
		{name: "keeps question", input: "Ready?", want: "Ready?"},
		{name: "abbreviation", input: "Dr. Smith met Mrs. Jones.", want: "Doctor Smith met Misses Jones."},
		{name: "numbers", input: "I have 3 cats and 21 dogs.", want: "I have three cats and twenty one dogs."},
		{name: "whitespace", input: "one\n\ttwo   three", want: "one two three."},
		{name: "smart quotes", input: "“Hi” — she said", want: `"Hi" - she said.`},
		{name: "excess punctuation", input: "Stop!!!", want: "Stop!"},
		{name: "ellipsis kept", input: "Wait… what", want: "Wait... what."},
		{name: "footnote marker", input: "Proven[12] fact.", want: "Proven fact."},
		{name: "trailing comma", input: "and then,", want: "and then."},
		{
			name:  "url preserved",
			input: "See https://example.com/page2 now",
			want:  "See https://example.com/page2 now.",
		},
		{
			name:  "email preserved",
			input: "Mail ops42@example.com today",
			want:  "Mail ops42@example.com today.",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, normalizer.Normalize(testCase.input))
		})
	}
}

func TestIntegerToWords(t *testing.T) {
	t.Parallel()

	testCases := map[int]string{
		0:       "zero",
		7:       "seven",
		13:      "thirteen",
		40:      "forty",
		99:      "ninety nine",
		100:     "one hundred",
		105:     "one hundred five",
		1000:    "one thousand",
		5012:    "five thousand twelve",
		42300:   "forty two thousand three hundred",
		999999:  "nine hundred ninety nine thousand nine hundred ninety nine",
		1000000: "1000000",
		-4:      "-4",
	}

	for number, want := range testCases {
		assert.Equal(t, want, text.IntegerToWords(number), number)
	}
}
