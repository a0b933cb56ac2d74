// Package text normalizes input before it reaches a synthesis engine.
package text

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNumberForWords is the largest integer spelled out; larger ones are left as digits.
const MaxNumberForWords = 999999

const (
	baseTen      = 10
	baseTwenty   = 20
	baseHundred  = 100
	baseThousand = 1000
)

const (
	urlRegexPattern        = `https?://\S+`
	emailRegexPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberRegexPattern     = `\b\d+\b`
	referenceRegexPattern  = `\[\d+\]`
	whitespaceRegexPattern = `\s+`
	placeholderFormat      = "\x00token%dend\x00"
)

var (
	onesWords = []string{
		"", "one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine",
	}
	teensWords = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tensWords = []string{
		"", "", "twenty", "thirty", "forty", "fifty",
		"sixty", "seventy", "eighty", "ninety",
	}
)

// Normalizer rewrites text into a form engines read aloud more reliably.
// It is safe for concurrent use.
type Normalizer struct {
	urlPattern           *regexp.Regexp
	emailPattern         *regexp.Regexp
	numberPattern        *regexp.Regexp
	referencePattern     *regexp.Regexp
	whitespacePattern    *regexp.Regexp
	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewNormalizer compiles the patterns once.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		urlPattern:        regexp.MustCompile(urlRegexPattern),
		emailPattern:      regexp.MustCompile(emailRegexPattern),
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		referencePattern:  regexp.MustCompile(referenceRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		abbreviationReplacer: strings.NewReplacer(
			"Mr.", "Mister",
			"Mrs.", "Misses",
			"Ms.", "Miss",
			"Dr.", "Doctor",
			"St.", "Saint",
			"Ltd.", "Limited",
			"Corp.", "Corporation",
			"Inc.", "Incorporated",
		),
		punctuationReplacer: strings.NewReplacer(
			"—", "-",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns text with abbreviations and integers spelled out, footnote
// markers dropped, whitespace collapsed and a terminal sentence mark. URLs and
// email addresses pass through untouched. Empty input stays empty.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	protected, tokens := n.protect(text)

	protected = n.abbreviationReplacer.Replace(protected)
	protected = n.referencePattern.ReplaceAllString(protected, "")
	protected = n.numberPattern.ReplaceAllStringFunc(protected, func(digits string) string {
		number, err := strconv.Atoi(digits)
		if err != nil {
			return digits
		}

		return IntegerToWords(number)
	})
	protected = n.punctuationReplacer.Replace(protected)
	protected = collapseRepeatedPunctuation(protected)
	protected = strings.TrimSpace(n.whitespacePattern.ReplaceAllString(protected, " "))

	return ensureSentenceEnding(restore(protected, tokens))
}

// protect swaps URLs and emails for placeholders the other passes cannot match.
func (n *Normalizer) protect(text string) (string, []string) {
	var tokens []string

	swap := func(match string) string {
		tokens = append(tokens, match)

		return fmt.Sprintf(placeholderFormat, len(tokens)-1)
	}

	text = n.urlPattern.ReplaceAllStringFunc(text, swap)
	text = n.emailPattern.ReplaceAllStringFunc(text, swap)

	return text, tokens
}

func restore(text string, tokens []string) string {
	for index := len(tokens) - 1; index >= 0; index-- {
		text = strings.ReplaceAll(text, fmt.Sprintf(placeholderFormat, index), tokens[index])
	}

	return text
}

// collapseRepeatedPunctuation turns "!!!" into "!" but keeps "..." intact.
func collapseRepeatedPunctuation(text string) string {
	var builder strings.Builder

	builder.Grow(len(text))

	var previous rune

	for _, char := range text {
		if char == previous && char != '.' && unicode.IsPunct(char) {
			continue
		}

		builder.WriteRune(char)

		previous = char
	}

	return builder.String()
}

func ensureSentenceEnding(text string) string {
	lastChar, _ := utf8.DecodeLastRuneInString(text)

	switch lastChar {
	case '.', '!', '?':
		return text
	case ',', ';', ':', '-':
		return strings.TrimRight(text, ",;:-") + "."
	default:
		return text + "."
	}
}

// IntegerToWords spells out 0..MaxNumberForWords in English. Other values are
// returned as digits.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	if thousands := number / baseThousand; thousands > 0 {
		parts = append(parts, underThousand(thousands), "thousand")
	}

	if remainder := number % baseThousand; remainder > 0 {
		parts = append(parts, underThousand(remainder))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	var parts []string

	if hundreds := number / baseHundred; hundreds > 0 {
		parts = append(parts, onesWords[hundreds], "hundred")
	}

	remainder := number % baseHundred

	switch {
	case remainder == 0:
	case remainder < baseTen:
		parts = append(parts, onesWords[remainder])
	case remainder < baseTwenty:
		parts = append(parts, teensWords[remainder-baseTen])
	default:
		parts = append(parts, tensWords[remainder/baseTen])
		if ones := remainder % baseTen; ones > 0 {
			parts = append(parts, onesWords[ones])
		}
	}

	return strings.Join(parts, " ")
}
