package tts

import (
	"fmt"
	"strconv"
)

// Well-known synthesis option keys. Anything else is engine-specific.
const (
	OptionLanguage          = "language"
	OptionTemperature       = "temperature"
	OptionVoice             = "voice"
	OptionSeed              = "seed"
	OptionNGL               = "ngl"
	OptionTopP              = "top_p"
	OptionRepetitionPenalty = "repetition_penalty"
)

func stringOption(options map[string]any, key, fallback string) string {
	value, ok := options[key]
	if !ok {
		return fallback
	}

	text, ok := value.(string)
	if !ok || text == "" {
		return fallback
	}

	return text
}

// floatOption accepts any numeric type; TOML decodes integers as int64.
func floatOption(options map[string]any, key string, fallback float64) (float64, error) {
	value, ok := options[key]
	if !ok {
		return fallback, nil
	}

	switch typed := value.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return 0, fmt.Errorf("option %s: %w", key, err)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("option %s: unsupported type %T", key, value)
	}
}

func intOption(options map[string]any, key string, fallback int) (int, error) {
	value, ok := options[key]
	if !ok {
		return fallback, nil
	}

	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != float64(int(typed)) {
			return 0, fmt.Errorf("option %s: %v is not an integer", key, typed)
		}

		return int(typed), nil
	case string:
		parsed, err := strconv.Atoi(typed)
		if err != nil {
			return 0, fmt.Errorf("option %s: %w", key, err)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("option %s: unsupported type %T", key, value)
	}
}

// passthrough returns the options that are not consumed by the engine itself.
func passthrough(options map[string]any, consumed ...string) map[string]any {
	skip := make(map[string]struct{}, len(consumed))
	for _, key := range consumed {
		skip[key] = struct{}{}
	}

	var rest map[string]any

	for key, value := range options {
		if _, ok := skip[key]; ok {
			continue
		}

		if rest == nil {
			rest = make(map[string]any)
		}

		rest[key] = value
	}

	return rest
}
