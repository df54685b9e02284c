package vault

import "regexp"

// Provider tags with a known secret shape. Anything else falls back to
// a minimum-length check.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

var (
	openAIKeyPattern    = regexp.MustCompile(`^sk-[A-Za-z0-9]{48}$|^sk-proj-[A-Za-z0-9_-]{48,}$`)
	anthropicKeyPattern = regexp.MustCompile(`^sk-ant-api\d{2}-[A-Za-z0-9_-]{95}$`)
	googleKeyPattern    = regexp.MustCompile(`^AIza[A-Za-z0-9_-]{35}$`)
)

// ValidateFormat is a cheap provider-specific shape check, run before
// any encryption attempt so obviously malformed input fails fast.
func ValidateFormat(plaintext, provider string) bool {
	switch provider {
	case ProviderOpenAI:
		return openAIKeyPattern.MatchString(plaintext)
	case ProviderAnthropic:
		return anthropicKeyPattern.MatchString(plaintext)
	case ProviderGoogle:
		return googleKeyPattern.MatchString(plaintext)
	default:
		return len(plaintext) >= 20
	}
}

// ExpectedFormat describes the provider's secret shape for error
// messages. It reveals nothing about any stored value.
func ExpectedFormat(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "sk-... or sk-proj-... key"
	case ProviderAnthropic:
		return "sk-ant-api... key"
	case ProviderGoogle:
		return "AIza... key"
	default:
		return "secret of at least 20 characters"
	}
}
