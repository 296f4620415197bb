package providers

import "strings"

// defaultContextWindow is the conservative fallback for unknown models.
const defaultContextWindow = 32_768

// contextWindowEntry maps a lowercase model-name fragment to a context
// size. Entries are checked in order; the first fragment contained in the
// model name wins, so more specific fragments come first.
type contextWindowEntry struct {
	fragment string
	tokens   int
}

var contextWindows = []contextWindowEntry{
	// Qwen family.
	{"qwen3-max", 262_144},
	{"qwen-max", 262_144},
	{"qwen-plus", 1_000_000},
	{"qwen-turbo", 1_000_000},
	{"qwen3-coder", 262_144},
	{"qwen-long", 10_000_000},
	{"qwen", 131_072},

	// MiniMax family.
	{"minimax-m2.5", 245_760},
	{"minimax-text-01", 4_000_000},
	{"minimax-m2", 200_000},
	{"minimax", 200_000},

	// DeepSeek and GLM.
	{"deepseek", 131_072},
	{"glm-4", 131_072},
	{"glm", 131_072},

	// Anthropic.
	{"claude", 200_000},

	// OpenAI-compatible.
	{"gpt-4o", 128_000},
	{"gpt-4", 128_000},

	// Local Ollama defaults.
	{"llama", 131_072},
	{"mistral", 32_768},
}

// ContextWindowFor returns the context size for a model id, falling back
// to a conservative default for unknown families.
func ContextWindowFor(model string) int {
	lower := strings.ToLower(model)
	for _, entry := range contextWindows {
		if strings.Contains(lower, entry.fragment) {
			return entry.tokens
		}
	}
	return defaultContextWindow
}
