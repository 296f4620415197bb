package settings

import (
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/loomhq/loom/internal/providers"
)

// keyringService namespaces Loom's keyring entries.
const keyringService = "loom"

// allowedKeyAliases is the closed set of secrets the CLI surface may
// read or write. Anything else is rejected before touching the keyring.
var allowedKeyAliases = map[string]bool{
	"qwen_embedding":   true,
	"glm_embedding":    true,
	"openai_embedding": true,
}

// SetAPIKey stores a provider secret under an allowed alias.
func SetAPIKey(alias, value string) error {
	if !allowedKeyAliases[alias] {
		return &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "keyring",
			Message: fmt.Sprintf("alias %q is not permitted", alias)}
	}
	if err := keyring.Set(keyringService, alias, value); err != nil {
		return &providers.CoreError{Kind: providers.KindOther, Component: "keyring", Cause: err}
	}
	return nil
}

// GetAPIKey reads a provider secret for an allowed alias.
func GetAPIKey(alias string) (string, error) {
	if !allowedKeyAliases[alias] {
		return "", &providers.CoreError{Kind: providers.KindInvalidRequest, Component: "keyring",
			Message: fmt.Sprintf("alias %q is not permitted", alias)}
	}
	value, err := keyring.Get(keyringService, alias)
	if err != nil {
		return "", &providers.CoreError{Kind: providers.KindNotFound, Component: "keyring", Cause: err}
	}
	return value, nil
}
