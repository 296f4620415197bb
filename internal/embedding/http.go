package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/loomhq/loom/internal/providers"
)

// postJSON performs one JSON round trip with the shared error mapping.
func postJSON(ctx context.Context, client *http.Client, component, url, apiKey string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &providers.CoreError{Kind: providers.KindParseError, Component: component, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &providers.CoreError{Kind: providers.KindInvalidRequest, Component: component, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, providers.WrapNetworkError(component, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.WrapNetworkError(component, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.MapHTTPStatus(component, resp.StatusCode, string(data))
	}
	return data, nil
}
