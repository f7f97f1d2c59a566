package clocktick

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// isApplicationErrorHeader marks error responses the service produced
// deliberately, as opposed to generic HTTP failures.
const isApplicationErrorHeader = "X-Is-Application-Error"

// sendRequest issues one authenticated JSON request and decodes a 2xx
// response into respBody (when non-nil). Non-2xx responses come back as
// APIError or StatusError; transport failures are returned as-is, wrapped.
// No retries happen here: retry policy belongs to the caller.
func sendRequest(
	ctx context.Context, client *http.Client, apiKey, reqURL, method string,
	body any, respBody any,
) error {
	if client == nil {
		client = http.DefaultClient
	}

	var bodyR io.Reader
	if body != nil {
		j, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clocktick: marshal request body: %w", err)
		}
		bodyR = bytes.NewReader(j)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyR)
	if err != nil {
		return fmt.Errorf("clocktick: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("clocktick: %s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if respBody != nil {
			if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
				return fmt.Errorf("clocktick: decode response: %w", err)
			}
		}
		return nil
	}

	if resp.Header.Get(isApplicationErrorHeader) == "true" {
		var apiErr APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("clocktick: decode application error: %w", err)
		}
		return apiErr
	}

	return StatusError{Status: resp.StatusCode}
}
