package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api-inference.huggingface.co/models"

// HFClient implements Client against HuggingFace-style feature-extraction
// endpoints: one URL per model, bearer auth, {"inputs": <text>} request body.
type HFClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewHFClient creates a feature-extraction client. timeout applies per call.
func NewHFClient(apiKey, endpoint string, timeout time.Duration) *HFClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HFClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *HFClient) EmbedText(ctx context.Context, model, text string) ([]float32, error) {
	data, err := json.Marshal(map[string]any{"inputs": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+model, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embed %s: %s: %s", model, resp.Status, respBody)
	}

	return parseVector(model, respBody)
}

// parseVector accepts both a flat vector and the nested single-row form
// some feature-extraction deployments return.
func parseVector(model string, body []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 && len(nested[0]) > 0 {
		return nested[0], nil
	}

	return nil, fmt.Errorf("embed %s: malformed response body", model)
}
