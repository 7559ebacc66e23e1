package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/copperdogma/crucible-pipeline/pkg/apperrors"
	"github.com/copperdogma/crucible-pipeline/pkg/models"
)

// httpAgentClient posts task objects to an external agent service, the
// §1 out-of-scope collaborator. The wire contract is JSON-in/JSON-out:
// POST {endpoint}/agents/{name} with {"task": ...}, response
// {"text": "...", "usage": {...}}.
type httpAgentClient struct {
	endpoint string
	client   *http.Client
}

func newHTTPAgentClient(endpoint string) *httpAgentClient {
	return &httpAgentClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type agentWireResponse struct {
	Text  string `json:"text"`
	Usage struct {
		InputTokens  int      `json:"input_tokens"`
		OutputTokens int      `json:"output_tokens"`
		TotalTokens  int      `json:"total_tokens"`
		CostUSD      *float64 `json:"cost_usd,omitempty"`
		Model        string   `json:"model,omitempty"`
		Provider     string   `json:"provider,omitempty"`
	} `json:"usage"`
}

func (c *httpAgentClient) Invoke(ctx context.Context, agentName string, task map[string]any) (string, models.UsageStats, error) {
	payload, err := json.Marshal(map[string]any{"task": task})
	if err != nil {
		return "", models.UsageStats{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/agents/"+agentName, bytes.NewReader(payload))
	if err != nil {
		return "", models.UsageStats{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", models.UsageStats{}, apperrors.AgentFailure("agent transport failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.UsageStats{}, apperrors.AgentFailure("failed to read agent response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", models.UsageStats{}, apperrors.AgentFailure(
			fmt.Sprintf("agent %s returned status %d", agentName, resp.StatusCode), nil)
	}

	var wire agentWireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return "", models.UsageStats{}, apperrors.AgentFailure("malformed agent envelope", err)
	}

	usage := models.UsageStats{
		InputTokens:  wire.Usage.InputTokens,
		OutputTokens: wire.Usage.OutputTokens,
		TotalTokens:  wire.Usage.TotalTokens,
		CallCount:    1,
		CostUSD:      wire.Usage.CostUSD,
	}
	if wire.Usage.Provider != "" {
		usage.Providers = map[string]int{wire.Usage.Provider: 1}
	}
	if wire.Usage.Model != "" {
		usage.Models = map[string]int{wire.Usage.Model: 1}
	}
	return wire.Text, usage, nil
}

// httpStatus maps the error taxonomy to HTTP statuses (§7: callers map
// not_found to 404, and so on).
func httpStatus(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindPreconditionFailed:
		return http.StatusConflict
	case apperrors.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
