// Package llm calls a Langflow-style flow endpoint to analyze failure
// clusters and parses its structured verdicts.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vpetrenko/failtriage/pkg/models"
)

// Analyzer produces a structured analysis for one cluster.
type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisSections, error)
}

// Client implements Analyzer against a Langflow-compatible run endpoint.
type Client struct {
	baseURL string
	flowID  string
	apiKey  string
	client  *http.Client
}

// Options configures a Client.
type Options struct {
	BaseURL string
	FlowID  string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		flowID:  opts.FlowID,
		apiKey:  opts.APIKey,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

type runRequest struct {
	InputValue string `json:"input_value"`
	OutputType string `json:"output_type"`
	InputType  string `json:"input_type"`
}

// runResponse mirrors the nested envelope the flow engine wraps chat output
// in. Only the first message text is meaningful.
type runResponse struct {
	Outputs []struct {
		Outputs []struct {
			Results struct {
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
			} `json:"results"`
		} `json:"outputs"`
	} `json:"outputs"`
}

func (c *Client) Analyze(ctx context.Context, req models.AnalysisRequest) (models.AnalysisSections, error) {
	text, err := c.run(ctx, BuildPrompt(req))
	if err != nil {
		return models.AnalysisSections{}, err
	}
	return parseSections(text)
}

// run posts one prompt to the flow and extracts the raw reply text.
func (c *Client) run(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(runRequest{
		InputValue: prompt,
		OutputType: "chat",
		InputType:  "chat",
	})
	if err != nil {
		return "", fmt.Errorf("encoding run payload: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/run/%s", c.baseURL, c.flowID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return "", fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", fmt.Errorf("%w: HTTP %d: %s", ErrBadResponse, resp.StatusCode, body)
	}

	var envelope runResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("%w: decoding envelope: %v", ErrBadResponse, err)
	}
	if len(envelope.Outputs) == 0 || len(envelope.Outputs[0].Outputs) == 0 {
		return "", fmt.Errorf("%w: empty outputs", ErrBadResponse)
	}
	text := envelope.Outputs[0].Outputs[0].Results.Message.Text
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty message text", ErrBadResponse)
	}
	return text, nil
}

// parseSections extracts the structured verdict from the reply. Models wrap
// JSON in prose or code fences often enough that we cut from the first '{'
// to the last '}'.
func parseSections(text string) (models.AnalysisSections, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return models.AnalysisSections{}, fmt.Errorf("%w: no JSON object in reply", ErrBadResponse)
	}

	var sections models.AnalysisSections
	if err := json.Unmarshal([]byte(text[start:end+1]), &sections); err != nil {
		return models.AnalysisSections{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if strings.TrimSpace(sections.Situation) == "" {
		return models.AnalysisSections{}, fmt.Errorf("%w: missing situation section", ErrBadResponse)
	}
	if sections.Category != "" && !models.ValidRootCause(models.RootCause(sections.Category)) {
		return models.AnalysisSections{}, fmt.Errorf("%w: unknown category %q", ErrBadResponse, sections.Category)
	}
	return sections, nil
}

var _ Analyzer = (*Client)(nil)
