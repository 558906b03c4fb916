package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Variable is a value pre-bound in the sandbox before the code runs. Kind "csv" values are
// loaded into a DataFrame, kind "text" values are bound as plain strings.
type Variable struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type RunRequest struct {
	Code      string              `json:"code"`
	Variables map[string]Variable `json:"variables,omitempty"`
}

// RunResult mirrors the sandbox reply. A non-zero Status means the code failed and Error
// holds the traceback or message.
type RunResult struct {
	Result json.RawMessage `json:"result"`
	Status int             `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// Text renders the result value: JSON strings are unquoted, anything else is returned as JSON.
func (r *RunResult) Text() string {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

func (r *RunResult) Failed() bool {
	return r.Status != 0
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal run request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build run request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("run request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read run response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("executor response status %d: %s", resp.StatusCode, string(raw))
	}

	var result RunResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse run response failed: %w", err)
	}
	return &result, nil
}
