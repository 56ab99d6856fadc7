package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per-attempt HTTP timeout
	Model   string
}

// Client calls the upstream portrait generation API. One Generate call is
// one attempt; retrying is the caller's concern.
type Client struct {
	http     *resty.Client
	endpoint string
	model    string
}

func NewClient(cfg ClientConfig) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		http:     client,
		endpoint: cfg.BaseURL + "/v1/generations",
		model:    cfg.Model,
	}
}

type Request struct {
	JobID    string
	RunID    string
	InputRef string
	Style    string
}

type Result struct {
	OutputRef string
}

type generateRequest struct {
	Model    string `json:"model"`
	RunID    string `json:"run_id"`
	InputRef string `json:"input_ref"`
	Style    string `json:"style,omitempty"`
}

type generateResponse struct {
	OutputRef string `json:"output_ref"`
	Error     string `json:"error,omitempty"`
}

func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	var out generateResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateRequest{
			Model:    c.model,
			RunID:    req.RunID,
			InputRef: req.InputRef,
			Style:    req.Style,
		}).
		SetResult(&out).
		SetError(&out).
		Post(c.endpoint)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.IsError() {
		return nil, &Error{
			Cause:      causeForStatus(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Message:    out.Error,
		}
	}

	if out.OutputRef == "" {
		return nil, &Error{
			Cause:   CauseTransient,
			Message: "upstream returned success without an output reference",
		}
	}
	return &Result{OutputRef: out.OutputRef}, nil
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Cause: CauseTimeout, Message: err.Error()}
	}
	return &Error{Cause: CauseTransient, Message: fmt.Sprintf("transport: %v", err)}
}

func causeForStatus(status int) Cause {
	switch {
	case status == http.StatusTooManyRequests:
		return CauseRateLimited
	case status == http.StatusBadRequest:
		return CauseInvalidInput
	case status == http.StatusUnprocessableEntity:
		return CauseContentPolicy
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CauseTimeout
	case status >= 500:
		return CauseTransient
	default:
		// Unexpected 4xx: the request itself is the problem, do not retry.
		return CauseInvalidInput
	}
}
