// Package gemini is a minimal client for the Gemini generateContent API
// with bounded retry on timeouts and server errors.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"marketplace-orders/internal/infra"
	"marketplace-orders/internal/infra/metrics"

	"github.com/google/uuid"
)

const DefaultURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

type Options struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

type Client struct {
	opts       Options
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ infra.ChatModel = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{},
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini returned status %d: %s", e.code, e.body)
}

// Generate calls the model, retrying timeouts and 5xx answers up to
// MaxRetries times and sleeping BaseDelay*n before the n-th retry.
func (c *Client) Generate(ctx context.Context, prompt string) (*infra.ChatReply, error) {
	reply := &infra.ChatReply{}
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.opts.BaseDelay*time.Duration(attempt)); err != nil {
				return reply, err
			}
		}

		reply.Attempts = attempt + 1
		reply.TransactionID = "chatbot_" + uuid.NewString()

		text, err := c.call(ctx, prompt, reply.TransactionID)
		if err == nil {
			reply.Text = text
			return reply, nil
		}
		lastErr = err
		log.Printf("[chat] attempt %d tx=%s failed: %v", reply.Attempts, reply.TransactionID, err)

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	return reply, lastErr
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) call(ctx context.Context, prompt, txID string) (string, error) {
	defer metrics.ObserveExternalCall("gemini", time.Now())

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 500,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL+"?key="+c.opts.APIKey, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Transaction-ID", txID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(body))}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
