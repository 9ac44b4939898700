package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
)

const maxResponseBytes = 1 << 20

// HTTPOptions configure an HTTPClient.
type HTTPOptions struct {
	URL string
	// Timeout bounds each attempt. Zero disables the deadline.
	Timeout time.Duration
	// MaxAttempts of one means no retry.
	MaxAttempts  int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// HTTPClient posts requests to the inference endpoint.
type HTTPClient struct {
	url         string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	logger      zerolog.Logger
}

// NewHTTPClient returns a client for the endpoint at opts.URL.
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{
		url:         opts.URL,
		timeout:     opts.Timeout,
		maxAttempts: attempts,
		backoff:     opts.RetryBackoff,
		http:        hc,
		logger:      opts.Logger.With().Str("component", "inference-http").Logger(),
	}
}

type wireRequest struct {
	Messages []chat.Turn `json:"messages"`
	UID      string      `json:"uid"`
	History  []chat.Turn `json:"history"`
}

type wireResponse struct {
	Response json.RawMessage `json:"response"`
	Emotion  json.RawMessage `json:"emotion"`
}

// Request sends the trimmed history plus the new user turn and decodes the
// reply. Only transport failures and 5xx statuses are retried.
func (c *HTTPClient) Request(ctx context.Context, req Request) (Result, error) {
	history := req.History
	if history == nil {
		history = []chat.Turn{}
	}
	messages := make([]chat.Turn, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, chat.Turn{Role: "user", Content: req.Text})

	body, err := json.Marshal(wireRequest{Messages: messages, UID: req.UserID, History: history})
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: fmt.Errorf("encode request: %w", err)}
	}

	for attempt := 1; ; attempt++ {
		res, err := c.do(ctx, body)
		if err == nil {
			return res, nil
		}

		var ierr *Error
		retry := errors.As(err, &ierr) && ierr.Retryable() && ctx.Err() == nil
		if !retry || attempt >= c.maxAttempts {
			return Result{}, err
		}

		wait := c.backoff * time.Duration(attempt)
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("inference attempt failed, retrying")
		select {
		case <-ctx.Done():
			return Result{}, &Error{Kind: KindTransport, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func (c *HTTPClient) do(ctx context.Context, body []byte) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Result{}, &Error{Kind: KindStatus, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}
	return decodeResponse(raw)
}

func decodeResponse(raw []byte) (Result, error) {
	var payload wireResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{}, &Error{Kind: KindDecode, Err: fmt.Errorf("malformed response: %w", err)}
	}

	var text string
	if len(payload.Response) == 0 || string(payload.Response) == "null" || json.Unmarshal(payload.Response, &text) != nil {
		return Result{}, &Error{Kind: KindDecode, Err: errors.New("malformed response: missing response text")}
	}

	return Result{Text: text, Emotion: decodeEmotion(payload.Emotion)}, nil
}

// decodeEmotion keeps any string label as-is and maps everything else to
// neutral.
func decodeEmotion(raw json.RawMessage) string {
	var label string
	if len(raw) == 0 || string(raw) == "null" || json.Unmarshal(raw, &label) != nil {
		return neutralEmotion
	}
	if strings.TrimSpace(label) == "" {
		return neutralEmotion
	}
	return label
}
