// Package inference talks to the backend that produces companion replies.
package inference

import (
	"context"
	"fmt"

	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
)

// Request is one reply request. History holds the turns preceding Text.
type Request struct {
	History []chat.Turn
	Text    string
	UserID  string
}

// Result is a successful reply. Emotion is the raw label, "neutral" when the
// backend did not provide a usable one.
type Result struct {
	Text    string
	Emotion string
}

// Client produces a reply for a request.
type Client interface {
	Request(ctx context.Context, req Request) (Result, error)
}

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindStatus    ErrorKind = "status"
	KindDecode    ErrorKind = "decode"
)

// Error is returned by clients for every failed request.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode >= 500
	default:
		return false
	}
}

const neutralEmotion = "neutral"
