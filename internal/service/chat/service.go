// Package chat runs the send flow: accept a user message, ask the inference
// backend for a reply and record whatever comes back.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/metrics"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	"github.com/zhouzirui/mindwave/backend/internal/service/inference"
	"github.com/zhouzirui/mindwave/backend/internal/service/session"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSendInFlight    = session.ErrSendInFlight
	ErrNoActiveThread  = session.ErrNoActiveThread
	ErrUnauthenticated = session.ErrUnauthenticated
)

// DefaultHistoryLimit is how many earlier messages accompany a request.
const DefaultHistoryLimit = 10

// Options tune a Service.
type Options struct {
	HistoryLimit int
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Service is the chat controller.
type Service struct {
	client       inference.Client
	historyLimit int
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService wires the controller to an inference client.
func NewService(client inference.Client, opts Options) *Service {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		client:       client,
		historyLimit: limit,
		logger:       opts.Logger.With().Str("component", "chat").Logger(),
		now:          now,
	}
}

// SendMessage appends text to the active thread, waits for the reply and
// appends it to the same thread, even if the user switched away meanwhile.
// A failed request still yields an AI message describing the error. The
// returned message is the one appended as the resolution.
//
// Validation failures return a sentinel error and leave the session untouched.
func (s *Service) SendMessage(ctx context.Context, sess *session.Session, text string) (chat.Message, error) {
	if sess == nil || !sess.Identity().Valid() {
		metrics.SendsRejected.WithLabelValues("unauthenticated").Inc()
		return chat.Message{}, ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		metrics.SendsRejected.WithLabelValues("empty").Inc()
		return chat.Message{}, ErrEmptyMessage
	}

	out, err := sess.BeginSend(ctx, text, s.historyLimit)
	if err != nil {
		metrics.SendsRejected.WithLabelValues(rejectReason(err)).Inc()
		return chat.Message{}, err
	}
	defer sess.Release(out.ThreadID)
	metrics.MessagesSent.Inc()

	uid := sess.Identity().UserID
	logger := s.logger.With().Str("uid", uid).Str("thread", out.ThreadID).Logger()

	// The reply must land even if the caller goes away.
	callCtx := context.WithoutCancel(ctx)

	start := time.Now()
	res, err := s.client.Request(callCtx, inference.Request{
		History: chat.Turns(out.History),
		Text:    text,
		UserID:  uid,
	})
	elapsed := time.Since(start)
	metrics.InferenceLatency.Observe(elapsed.Seconds())

	var reply chat.Message
	if err != nil {
		metrics.InferenceResults.WithLabelValues(outcome(err)).Inc()
		logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("inference failed, recording fallback reply")
		reply = chat.NewMessage(chat.SenderAI, FallbackText(err), "neutral", s.now())
	} else {
		metrics.InferenceResults.WithLabelValues("ok").Inc()
		emotion := res.Emotion
		if emotion == "" {
			emotion = "neutral"
		}
		reply = chat.NewMessage(chat.SenderAI, res.Text, emotion, s.now())
	}

	if !sess.Finish(callCtx, out.ThreadID, reply) {
		logger.Warn().Msg("thread deleted before reply arrived, reply dropped")
		return reply, nil
	}

	logger.Info().Dur("elapsed", elapsed).Str("emotion", reply.Emotion).Msg("reply recorded")
	return reply, nil
}

// FallbackText is the conversational text recorded for a failed request.
func FallbackText(err error) string {
	return "Sorry, I encountered an error: " + err.Error()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSendInFlight):
		return "in_flight"
	case errors.Is(err, ErrNoActiveThread):
		return "no_active_thread"
	default:
		return "other"
	}
}

func outcome(err error) string {
	var ierr *inference.Error
	if errors.As(err, &ierr) {
		return string(ierr.Kind)
	}
	return "unknown"
}
