// Package session owns the thread collection of a signed-in user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/mindwave/backend/internal/analysis/emotion"
	"github.com/zhouzirui/mindwave/backend/internal/metrics"
	"github.com/zhouzirui/mindwave/backend/internal/model/chat"
	"github.com/zhouzirui/mindwave/backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("user is not signed in")
	ErrNoActiveThread  = errors.New("no active thread")
	ErrSendInFlight    = errors.New("a reply is already pending for this thread")

	// ErrSnapshotUnavailable reports that the saved threads could not be read.
	ErrSnapshotUnavailable = errors.New("saved threads are unavailable")
)

// Options tune a Session. Zero values fall back to defaults.
type Options struct {
	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	return o
}

// Session is the in-memory state of one user's threads. Every operation runs
// atomically under mu and persists the full snapshot before returning.
type Session struct {
	identity chat.Identity
	backend  store.Backend
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	threads  []*chat.Thread // most recently created first
	activeID string
	inFlight map[string]bool
	loadErr  error

	subsMu  sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// View is what the presentation layer renders.
type View struct {
	UserID         string               `json:"uid"`
	ActiveThreadID string               `json:"activeThreadId"`
	Title          string               `json:"title"`
	Messages       []chat.Message       `json:"messages"`
	Emotion        emotion.Label        `json:"emotion"`
	InFlight       bool                 `json:"inFlight"`
	Threads        []chat.ThreadSummary `json:"threads"`
}

// Outgoing describes a user message that was accepted and now awaits a reply.
type Outgoing struct {
	ThreadID string
	Message  chat.Message
	// History holds the thread's messages preceding Message, trimmed.
	History []chat.Message
}

// Load reconstructs the session of identity from backend. It never fails: a
// missing or corrupt snapshot yields a single fresh thread. When the backend
// cannot be read, the fresh thread lives in memory only and the session never
// writes, so the saved snapshot survives; LoadErr reports the failure.
func Load(ctx context.Context, backend store.Backend, identity chat.Identity, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		identity: identity,
		backend:  backend,
		logger:   opts.Logger.With().Str("component", "session").Str("uid", identity.UserID).Logger(),
		now:      opts.Now,
		newID:    opts.NewID,
		inFlight: make(map[string]bool),
		subs:     make(map[int]chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := backend.Load(ctx, identity.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Debug().Msg("no saved snapshot")
	case err != nil:
		s.logger.Warn().Err(err).Msg("snapshot read failed, starting fresh without saving")
		s.loadErr = fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	default:
		threads, decodeErr := store.DecodeThreads(rec.Threads)
		if decodeErr != nil {
			s.logger.Warn().Err(decodeErr).Msg("discarding corrupt snapshot")
			metrics.SnapshotRecoveries.Inc()
			if err := backend.Delete(ctx, identity.UserID); err != nil {
				s.logger.Warn().Err(err).Msg("failed to discard corrupt snapshot")
			}
			break
		}
		s.threads = threads
		s.activeID = rec.ActiveThreadID
	}

	if len(s.threads) == 0 {
		s.createThreadLocked()
		s.persistLocked(ctx)
		return s
	}
	if s.findLocked(s.activeID) == nil {
		s.activeID = s.threads[0].ID
	}
	return s
}

// Identity returns the user the session belongs to.
func (s *Session) Identity() chat.Identity {
	return s.identity
}

// LoadErr returns the read failure that made the session memory-only, or nil.
func (s *Session) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Persist writes the full snapshot. Failures are logged and dropped.
func (s *Session) Persist(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked(ctx)
}

func (s *Session) persistLocked(ctx context.Context) {
	if s.loadErr != nil {
		// The stored snapshot was never read; overwriting it would lose it.
		s.logger.Debug().Msg("memory-only session, skipping persist")
		return
	}
	raw, err := store.EncodeThreads(s.threads)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot encode failed")
		metrics.SnapshotPersistFailures.Inc()
		return
	}
	rec := store.Record{Threads: raw, ActiveThreadID: s.activeID}
	if err := s.backend.Save(ctx, s.identity.UserID, rec); err != nil {
		s.logger.Error().Err(err).Msg("snapshot persist failed")
		metrics.SnapshotPersistFailures.Inc()
	}
}

// CreateThread adds an empty thread at the head and makes it active.
func (s *Session) CreateThread(ctx context.Context) *chat.Thread {
	s.mu.Lock()
	thread := s.createThreadLocked()
	s.persistLocked(ctx)
	cp := thread.Clone()
	s.mu.Unlock()

	s.notify()
	return cp
}

func (s *Session) createThreadLocked() *chat.Thread {
	now := s.now()
	thread := &chat.Thread{
		ID:          s.newID(),
		Title:       chat.DefaultTitle,
		Messages:    []chat.Message{},
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.threads = append([]*chat.Thread{thread}, s.threads...)
	s.activeID = thread.ID
	return thread
}

// DeleteThread removes a thread. When it was active, the most recently updated
// survivor becomes active, or a fresh thread if none remain. Unknown ids are
// ignored.
func (s *Session) DeleteThread(ctx context.Context, id string) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	s.threads = append(s.threads[:idx], s.threads[idx+1:]...)
	if s.activeID == id {
		if len(s.threads) == 0 {
			s.createThreadLocked()
		} else {
			s.activeID = s.mostRecentlyUpdatedLocked().ID
		}
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.logger.Info().Str("thread", id).Msg("thread deleted")
	s.notify()
}

func (s *Session) mostRecentlyUpdatedLocked() *chat.Thread {
	best := s.threads[0]
	for _, t := range s.threads[1:] {
		if t.LastUpdated.After(best.LastUpdated) {
			best = t
		}
	}
	return best
}

// SwitchActive points the session at another thread. Unknown ids are ignored
// so stale references from the UI cannot break the session.
func (s *Session) SwitchActive(ctx context.Context, id string) {
	s.mu.Lock()
	if s.findLocked(id) == nil || s.activeID == id {
		s.mu.Unlock()
		return
	}
	s.activeID = id
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify()
}

// RenameThread sets an explicit title. It reports whether anything changed.
func (s *Session) RenameThread(ctx context.Context, id, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}

	s.mu.Lock()
	thread := s.findLocked(id)
	if thread == nil {
		s.mu.Unlock()
		return false
	}
	thread.Title = title
	thread.TitleSet = true
	thread.Touch(s.now())
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify()
	return true
}

// AppendMessage appends msg to a thread and persists. It reports false when
// the thread no longer exists.
func (s *Session) AppendMessage(ctx context.Context, threadID string, msg chat.Message) bool {
	s.mu.Lock()
	ok := s.appendLocked(threadID, msg)
	if ok {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return ok
}

func (s *Session) appendLocked(threadID string, msg chat.Message) bool {
	thread := s.findLocked(threadID)
	if thread == nil {
		return false
	}
	if msg.Sender == chat.SenderUser && !thread.TitleSet && thread.Title == chat.DefaultTitle && !hasUserMessage(thread) {
		thread.Title = chat.DeriveTitle(msg.Text)
		thread.TitleSet = true
	}
	thread.Messages = append(thread.Messages, msg)
	thread.Touch(s.now())
	return true
}

func hasUserMessage(thread *chat.Thread) bool {
	for _, m := range thread.Messages {
		if m.Sender == chat.SenderUser {
			return true
		}
	}
	return false
}

// BeginSend accepts a user message for the active thread: it captures the
// target thread, trims the preceding history to historyLimit messages,
// appends and persists the message, and marks the thread in flight. The
// caller must eventually call Finish or Release for the returned thread.
func (s *Session) BeginSend(ctx context.Context, text string, historyLimit int) (Outgoing, error) {
	s.mu.Lock()
	thread := s.findLocked(s.activeID)
	if thread == nil {
		s.mu.Unlock()
		return Outgoing{}, ErrNoActiveThread
	}
	if s.inFlight[thread.ID] {
		s.mu.Unlock()
		return Outgoing{}, ErrSendInFlight
	}

	msg := chat.NewMessage(chat.SenderUser, text, string(emotion.Current(thread.Messages)), s.now())

	start := 0
	if historyLimit >= 0 && len(thread.Messages) > historyLimit {
		start = len(thread.Messages) - historyLimit
	}
	history := append([]chat.Message(nil), thread.Messages[start:]...)

	s.appendLocked(thread.ID, msg)
	s.inFlight[thread.ID] = true
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify()
	return Outgoing{ThreadID: thread.ID, Message: msg, History: history}, nil
}

// Finish appends the reply to the thread captured by BeginSend, whether or not
// it is still active, and clears its in-flight flag. It reports false when the
// thread was deleted in the meantime.
func (s *Session) Finish(ctx context.Context, threadID string, reply chat.Message) bool {
	s.mu.Lock()
	delete(s.inFlight, threadID)
	ok := s.appendLocked(threadID, reply)
	if ok {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	s.notify()
	return ok
}

// Release clears the in-flight flag of a thread. Safe to call repeatedly.
func (s *Session) Release(threadID string) {
	s.mu.Lock()
	_, was := s.inFlight[threadID]
	delete(s.inFlight, threadID)
	s.mu.Unlock()

	if was {
		s.notify()
	}
}

// InFlight reports whether a reply is pending for the thread.
func (s *Session) InFlight(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[threadID]
}

// ActiveID returns the active thread id.
func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Thread returns a copy of the thread with id.
func (s *Session) Thread(id string) (*chat.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := s.findLocked(id)
	if thread == nil {
		return nil, false
	}
	return thread.Clone(), true
}

// Threads lists every thread, most recently created first.
func (s *Session) Threads() []chat.ThreadSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summariesLocked()
}

func (s *Session) summariesLocked() []chat.ThreadSummary {
	out := make([]chat.ThreadSummary, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t.Summary())
	}
	return out
}

// CurrentEmotion derives the displayed emotion from the active thread.
func (s *Session) CurrentEmotion() emotion.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	if thread := s.findLocked(s.activeID); thread != nil {
		return emotion.Current(thread.Messages)
	}
	return emotion.Neutral
}

// View snapshots everything the presentation layer needs.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := View{
		UserID:         s.identity.UserID,
		ActiveThreadID: s.activeID,
		Emotion:        emotion.Neutral,
		Messages:       []chat.Message{},
		Threads:        s.summariesLocked(),
	}
	if thread := s.findLocked(s.activeID); thread != nil {
		view.Title = thread.Title
		view.Messages = append(view.Messages, thread.Messages...)
		view.Emotion = emotion.Current(thread.Messages)
		view.InFlight = s.inFlight[thread.ID]
	}
	return view
}

func (s *Session) findLocked(id string) *chat.Thread {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.threads[idx]
	}
	return nil
}

func (s *Session) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, t := range s.threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Subscribe returns a channel that receives a signal after every change, and
// a function to stop listening. Signals coalesce; read View for the state.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
