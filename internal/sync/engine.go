// Package sync keeps open chat sessions consistent with the backend's
// confirmed message log. Reconciliation is always refetch-and-replace:
// the whole log is fetched and swapped in, never merged message by
// message.
package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/backend"
	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/chat"
)

// HistoryFetcher fetches the confirmed message log for one chat.
type HistoryFetcher interface {
	History(ctx context.Context, userID string) (backend.HistoryResponse, error)
}

// MessageSender posts an operator message to one chat.
type MessageSender interface {
	Send(ctx context.Context, userID, text string, files []backend.Attachment) error
}

// UserDirectory resolves a user ID to a profile snapshot, used when a
// push frame names a chat that is not open yet.
type UserDirectory interface {
	Lookup(userID string) (chat.User, bool)
}

// flight tracks one in-progress refetch for a chat. A second trigger while
// one is running coalesces into a single follow-up, however many arrive.
type flight struct {
	followUp bool
}

// Engine owns all refetching: push-triggered, poll backstop, and the
// refetch that follows every send attempt.
type Engine struct {
	store     *chat.Store
	fetcher   HistoryFetcher
	sender    MessageSender
	directory UserDirectory
	bus       *bus.Bus
	logger    *zap.Logger
	poll      time.Duration

	mu       chan struct{} // guards inflight as a lockable token
	inflight map[string]*flight

	cancel context.CancelFunc
}

func NewEngine(store *chat.Store, fetcher HistoryFetcher, sender MessageSender, directory UserDirectory, b *bus.Bus, logger *zap.Logger, poll time.Duration) *Engine {
	e := &Engine{
		store:     store,
		fetcher:   fetcher,
		sender:    sender,
		directory: directory,
		bus:       b,
		logger:    logger,
		poll:      poll,
		mu:        make(chan struct{}, 1),
		inflight:  make(map[string]*flight),
	}
	e.mu <- struct{}{}
	return e
}

// Start subscribes to push events and runs the poll backstop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handlePush(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()

	go e.pollLoop(ctx)
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// pollLoop refetches every open session on a fixed cadence. It is the
// safety net that bounds staleness when push frames are lost.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, userID := range e.store.OpenIDs() {
				e.Refetch(ctx, userID)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handlePush(ctx context.Context, evt bus.Event) {
	userID, _ := evt.Payload.(string)
	switch evt.Kind {
	case "push.new_message":
		if userID == "" {
			return
		}
		if !e.store.Has(userID) {
			e.OpenSession(ctx, userID)
			return
		}
		e.Refetch(ctx, userID)
	case "push.admin_message_sent":
		// Another operator replied; refresh only if we are watching.
		if userID != "" && e.store.Has(userID) {
			e.Refetch(ctx, userID)
		}
	case "push.connected":
		// Catch up on anything missed while the channel was down.
		for _, id := range e.store.OpenIDs() {
			e.Refetch(ctx, id)
		}
	}
}

// OpenSession opens a chat session for the user and starts its first
// fetch. The profile comes from the roster; an unknown ID still gets a
// session with a bare profile so the conversation is reachable.
func (e *Engine) OpenSession(ctx context.Context, userID string) {
	user, ok := e.directory.Lookup(userID)
	if !ok {
		user = chat.User{ID: userID}
	}
	e.store.Open(user)
	e.Refetch(ctx, userID)
}

// CloseSession tears down the session. Fetches already in flight become
// no-ops when they complete.
func (e *Engine) CloseSession(userID string) {
	e.store.Close(userID)
}

// Refetch schedules a history refetch for one chat. Concurrent triggers
// for the same chat coalesce: at most one fetch runs at a time, with at
// most one follow-up queued behind it.
func (e *Engine) Refetch(ctx context.Context, userID string) {
	<-e.mu
	if f, ok := e.inflight[userID]; ok {
		f.followUp = true
		e.mu <- struct{}{}
		return
	}
	e.inflight[userID] = &flight{}
	e.mu <- struct{}{}

	go e.runRefetch(ctx, userID)
}

func (e *Engine) runRefetch(ctx context.Context, userID string) {
	for {
		e.refetchOnce(ctx, userID)

		<-e.mu
		f := e.inflight[userID]
		if f == nil || !f.followUp {
			delete(e.inflight, userID)
			e.mu <- struct{}{}
			return
		}
		f.followUp = false
		e.mu <- struct{}{}
	}
}

func (e *Engine) refetchOnce(ctx context.Context, userID string) {
	// The instance token is captured per attempt so a close or reopen
	// between fetch and apply turns the apply into a no-op.
	instance, ok := e.store.Instance(userID)
	if !ok {
		return
	}
	e.store.BeginLoad(userID, instance)

	resp, err := e.fetcher.History(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient failures leave the session as it was; the poll
		// backstop retries on the next tick.
		e.logger.Warn("history fetch failed", zap.Error(err), zap.String("user_id", userID))
		e.store.AbortLoad(userID, instance)
		e.store.SetNotice(userID, "Could not load messages. Retrying on next update.")
		return
	}

	if e.store.ReplaceHistory(userID, instance, decodeHistory(resp)) {
		e.bus.Publish(bus.Event{Kind: "chat.synced", Timestamp: time.Now(), Payload: userID})
	}
}

// decodeHistory classifies a history response into renderable messages.
// An opaque response collapses to a single system message so the operator
// sees something rather than nothing.
func decodeHistory(resp backend.HistoryResponse) []chat.Message {
	if !resp.Structured {
		text := strings.TrimSpace(resp.Opaque)
		if text == "" {
			return nil
		}
		return []chat.Message{systemMessage(text)}
	}
	msgs := make([]chat.Message, 0, len(resp.Records))
	for _, rec := range resp.Records {
		msgs = append(msgs, chat.Classify(rec))
	}
	return msgs
}

func systemMessage(text string) chat.Message {
	now := time.Now()
	return chat.Message{
		Sender:    chat.SenderSystem,
		Kind:      chat.KindText,
		Text:      text,
		Timestamp: &now,
	}
}

// Send posts an operator message. Empty text with no attachments is
// silently ignored. Text shows up optimistically as a pending tail entry;
// on failure it is rolled back, the draft is restored, and the backend's
// reason lands in the session notice.
func (e *Engine) Send(ctx context.Context, userID, text string, files []backend.Attachment) {
	text = strings.TrimSpace(text)
	if text == "" && len(files) == 0 {
		return
	}
	if !e.store.Has(userID) {
		return
	}

	var (
		instance string
		inserted int
	)
	if text != "" {
		inst, _, ok := e.store.AppendPending(userID, text)
		if !ok {
			return
		}
		instance, inserted = inst, 1
		// Only the text that was actually sent clears the composer; an
		// attachment-only send keeps whatever is being typed.
		e.store.SetDraft(userID, "")
	}
	e.store.ClearNotice(userID)

	go func() {
		err := e.sender.Send(ctx, userID, text, files)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("send failed", zap.Error(err), zap.String("user_id", userID))
			if inserted > 0 {
				e.store.RollbackPending(userID, instance, inserted)
				e.store.SetDraft(userID, text)
			}
			e.store.SetNotice(userID, sendFailureNotice(err))
			e.bus.Publish(bus.Event{Kind: "chat.send_failed", Timestamp: time.Now(), Payload: userID})
			return
		}
		// The server log is the only source of truth for the confirmed
		// message; refetch replaces the pending copy with it.
		e.Refetch(ctx, userID)
	}()
}

func sendFailureNotice(err error) string {
	var sendErr *backend.SendError
	if errors.As(err, &sendErr) && sendErr.Message != "" {
		return sendErr.Message
	}
	return "Failed to send message"
}
