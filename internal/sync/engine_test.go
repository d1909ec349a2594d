package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/backend"
	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/chat"
)

type fakeFetcher struct {
	calls   atomic.Int64
	resp    backend.HistoryResponse
	err     error
	block   chan struct{} // when non-nil, History waits on it
	started chan struct{} // when non-nil, signalled once per call
}

func (f *fakeFetcher) History(ctx context.Context, userID string) (backend.HistoryResponse, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return backend.HistoryResponse{}, ctx.Err()
		}
	}
	return f.resp, f.err
}

type fakeSender struct {
	err   error
	calls atomic.Int64
	done  chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, userID, text string, files []backend.Attachment) error {
	f.calls.Add(1)
	if f.done != nil {
		defer func() { f.done <- struct{}{} }()
	}
	return f.err
}

type fakeDirectory map[string]chat.User

func (f fakeDirectory) Lookup(userID string) (chat.User, bool) {
	u, ok := f[userID]
	return u, ok
}

func newTestEngine(fetcher *fakeFetcher, sender *fakeSender) (*Engine, *chat.Store, *bus.Bus) {
	b := bus.New()
	store := chat.NewStore(b)
	dir := fakeDirectory{"u1": {ID: "u1", FullName: "Ada"}}
	e := NewEngine(store, fetcher, sender, dir, b, zap.NewNop(), time.Hour)
	return e, store, b
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRefetchReplacesHistory(t *testing.T) {
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{
		Structured: true,
		Records: []chat.RawRecord{
			{Sender: "user", Text: "hello"},
			{Sender: "admin", Text: "[image]/media/a.png"},
		},
	}}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})

	e.OpenSession(context.Background(), "u1")
	waitFor(t, func() bool {
		snap, ok := store.Snapshot("u1")
		return ok && snap.State == chat.StateSynced
	}, "session never synced")

	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Sender != chat.SenderRemote || snap.Messages[0].Text != "hello" {
		t.Errorf("first = %+v", snap.Messages[0])
	}
	if snap.Messages[1].Kind != chat.KindImage {
		t.Errorf("second = %+v", snap.Messages[1])
	}
	if snap.User.FullName != "Ada" {
		t.Errorf("profile not taken from directory: %+v", snap.User)
	}
}

func TestOpaqueHistoryBecomesSystemMessage(t *testing.T) {
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{Opaque: "backend maintenance"}}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})

	e.OpenSession(context.Background(), "u1")
	waitFor(t, func() bool {
		snap, ok := store.Snapshot("u1")
		return ok && len(snap.Messages) == 1
	}, "no system message")

	snap, _ := store.Snapshot("u1")
	if snap.Messages[0].Sender != chat.SenderSystem || snap.Messages[0].Text != "backend maintenance" {
		t.Errorf("message = %+v", snap.Messages[0])
	}
}

// Triggers arriving while a fetch is in flight coalesce into exactly one
// follow-up fetch, no matter how many there were.
func TestRefetchCoalesces(t *testing.T) {
	fetcher := &fakeFetcher{
		resp:    backend.HistoryResponse{Structured: true},
		block:   make(chan struct{}),
		started: make(chan struct{}, 16),
	}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})
	ctx := context.Background()

	store.Open(chat.User{ID: "u1"})
	e.Refetch(ctx, "u1")
	<-fetcher.started // first fetch is now in flight

	e.Refetch(ctx, "u1")
	e.Refetch(ctx, "u1")
	e.Refetch(ctx, "u1")

	fetcher.block <- struct{}{} // release first fetch
	<-fetcher.started           // the single follow-up begins
	fetcher.block <- struct{}{} // release it

	waitFor(t, func() bool {
		<-e.mu
		_, inflight := e.inflight["u1"]
		e.mu <- struct{}{}
		return !inflight
	}, "refetch never drained")

	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (initial + one coalesced follow-up)", got)
	}
}

// A fetch completing after the session closed must not resurrect it.
func TestRefetchAfterCloseIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{
		resp:    backend.HistoryResponse{Structured: true, Records: []chat.RawRecord{{Sender: "user", Text: "hi"}}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})
	ctx := context.Background()

	store.Open(chat.User{ID: "u1"})
	e.Refetch(ctx, "u1")
	<-fetcher.started

	e.CloseSession("u1")
	fetcher.block <- struct{}{}

	waitFor(t, func() bool {
		<-e.mu
		_, inflight := e.inflight["u1"]
		e.mu <- struct{}{}
		return !inflight
	}, "refetch never drained")

	if store.Has("u1") {
		t.Fatal("closed session came back")
	}
}

// A fetch started before a reopen must not land in the new session.
func TestStaleFetchAfterReopenIgnored(t *testing.T) {
	fetcher := &fakeFetcher{
		resp:    backend.HistoryResponse{Structured: true, Records: []chat.RawRecord{{Sender: "user", Text: "stale"}}},
		block:   make(chan struct{}),
		started: make(chan struct{}, 2),
	}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})
	ctx := context.Background()

	store.Open(chat.User{ID: "u1"})
	e.Refetch(ctx, "u1")
	<-fetcher.started

	store.Open(chat.User{ID: "u1"}) // reopen mints a new instance
	fetcher.block <- struct{}{}     // stale fetch completes against old instance

	waitFor(t, func() bool {
		<-e.mu
		_, inflight := e.inflight["u1"]
		e.mu <- struct{}{}
		return !inflight
	}, "refetch never drained")

	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 0 {
		t.Fatalf("stale fetch landed: %+v", snap.Messages)
	}
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{
		Structured: true,
		Records:    []chat.RawRecord{{Sender: "admin", Text: "hi"}},
	}}
	sender := &fakeSender{done: make(chan struct{}, 1)}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})
	e.sender = sender

	store.Open(chat.User{ID: "u1"})
	store.SetDraft("u1", "hi")
	e.Send(context.Background(), "u1", "hi", nil)

	// Pending copy appears immediately and the draft clears.
	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 1 || !snap.Messages[0].Pending {
		t.Fatalf("no pending tail: %+v", snap.Messages)
	}
	if snap.Draft != "" {
		t.Errorf("draft = %q, want cleared", snap.Draft)
	}

	<-sender.done
	waitFor(t, func() bool {
		snap, _ := store.Snapshot("u1")
		return len(snap.Messages) == 1 && !snap.Messages[0].Pending
	}, "pending never replaced by confirmed copy")
}

// On failure the optimistic insert is rolled back, the draft restored,
// and the backend's reason shown; net message count is unchanged.
func TestSendFailureRollsBack(t *testing.T) {
	sender := &fakeSender{
		err:  &backend.SendError{Message: "user blocked the bot"},
		done: make(chan struct{}, 1),
	}
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{Structured: true}}
	e, store, _ := newTestEngine(fetcher, sender)

	store.Open(chat.User{ID: "u1"})
	store.SetDraft("u1", "hi")
	e.Send(context.Background(), "u1", "hi", nil)
	<-sender.done

	waitFor(t, func() bool {
		snap, _ := store.Snapshot("u1")
		return snap.Notice != ""
	}, "notice never set")

	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 0 {
		t.Errorf("messages = %d, want 0 after rollback", len(snap.Messages))
	}
	if snap.Draft != "hi" {
		t.Errorf("draft = %q, want restored", snap.Draft)
	}
	if snap.Notice != "user blocked the bot" {
		t.Errorf("notice = %q", snap.Notice)
	}
}

func TestAttachmentSendKeepsDraft(t *testing.T) {
	sender := &fakeSender{done: make(chan struct{}, 1)}
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{Structured: true}}
	e, store, _ := newTestEngine(fetcher, sender)

	store.Open(chat.User{ID: "u1"})
	store.SetDraft("u1", "half-typed reply")
	e.Send(context.Background(), "u1", "", []backend.Attachment{
		{Name: "voice-1.wav", ContentType: "audio/wav", Data: []byte("RIFF")},
	})
	<-sender.done

	if got := store.Draft("u1"); got != "half-typed reply" {
		t.Errorf("draft = %q, want untouched", got)
	}
}

func TestSendEmptyIsSilentlyIgnored(t *testing.T) {
	sender := &fakeSender{}
	e, store, _ := newTestEngine(&fakeFetcher{}, sender)
	store.Open(chat.User{ID: "u1"})

	e.Send(context.Background(), "u1", "   ", nil)
	time.Sleep(20 * time.Millisecond)
	if got := sender.calls.Load(); got != 0 {
		t.Errorf("sender called %d times for empty text", got)
	}
}

// Attachment-only sends go out without any optimistic insert.
func TestSendAttachmentOnly(t *testing.T) {
	sender := &fakeSender{done: make(chan struct{}, 1)}
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{Structured: true}}
	e, store, _ := newTestEngine(fetcher, sender)
	store.Open(chat.User{ID: "u1"})

	e.Send(context.Background(), "u1", "", []backend.Attachment{{Name: "voice.wav", Data: []byte("x")}})
	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 0 {
		t.Errorf("attachment-only send inserted optimistically: %+v", snap.Messages)
	}
	<-sender.done
	if sender.calls.Load() != 1 {
		t.Error("sender not called")
	}
}

func TestPushNewMessageOpensSession(t *testing.T) {
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{
		Structured: true,
		Records:    []chat.RawRecord{{Sender: "user", Text: "first"}},
	}}
	e, store, b := newTestEngine(fetcher, &fakeSender{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	b.Publish(bus.Event{Kind: "push.new_message", Timestamp: time.Now(), Payload: "u1"})

	waitFor(t, func() bool {
		snap, ok := store.Snapshot("u1")
		return ok && len(snap.Messages) == 1
	}, "push did not open and sync session")

	snap, _ := store.Snapshot("u1")
	if snap.User.FullName != "Ada" {
		t.Errorf("profile = %+v, want directory lookup", snap.User)
	}
}

func TestAdminEchoOnlyRefreshesOpenSessions(t *testing.T) {
	fetcher := &fakeFetcher{resp: backend.HistoryResponse{Structured: true}}
	e, store, b := newTestEngine(fetcher, &fakeSender{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	b.Publish(bus.Event{Kind: "push.admin_message_sent", Timestamp: time.Now(), Payload: "u9"})
	time.Sleep(50 * time.Millisecond)

	if store.Has("u9") {
		t.Fatal("admin echo opened a session")
	}
	if fetcher.calls.Load() != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.calls.Load())
	}
}

func TestHistoryFetchErrorKeepsMessages(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})

	inst := store.Open(chat.User{ID: "u1"})
	store.BeginLoad("u1", inst)
	store.ReplaceHistory("u1", inst, []chat.Message{
		{Sender: chat.SenderRemote, Kind: chat.KindText, Text: "hello"},
		{Sender: chat.SenderOperator, Kind: chat.KindText, Text: "hi"},
	})

	e.Refetch(context.Background(), "u1")
	waitFor(t, func() bool {
		snap, _ := store.Snapshot("u1")
		return snap.Notice != ""
	}, "notice never set after fetch failure")

	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 preserved", len(snap.Messages))
	}
	if snap.Messages[0].Text != "hello" || snap.Messages[1].Text != "hi" {
		t.Errorf("messages changed: %+v", snap.Messages)
	}
	if snap.State != chat.StateSynced {
		t.Errorf("state = %s, want %s", snap.State, chat.StateSynced)
	}
}

func TestHistoryFetchErrorOnFirstLoad(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	e, store, _ := newTestEngine(fetcher, &fakeSender{})

	e.OpenSession(context.Background(), "u1")
	waitFor(t, func() bool {
		snap, ok := store.Snapshot("u1")
		return ok && snap.Notice != ""
	}, "notice never set after fetch failure")

	snap, _ := store.Snapshot("u1")
	if len(snap.Messages) != 0 {
		t.Errorf("messages = %+v, want none", snap.Messages)
	}
	if snap.State != chat.StateIdle {
		t.Errorf("state = %s, want %s", snap.State, chat.StateIdle)
	}
}
