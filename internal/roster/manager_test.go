package roster

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/backend"
	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/store"
)

type fakeBackend struct {
	page        backend.UsersPage
	stats       backend.Stats
	invite      string
	inviteCalls atomic.Int64
	labels      map[string]string
	broadcasts  []string
	directs     []string
}

func (f *fakeBackend) Users(ctx context.Context, page, pageSize int) (backend.UsersPage, error) {
	return f.page, nil
}

func (f *fakeBackend) Stats(ctx context.Context) (backend.Stats, error) {
	return f.stats, nil
}

func (f *fakeBackend) Broadcast(ctx context.Context, text string) error {
	f.broadcasts = append(f.broadcasts, text)
	return nil
}

func (f *fakeBackend) DirectSend(ctx context.Context, userID, text string) error {
	f.directs = append(f.directs, userID+":"+text)
	return nil
}

func (f *fakeBackend) SetLabel(ctx context.Context, userID, label string) error {
	if f.labels == nil {
		f.labels = make(map[string]string)
	}
	f.labels[userID] = label
	return nil
}

func (f *fakeBackend) InviteLink(ctx context.Context) (string, error) {
	f.inviteCalls.Add(1)
	return f.invite, nil
}

func testCache(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func wirePage(users ...backend.WireUser) backend.UsersPage {
	return backend.UsersPage{Users: users, Total: len(users)}
}

func newTestManager(t *testing.T, fb *fakeBackend) *Manager {
	t.Helper()
	return NewManager(fb, testCache(t), bus.New(), zap.NewNop())
}

func TestLoadPageAndFilter(t *testing.T) {
	fb := &fakeBackend{page: wirePage(
		backend.WireUser{UserID: json.Number("1"), FullName: "Ada Lovelace", Username: "ada", JoinDate: "2024-05-01"},
		backend.WireUser{UserID: json.Number("2"), FullName: "Bob Odd", Username: "bob", JoinDate: "2024-05-02"},
	)}
	m := newTestManager(t, fb)

	if err := m.LoadPage(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if got := len(m.Filtered()); got != 2 {
		t.Fatalf("filtered = %d, want 2", got)
	}

	m.SetSearch("ada")
	got := m.Filtered()
	if len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("search result = %+v", got)
	}

	m.SetSearch("")
	m.SetJoinDateFilter("2024-05-02")
	got = m.Filtered()
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("join date result = %+v", got)
	}
}

func TestLookupFallsBackToCache(t *testing.T) {
	fb := &fakeBackend{page: wirePage(
		backend.WireUser{UserID: json.Number("1"), FullName: "Ada"},
	)}
	m := newTestManager(t, fb)
	if err := m.LoadPage(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	// Fresh manager over the same cache simulates a restart.
	m2 := NewManager(fb, m.cache, bus.New(), zap.NewNop())
	u, ok := m2.Lookup("1")
	if !ok || u.FullName != "Ada" {
		t.Fatalf("Lookup = %+v, %v", u, ok)
	}
	if _, ok := m2.Lookup("999"); ok {
		t.Fatal("unknown user resolved")
	}
}

func TestSetLabelMirrorsLocally(t *testing.T) {
	fb := &fakeBackend{page: wirePage(
		backend.WireUser{UserID: json.Number("1"), FullName: "Ada"},
	)}
	m := newTestManager(t, fb)
	if err := m.LoadPage(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if err := m.SetLabel(context.Background(), "1", "VIP"); err != nil {
		t.Fatal(err)
	}
	if fb.labels["1"] != "VIP" {
		t.Error("backend not called")
	}
	if got := m.Filtered(); got[0].Label != "VIP" {
		t.Errorf("local label = %q", got[0].Label)
	}
	if u, _ := m.Lookup("1"); u.Label != "VIP" {
		t.Errorf("lookup label = %q", u.Label)
	}
}

func TestBroadcastSkipsEmpty(t *testing.T) {
	fb := &fakeBackend{}
	m := newTestManager(t, fb)

	if err := m.Broadcast(context.Background(), "  "); err != nil {
		t.Fatal(err)
	}
	if len(fb.broadcasts) != 0 {
		t.Error("empty broadcast went out")
	}
	if err := m.Broadcast(context.Background(), "hello all"); err != nil {
		t.Fatal(err)
	}
	if len(fb.broadcasts) != 1 || fb.broadcasts[0] != "hello all" {
		t.Errorf("broadcasts = %v", fb.broadcasts)
	}
}

func TestInviteLinkCached(t *testing.T) {
	fb := &fakeBackend{invite: "https://t.example/join/abc"}
	m := newTestManager(t, fb)

	for i := 0; i < 3; i++ {
		link, err := m.InviteLink(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if link != "https://t.example/join/abc" {
			t.Fatalf("link = %q", link)
		}
	}
	if got := fb.inviteCalls.Load(); got != 1 {
		t.Errorf("invite fetched %d times, want 1", got)
	}
}

func TestLoadFromCachePaintsBeforeNetwork(t *testing.T) {
	fb := &fakeBackend{page: wirePage(
		backend.WireUser{UserID: json.Number("1"), FullName: "Ada"},
	)}
	m := newTestManager(t, fb)
	if err := m.LoadPage(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := m.RefreshStats(context.Background()); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(fb, m.cache, bus.New(), zap.NewNop())
	m2.LoadFromCache()
	if got := len(m2.Filtered()); got != 1 {
		t.Errorf("cached roster = %d users, want 1", got)
	}
	if _, ok := m2.Stats(); !ok {
		t.Error("cached stats missing")
	}
}
