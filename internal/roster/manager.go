// Package roster maintains the dashboard's user list: paged fetches from
// the backend, a SQLite cache for instant startup paint, and the search
// and label operations the operator drives from the user table.
package roster

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/backend"
	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/chat"
	"github.com/mushfiqur/botadmin/internal/store"
)

// EventUpdated fires whenever the visible roster or stats change.
const EventUpdated = "roster.updated"

// DefaultPageSize matches the backend's dashboard page size.
const DefaultPageSize = 50

// Labels are the operator-assignable user labels, in menu order.
var Labels = []string{"None", "Register", "Depositor", "Withdrawal", "VIP"}

// Backend is the slice of the API client the roster needs.
type Backend interface {
	Users(ctx context.Context, page, pageSize int) (backend.UsersPage, error)
	Stats(ctx context.Context) (backend.Stats, error)
	Broadcast(ctx context.Context, text string) error
	DirectSend(ctx context.Context, userID, text string) error
	SetLabel(ctx context.Context, userID, label string) error
	InviteLink(ctx context.Context) (string, error)
}

// Manager owns roster state. All reads return copies; the TUI never holds
// a reference into the manager's internals.
type Manager struct {
	client Backend
	cache  *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.RWMutex
	users    []chat.User
	known    map[string]chat.User
	page     int
	pageSize int
	total    int
	stats    *backend.Stats
	search   string
	joinDate string
	invite   string

	cancel context.CancelFunc
}

func NewManager(client Backend, cache *store.DB, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		client:   client,
		cache:    cache,
		bus:      b,
		logger:   logger,
		known:    make(map[string]chat.User),
		page:     1,
		pageSize: DefaultPageSize,
	}
}

// Start paints from cache, loads fresh data, and keeps the roster in step
// with join notifications until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.LoadFromCache()
	ch, unsub := m.bus.Subscribe("push.new_user_joined", 64)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				if err := m.LoadPage(ctx, 1); err != nil {
					m.logger.Warn("roster refresh after join failed", zap.Error(err))
				}
				if err := m.RefreshStats(ctx); err != nil {
					m.logger.Warn("stats refresh after join failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := m.LoadPage(ctx, 1); err != nil {
			m.logger.Warn("initial roster load failed", zap.Error(err))
		}
		if err := m.RefreshStats(ctx); err != nil {
			m.logger.Warn("initial stats load failed", zap.Error(err))
		}
	}()
}

// Stop stops the join subscription.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// LoadFromCache paints the last known roster and stats before the first
// network round trip completes.
func (m *Manager) LoadFromCache() {
	if m.cache == nil {
		return
	}
	users, err := m.cache.ListUsers(m.pageSize, 0)
	if err != nil {
		m.logger.Warn("roster cache read failed", zap.Error(err))
		return
	}
	stats, err := m.cache.LatestStats()
	if err != nil {
		m.logger.Warn("stats cache read failed", zap.Error(err))
	}

	m.mu.Lock()
	if len(m.users) == 0 {
		m.users = users
		for _, u := range users {
			m.known[u.ID] = u
		}
	}
	if m.stats == nil && stats != nil {
		m.stats = stats
	}
	m.mu.Unlock()
	m.publish()
}

// LoadPage fetches one roster page from the backend and caches it.
func (m *Manager) LoadPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	resp, err := m.client.Users(ctx, page, m.pageSize)
	if err != nil {
		return err
	}

	users := make([]chat.User, 0, len(resp.Users))
	for _, w := range resp.Users {
		users = append(users, w.ToUser())
	}

	m.mu.Lock()
	m.users = users
	m.page = page
	m.total = resp.Total
	for _, u := range users {
		m.known[u.ID] = u
	}
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.UpsertUsers(users); err != nil {
			m.logger.Warn("roster cache write failed", zap.Error(err))
		}
	}
	m.publish()
	return nil
}

// RefreshStats fetches and caches the headline counters.
func (m *Manager) RefreshStats(ctx context.Context) error {
	stats, err := m.client.Stats(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.stats = &stats
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.SaveStats(stats); err != nil {
			m.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	m.publish()
	return nil
}

// Stats returns the latest known counters, possibly from cache.
func (m *Manager) Stats() (backend.Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stats == nil {
		return backend.Stats{}, false
	}
	return *m.stats, true
}

// Page returns the current page number and total user count.
func (m *Manager) Page() (page, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.page, m.total
}

// SetSearch filters the visible roster by name, username, or ID.
func (m *Manager) SetSearch(q string) {
	m.mu.Lock()
	m.search = strings.ToLower(strings.TrimSpace(q))
	m.mu.Unlock()
	m.publish()
}

// SetJoinDateFilter keeps only users who joined on the given date
// (YYYY-MM-DD prefix match). Empty clears the filter.
func (m *Manager) SetJoinDateFilter(date string) {
	m.mu.Lock()
	m.joinDate = strings.TrimSpace(date)
	m.mu.Unlock()
	m.publish()
}

// Filtered returns the current page with search and join-date filters
// applied.
func (m *Manager) Filtered() []chat.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]chat.User, 0, len(m.users))
	for _, u := range m.users {
		if m.joinDate != "" && !strings.HasPrefix(u.JoinDate, m.joinDate) {
			continue
		}
		if m.search != "" && !matches(u, m.search) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func matches(u chat.User, q string) bool {
	return strings.Contains(strings.ToLower(u.FullName), q) ||
		strings.Contains(strings.ToLower(u.Username), q) ||
		strings.Contains(u.ID, q)
}

// Lookup resolves a user ID to a profile snapshot. It checks everything
// the manager has ever seen this run, not just the visible page.
func (m *Manager) Lookup(userID string) (chat.User, bool) {
	m.mu.RLock()
	u, ok := m.known[userID]
	m.mu.RUnlock()
	if ok {
		return u, true
	}
	if m.cache == nil {
		return chat.User{}, false
	}
	// Cold lookup against the cache covers users from earlier runs.
	users, err := m.cache.ListUsers(1<<20, 0)
	if err != nil {
		return chat.User{}, false
	}
	for _, cu := range users {
		if cu.ID == userID {
			m.mu.Lock()
			m.known[userID] = cu
			m.mu.Unlock()
			return cu, true
		}
	}
	return chat.User{}, false
}

// SetLabel assigns a label on the backend and mirrors it locally.
func (m *Manager) SetLabel(ctx context.Context, userID, label string) error {
	if err := m.client.SetLabel(ctx, userID, label); err != nil {
		return err
	}

	m.mu.Lock()
	for i := range m.users {
		if m.users[i].ID == userID {
			m.users[i].Label = label
		}
	}
	if u, ok := m.known[userID]; ok {
		u.Label = label
		m.known[userID] = u
	}
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.SetLabel(userID, label); err != nil {
			m.logger.Warn("label cache write failed", zap.Error(err))
		}
	}
	m.publish()
	return nil
}

// Broadcast sends a message to every bot user.
func (m *Manager) Broadcast(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return m.client.Broadcast(ctx, text)
}

// DirectSend messages one user without opening a chat session.
func (m *Manager) DirectSend(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return m.client.DirectSend(ctx, userID, text)
}

// InviteLink returns the channel invite link, fetching it once per run.
func (m *Manager) InviteLink(ctx context.Context) (string, error) {
	m.mu.RLock()
	cached := m.invite
	m.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	link, err := m.client.InviteLink(ctx)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.invite = link
	m.mu.Unlock()
	return link, nil
}

func (m *Manager) publish() {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{Kind: EventUpdated, Timestamp: time.Now()})
}
