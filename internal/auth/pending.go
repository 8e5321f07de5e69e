package auth

import (
	"sync"
	"time"

	"github.com/vrceventbot/vrceventbot/internal/models"
	"github.com/vrceventbot/vrceventbot/internal/provider"
)

// PendingSession is a login that passed the password check and waits for a
// second factor. It lives in memory only and is dropped once verified.
type PendingSession struct {
	UserID    string
	Challenge models.AuthOutcome
	CreatedAt time.Time

	username string
	password string
	session  provider.Session

	// mu serializes code submissions; one session has one cookie jar.
	mu          sync.Mutex
	done        bool
	displayName string
}

// Session returns the underlying provider session.
func (p *PendingSession) Session() provider.Session {
	return p.session
}

// Completed reports whether a code has been accepted.
func (p *PendingSession) Completed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// PendingRegistry holds at most one pending session per Discord user. A zero
// TTL keeps entries until they are replaced, verified or the process exits.
type PendingRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*PendingSession
}

// NewPendingRegistry creates a registry with the given expiry.
func NewPendingRegistry(ttl time.Duration) *PendingRegistry {
	return &PendingRegistry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*PendingSession),
	}
}

// Put stores p, replacing any earlier pending login of the same user.
func (r *PendingRegistry) Put(p *PendingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p.UserID] = p
}

// Get returns the live pending session for userID.
func (r *PendingRegistry) Get(userID string) (*PendingSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	if r.expired(p) {
		delete(r.entries, userID)
		return nil, false
	}
	return p, true
}

// Remove drops the entry for userID. When p is non-nil only that exact
// session is removed, so a newer login is left alone.
func (r *PendingRegistry) Remove(userID string, p *PendingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[userID]; ok && (p == nil || cur == p) {
		delete(r.entries, userID)
	}
}

// Prune deletes expired entries and returns how many were removed.
func (r *PendingRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.entries {
		if r.expired(p) {
			delete(r.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *PendingRegistry) expired(p *PendingSession) bool {
	return r.ttl > 0 && r.now().Sub(p.CreatedAt) > r.ttl
}
