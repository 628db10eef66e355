package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State of a browsing session. Expiry and logout both collapse straight back
// to Unauthenticated; the transition itself is visible through Events.
type State string

const (
	StateUnauthenticated State = "UNAUTHENTICATED"
	StateAuthenticated   State = "AUTHENTICATED"
)

type EventKind string

const (
	EventLogin    EventKind = "login"
	EventLogout   EventKind = "logout"
	EventExpired  EventKind = "expired"
	EventExpiring EventKind = "expiring"
)

// Event is delivered to subscribers on every session transition, including
// transitions observed from other contexts through the broadcast channel.
type Event struct {
	Kind      EventKind  `json:"kind"`
	SessionID string     `json:"session_id"`
	Principal *Principal `json:"principal,omitempty"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
}

// EventsChannel carries session transitions between contexts. A logout
// published by one context deauthenticates every other context holding the
// same session.
const EventsChannel = "session:events"

type trackedSession struct {
	principal *Principal
	expiresAt time.Time
	warned    bool
}

// Manager owns authenticated-session state: it validates bearer credentials,
// persists them per session, watches for approaching expiry and fans
// transitions out to subscribers.
type Manager struct {
	store    CredentialStore
	client   *redis.Client
	secret   []byte
	instance string

	checkInterval time.Duration
	warnThreshold time.Duration

	mu      sync.Mutex
	tracked map[string]*trackedSession
	subs    map[int]chan Event
	nextSub int
}

func NewManager(store CredentialStore, client *redis.Client, secret []byte) *Manager {
	return &Manager{
		store:         store,
		client:        client,
		secret:        secret,
		instance:      uuid.NewString(),
		checkInterval: time.Minute,
		warnThreshold: 5 * time.Minute,
		tracked:       make(map[string]*trackedSession),
		subs:          make(map[int]chan Event),
	}
}

// Login stores the credential and transitions the session to Authenticated.
func (m *Manager) Login(ctx context.Context, sessionID, credential string) (*Principal, error) {
	principal, expiresAt, err := ParseCredential(credential, m.secret)
	if err != nil {
		return nil, err
	}

	ttl := time.Until(expiresAt)
	if errSet := m.store.Set(ctx, sessionID, credential, ttl); errSet != nil {
		return nil, errSet
	}
	if principal.Admin {
		if errAdmin := m.store.SetAdmin(ctx, sessionID, ttl); errAdmin != nil {
			log.Printf("failed to record admin marker for session %s: %v", sessionID, errAdmin)
		}
	}

	m.mu.Lock()
	m.tracked[sessionID] = &trackedSession{principal: principal, expiresAt: expiresAt}
	m.mu.Unlock()

	m.broadcast(ctx, Event{Kind: EventLogin, SessionID: sessionID, Principal: principal, ExpiresAt: expiresAt})
	return principal, nil
}

// CheckAuth reads the stored credential and confirms the session state. An
// expired credential forces a logout: the credential is cleared and the
// session reports Unauthenticated.
func (m *Manager) CheckAuth(ctx context.Context, sessionID string) (State, *Principal, error) {
	credential, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNoCredential) {
		return StateUnauthenticated, nil, nil
	}
	if err != nil {
		return StateUnauthenticated, nil, err
	}

	principal, expiresAt, errParse := ParseCredential(credential, m.secret)
	if errParse != nil {
		if errors.Is(errParse, ErrExpiredCredential) {
			m.forceLogout(ctx, sessionID, EventExpired)
			return StateUnauthenticated, nil, nil
		}
		// An unreadable credential is cleared the same way, never surfaced.
		m.forceLogout(ctx, sessionID, EventLogout)
		return StateUnauthenticated, nil, nil
	}

	m.mu.Lock()
	m.tracked[sessionID] = &trackedSession{principal: principal, expiresAt: expiresAt}
	m.mu.Unlock()

	return StateAuthenticated, principal, nil
}

// Credential returns the raw bearer credential for an authenticated session,
// for forwarding to upstream APIs.
func (m *Manager) Credential(ctx context.Context, sessionID string) (string, error) {
	return m.store.Get(ctx, sessionID)
}

// Logout clears the stored credential and related markers and notifies every
// context holding this session.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.tracked, sessionID)
	m.mu.Unlock()

	m.broadcast(ctx, Event{Kind: EventLogout, SessionID: sessionID})
	return nil
}

// Subscribe registers an observer for session transitions. The returned
// function unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 8)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
	}
}

// Run drives the periodic expiry check and the cross-context event
// subscription until the context is cancelled. The expiry check warns
// subscribers while the credential is still valid but close to expiring, and
// forces a logout once it is past due.
func (m *Manager) Run(ctx context.Context) {
	sub := m.client.Subscribe(ctx, EventsChannel)
	defer sub.Close()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepExpiring(ctx)
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			m.handleRemoteEvent(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) sweepExpiring(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	type pending struct {
		sessionID string
		event     Event
		expired   bool
	}
	var actions []pending
	for sessionID, session := range m.tracked {
		remaining := session.expiresAt.Sub(now)
		switch {
		case remaining <= 0:
			actions = append(actions, pending{sessionID: sessionID, expired: true})
		case remaining < m.warnThreshold && !session.warned:
			session.warned = true
			actions = append(actions, pending{sessionID: sessionID, event: Event{
				Kind:      EventExpiring,
				SessionID: sessionID,
				Principal: session.principal,
				ExpiresAt: session.expiresAt,
			}})
		}
	}
	m.mu.Unlock()

	for _, a := range actions {
		if a.expired {
			m.forceLogout(ctx, a.sessionID, EventExpired)
			continue
		}
		m.broadcast(ctx, a.event)
	}
}

func (m *Manager) forceLogout(ctx context.Context, sessionID string, kind EventKind) {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		log.Printf("failed to clear credential for session %s: %v", sessionID, err)
	}

	m.mu.Lock()
	delete(m.tracked, sessionID)
	m.mu.Unlock()

	m.broadcast(ctx, Event{Kind: kind, SessionID: sessionID})
}

type wireEvent struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// broadcast delivers the event to local subscribers and publishes it for
// other contexts.
func (m *Manager) broadcast(ctx context.Context, event Event) {
	m.deliver(event)

	payload, err := json.Marshal(wireEvent{Origin: m.instance, Event: event})
	if err != nil {
		log.Printf("failed to marshal session event: %v", err)
		return
	}
	if errPub := m.client.Publish(ctx, EventsChannel, payload).Err(); errPub != nil {
		log.Printf("failed to publish session event: %v", errPub)
	}
}

func (m *Manager) handleRemoteEvent(payload string) {
	var wire wireEvent
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		log.Printf("bad session event payload: %v", err)
		return
	}
	if wire.Origin == m.instance {
		return // already delivered locally
	}

	if wire.Event.Kind == EventLogout || wire.Event.Kind == EventExpired {
		m.mu.Lock()
		delete(m.tracked, wire.Event.SessionID)
		m.mu.Unlock()
	}

	m.deliver(wire.Event)
}

func (m *Manager) deliver(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
			// Slow subscribers drop events rather than block the manager.
		}
	}
}

// RemainingValidity reports how long the session's credential stays valid.
func (m *Manager) RemainingValidity(sessionID string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.tracked[sessionID]
	if !ok {
		return 0, false
	}
	return time.Until(session.expiresAt), true
}

// ExpiringSoon reports whether the credential is still valid but inside the
// warn threshold, so callers can prompt the user before the forced logout.
func (m *Manager) ExpiringSoon(sessionID string) bool {
	remaining, ok := m.RemainingValidity(sessionID)
	return ok && remaining > 0 && remaining < m.warnThreshold
}

// IsAdmin reads the session's flag-style admin marker.
func (m *Manager) IsAdmin(ctx context.Context, sessionID string) bool {
	return m.store.IsAdmin(ctx, sessionID)
}
