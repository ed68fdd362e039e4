package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wolfman30/storefront-ai/internal/messaging/gatewayclient"
	"github.com/wolfman30/storefront-ai/pkg/logging"
)

var ErrSessionNotFound = errors.New("messaging: session not found")

// Session binds a gateway session to the tenant agent that answers it.
type Session struct {
	ID      string `json:"session_id"`
	OrgID   string `json:"org_id"`
	AgentID string `json:"agent_id"`
	State   string `json:"state,omitempty"`
}

// SessionResolver maps a session to its tenant.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (Session, error)
}

type sessionGateway interface {
	StartSession(ctx context.Context, sessionID string) (*gatewayclient.SessionStatus, error)
	ReconnectSession(ctx context.Context, sessionID string) (*gatewayclient.SessionStatus, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// SessionRegistry owns the set of live sessions. The gateway is optional;
// without it the registry only tracks bindings.
type SessionRegistry struct {
	gateway sessionGateway
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[string]Session
}

var _ SessionResolver = (*SessionRegistry)(nil)

func NewSessionRegistry(gateway sessionGateway, logger *logging.Logger) *SessionRegistry {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionRegistry{gateway: gateway, logger: logger, sessions: make(map[string]Session)}
}

// LoadJSON seeds bindings from {"session-id": {"org_id": "...", "agent_id": "..."}}.
func (r *SessionRegistry) LoadJSON(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var mapping map[string]Session
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return fmt.Errorf("messaging: parse session map: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range mapping {
		if id == "" || s.OrgID == "" {
			continue
		}
		s.ID = id
		if s.AgentID == "" {
			s.AgentID = "default"
		}
		if s.State == "" {
			s.State = "configured"
		}
		r.sessions[id] = s
	}
	return nil
}

// Create binds a session and starts it on the gateway.
func (r *SessionRegistry) Create(ctx context.Context, s Session) (Session, error) {
	if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.OrgID) == "" {
		return Session{}, fmt.Errorf("messaging: session id and org id required")
	}
	if s.AgentID == "" {
		s.AgentID = "default"
	}
	s.State = "configured"
	if r.gateway != nil {
		status, err := r.gateway.StartSession(ctx, s.ID)
		if err != nil {
			return Session{}, fmt.Errorf("messaging: start session: %w", err)
		}
		s.State = status.State
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.logger.Info("session registered", "session_id", s.ID, "org_id", s.OrgID, "agent_id", s.AgentID)
	return s, nil
}

// Reconnect restores a known session on the gateway.
func (r *SessionRegistry) Reconnect(ctx context.Context, sessionID string) (Session, error) {
	s, err := r.Resolve(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if r.gateway != nil {
		status, err := r.gateway.ReconnectSession(ctx, sessionID)
		if err != nil {
			return Session{}, fmt.Errorf("messaging: reconnect session: %w", err)
		}
		s.State = status.State
		r.mu.Lock()
		r.sessions[sessionID] = s
		r.mu.Unlock()
	}
	return s, nil
}

// Dispose closes the session and forgets the binding.
func (r *SessionRegistry) Dispose(ctx context.Context, sessionID string) error {
	if _, err := r.Resolve(ctx, sessionID); err != nil {
		return err
	}
	if r.gateway != nil {
		if err := r.gateway.CloseSession(ctx, sessionID); err != nil {
			return fmt.Errorf("messaging: close session: %w", err)
		}
	}
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	r.logger.Info("session disposed", "session_id", sessionID)
	return nil
}

func (r *SessionRegistry) Resolve(_ context.Context, sessionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// List returns sessions ordered by id.
func (r *SessionRegistry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
