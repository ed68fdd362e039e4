// Package agents stores per-tenant assistant settings.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultName     = "Store Assistant"
	defaultTimezone = "America/Sao_Paulo"
)

// Settings describes how an organization's agent behaves.
type Settings struct {
	OrgID        string   `json:"org_id"`
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Persona      string   `json:"persona"`
	AssistantID  string   `json:"assistant_id,omitempty"`
	Model        string   `json:"model,omitempty"`
	Paused       bool     `json:"paused"`
	Timezone     string   `json:"timezone"`
	NotifyEmails []string `json:"notify_emails,omitempty"`
}

// DefaultSettings returns the settings used when none were saved.
func DefaultSettings(orgID, agentID string) *Settings {
	return &Settings{
		OrgID:    orgID,
		AgentID:  agentID,
		Name:     defaultName,
		Persona:  "You are a friendly sales assistant for an online store. Keep replies short and clear.",
		Timezone: defaultTimezone,
	}
}

// Location resolves the agent's timezone, falling back to UTC.
func (s *Settings) Location() *time.Location {
	if s == nil || strings.TrimSpace(s.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesAssistant reports whether the agent is bound to an external assistant.
func (s *Settings) UsesAssistant() bool {
	return s != nil && strings.TrimSpace(s.AssistantID) != ""
}

// Provider loads agent settings.
type Provider interface {
	Get(ctx context.Context, orgID, agentID string) (*Settings, error)
}

// Store persists agent settings as JSON documents in Redis.
type Store struct {
	redis *redis.Client
}

var _ Provider = (*Store)(nil)

func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("agents: redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(orgID, agentID string) string {
	return fmt.Sprintf("agents:settings:%s:%s", orgID, agentID)
}

// Get retrieves settings, returning defaults if none are stored.
func (s *Store) Get(ctx context.Context, orgID, agentID string) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(orgID, agentID)).Bytes()
	if err == redis.Nil {
		return DefaultSettings(orgID, agentID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("agents: get settings: %w", err)
	}
	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("agents: unmarshal settings: %w", err)
	}
	return &cfg, nil
}

// Set saves settings.
func (s *Store) Set(ctx context.Context, cfg *Settings) error {
	if cfg == nil || cfg.OrgID == "" || cfg.AgentID == "" {
		return fmt.Errorf("agents: org and agent id required")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("agents: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.OrgID, cfg.AgentID), data, 0).Err(); err != nil {
		return fmt.Errorf("agents: set settings: %w", err)
	}
	return nil
}

// SetPaused toggles whether the agent replies to customers.
func (s *Store) SetPaused(ctx context.Context, orgID, agentID string, paused bool) (*Settings, error) {
	cfg, err := s.Get(ctx, orgID, agentID)
	if err != nil {
		return nil, fmt.Errorf("agents: set paused: %w", err)
	}
	cfg.Paused = paused
	if err := s.Set(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MemoryStore is an in-process Provider used by the CLI and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Settings
}

var _ Provider = (*MemoryStore)(nil)

func NewMemoryStore(settings ...Settings) *MemoryStore {
	m := &MemoryStore{items: make(map[string]Settings)}
	for _, s := range settings {
		m.items[s.OrgID+"/"+s.AgentID] = s
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, orgID, agentID string) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.items[orgID+"/"+agentID]; ok {
		cp := s
		return &cp, nil
	}
	return DefaultSettings(orgID, agentID), nil
}

func (m *MemoryStore) Set(_ context.Context, cfg *Settings) error {
	if cfg == nil || cfg.OrgID == "" || cfg.AgentID == "" {
		return fmt.Errorf("agents: org and agent id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[cfg.OrgID+"/"+cfg.AgentID] = *cfg
	return nil
}

func (m *MemoryStore) SetPaused(ctx context.Context, orgID, agentID string, paused bool) (*Settings, error) {
	cfg, _ := m.Get(ctx, orgID, agentID)
	cfg.Paused = paused
	if err := m.Set(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
