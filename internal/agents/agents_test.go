package agents

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestStoreGetReturnsDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	cfg, err := store.Get(context.Background(), "org-1", "agent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.Name != defaultName || cfg.Paused || cfg.UsesAssistant() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestStoreSetAndPause(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	in := &Settings{OrgID: "org-1", AgentID: "agent-1", Name: "Lojinha", AssistantID: "asst_123", Timezone: "America/Sao_Paulo", NotifyEmails: []string{"ops@example.com"}}
	if err := store.Set(ctx, in); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("agents:settings:org-1:agent-1") {
		t.Fatalf("expected redis key to be written")
	}

	paused, err := store.SetPaused(ctx, "org-1", "agent-1", true)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !paused.Paused || paused.AssistantID != "asst_123" {
		t.Fatalf("pause lost fields: %+v", paused)
	}

	got, err := store.Get(ctx, "org-1", "agent-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Paused || len(got.NotifyEmails) != 1 {
		t.Fatalf("unexpected settings: %+v", got)
	}
}

func TestStoreGetCorruptPayload(t *testing.T) {
	store, mr := newTestStore(t)
	if err := mr.Set("agents:settings:org-1:agent-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), "org-1", "agent-1"); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestSettingsLocation(t *testing.T) {
	cases := []struct {
		tz   string
		want string
	}{
		{"America/Sao_Paulo", "America/Sao_Paulo"},
		{"", "UTC"},
		{"Not/AZone", "UTC"},
	}
	for _, tc := range cases {
		s := &Settings{Timezone: tc.tz}
		if got := s.Location().String(); got != tc.want {
			t.Errorf("Location(%q) = %s, want %s", tc.tz, got, tc.want)
		}
	}
	var nilSettings *Settings
	if nilSettings.Location() != time.UTC {
		t.Errorf("nil settings should resolve to UTC")
	}
}

func TestMemoryStorePause(t *testing.T) {
	m := NewMemoryStore(Settings{OrgID: "o", AgentID: "a", Name: "Shop"})
	cfg, err := m.SetPaused(context.Background(), "o", "a", true)
	if err != nil || !cfg.Paused || cfg.Name != "Shop" {
		t.Fatalf("unexpected: %+v %v", cfg, err)
	}
}
