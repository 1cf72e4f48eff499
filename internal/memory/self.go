package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/recallbox/recallbox/internal/store"
)

// The bot keeps its own evolving profile under (platform, "ai", botName) so
// it can carry self-observations across sessions.
const selfProfileKey = "self_profile"

// SelfProfile is the bot's own personality document.
type SelfProfile struct {
	Summary          string         `json:"personality_summary,omitempty"`
	Traits           map[string]any `json:"personality_traits,omitempty"`
	SelfObservations []string       `json:"self_observations,omitempty"`
	FirstAwareness   string         `json:"first_awareness,omitempty"`
	LastUpdated      string         `json:"last_updated,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (m *Manager) selfNamespace() store.Namespace {
	return store.Namespace{m.platform, "ai", m.botName}
}

// SaveSelfProfile merges the given fields into the bot's own profile.
// Observations append rather than replace; first_awareness is set once.
func (m *Manager) SaveSelfProfile(ctx context.Context, summary string, traits map[string]any, observations []string, metadata map[string]any) error {
	ns := m.selfNamespace()
	doc, err := m.loadDoc(ctx, ns, selfProfileKey)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if summary != "" {
		doc["personality_summary"] = summary
	}
	mergeField(doc, "personality_traits", traits)
	mergeField(doc, "metadata", metadata)
	if len(observations) > 0 {
		existing, _ := doc["self_observations"].([]any)
		for _, o := range observations {
			existing = append(existing, o)
		}
		doc["self_observations"] = existing
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, ok := doc["first_awareness"]; !ok {
		doc["first_awareness"] = now
	}
	doc["last_updated"] = now

	return m.db.Put(ctx, ns, selfProfileKey, doc, nil)
}

// GetSelfProfile returns the bot's own profile, or nil, nil when none
// exists yet.
func (m *Manager) GetSelfProfile(ctx context.Context) (*SelfProfile, error) {
	doc, err := m.loadDoc(ctx, m.selfNamespace(), selfProfileKey)
	if err != nil || doc == nil {
		return nil, err
	}
	var p SelfProfile
	if err := decodeDoc(doc, &p); err != nil {
		return nil, fmt.Errorf("self profile: %w", err)
	}
	return &p, nil
}

// AddSelfObservation records one observation about the bot's own behavior,
// both as a standalone memory record and appended to the profile's
// observation list.
func (m *Manager) AddSelfObservation(ctx context.Context, observation string, importance int, tags []string) error {
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}
	if tags == nil {
		tags = []string{}
	}

	ns := m.selfNamespace()
	key := "self_observation_" + m.nextStamp()
	doc := map[string]any{
		"content":    observation,
		"importance": importance,
		"tags":       tags,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.db.Put(ctx, ns, key, doc, nil); err != nil {
		return err
	}
	return m.SaveSelfProfile(ctx, "", nil, []string{observation}, nil)
}

// SelfContext renders the bot's own profile for system-prompt injection.
// Only the five most recent observations are included.
func (m *Manager) SelfContext(ctx context.Context) (string, error) {
	profile, err := m.GetSelfProfile(ctx)
	if err != nil {
		return "", err
	}
	if profile == nil {
		return "", nil
	}

	var b strings.Builder
	if profile.Summary != "" {
		fmt.Fprintf(&b, "Your evolving personality: %s\n", profile.Summary)
	}
	if len(profile.Traits) > 0 {
		fmt.Fprintf(&b, "Your traits: %s\n", formatTraits(profile.Traits))
	}
	if n := len(profile.SelfObservations); n > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Your self-observations:\n")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, o := range profile.SelfObservations[start:] {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
