// Package memory is the long-term memory layer for a conversational
// agent. It maps contact profiles, individual memory entries, and the
// bot's own evolving profile onto the namespaced record store, and
// renders a readable context block for prompt injection.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recallbox/recallbox/internal/store"
)

// Memory type tags. Free-form strings are accepted; these are the
// conventional values.
const (
	TypeFact        = "fact"
	TypePreference  = "preference"
	TypeEvent       = "event"
	TypePersonality = "personality"
)

// profileKey is the reserved key for the single profile document per
// contact namespace.
const profileKey = "profile"

// Manager composes namespaces and keys on top of one shared store.DB.
// Managers hold no storage resource of their own; constructing several
// around the same DB is safe.
type Manager struct {
	db       *store.DB
	platform string
	botName  string
	log      *slog.Logger

	mu        sync.Mutex
	lastKeyUs int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithPlatform overrides the first namespace segment (default "whatsapp").
func WithPlatform(platform string) Option {
	return func(m *Manager) { m.platform = platform }
}

// WithBotName sets the bot identity used for the self-profile namespace.
func WithBotName(name string) Option {
	return func(m *Manager) { m.botName = name }
}

// WithLogger overrides the logger used to report skipped documents.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager wraps db with the memory façade.
func NewManager(db *store.DB, opts ...Option) *Manager {
	m := &Manager{
		db:       db,
		platform: "whatsapp",
		botName:  "assistant",
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// contactNamespace returns the canonical namespace for a contact or group:
// (platform, "user"|"group", contactID).
func (m *Manager) contactNamespace(contactID string, isGroup bool) store.Namespace {
	chatType := "user"
	if isGroup {
		chatType = "group"
	}
	return store.Namespace{m.platform, chatType, contactID}
}

// Profile is the per-contact personality document stored under the
// reserved profile key.
type Profile struct {
	Summary          string         `json:"personality_summary,omitempty"`
	Traits           map[string]any `json:"personality_traits,omitempty"`
	IsGroup          bool           `json:"is_group"`
	FirstInteraction string         `json:"first_interaction,omitempty"`
	LastInteraction  string         `json:"last_interaction,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// SaveContactProfile merges the given fields into the contact's profile
// document and writes it back. New fields override same-named old fields;
// unspecified fields are preserved. first_interaction is set only on the
// first save, last_interaction on every save.
func (m *Manager) SaveContactProfile(ctx context.Context, contactID string, isGroup bool, summary string, traits, metadata map[string]any) error {
	ns := m.contactNamespace(contactID, isGroup)
	doc, err := m.loadDoc(ctx, ns, profileKey)
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

	now := time.Now().UTC().Format(time.RFC3339)
	if _, ok := doc["first_interaction"]; !ok {
		doc["first_interaction"] = now
	}
	doc["last_interaction"] = now
	doc["is_group"] = isGroup

	return m.db.Put(ctx, ns, profileKey, doc, nil)
}

// ContactProfile returns the contact's profile, or nil, nil when none has
// been saved yet.
func (m *Manager) ContactProfile(ctx context.Context, contactID string, isGroup bool) (*Profile, error) {
	ns := m.contactNamespace(contactID, isGroup)
	doc, err := m.loadDoc(ctx, ns, profileKey)
	if err != nil || doc == nil {
		return nil, err
	}
	var p Profile
	if err := decodeDoc(doc, &p); err != nil {
		return nil, fmt.Errorf("profile for %s: %w", contactID, err)
	}
	return &p, nil
}

// Memory is one remembered item about a contact.
type Memory struct {
	Key        string   `json:"-"`
	Content    string   `json:"content"`
	Type       string   `json:"memory_type"`
	Importance int      `json:"importance"`
	Tags       []string `json:"tags"`
	CreatedAt  string   `json:"created_at"`
}

// AddMemory stores a memory for a contact and returns its generated key,
// shaped memory_<type>_<YYYYMMDD_HHMMSS_microseconds>. Keys are issued
// monotonically so two calls within the same microsecond never collide.
// Importance is clamped to the 1..10 scale.
func (m *Manager) AddMemory(ctx context.Context, contactID string, isGroup bool, content, memoryType string, importance int, tags []string) (string, error) {
	if memoryType == "" {
		memoryType = TypeFact
	}
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}
	if tags == nil {
		tags = []string{}
	}

	ns := m.contactNamespace(contactID, isGroup)
	key := "memory_" + memoryType + "_" + m.nextStamp()
	doc := map[string]any{
		"content":     content,
		"memory_type": memoryType,
		"importance":  importance,
		"tags":        tags,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.db.Put(ctx, ns, key, doc, nil); err != nil {
		return "", err
	}
	return key, nil
}

// FindRelevantMemories runs a ranked full-text search over the contact's
// namespace and returns the hits as memory documents, most relevant first.
// Records that are not memory documents (the profile, say) or that fail to
// parse are skipped, not fatal.
func (m *Manager) FindRelevantMemories(ctx context.Context, contactID string, isGroup bool, query string, limit int) ([]Memory, error) {
	ns := m.contactNamespace(contactID, isGroup)
	results, err := m.db.Search(ctx, ns, query, limit)
	if err != nil {
		return nil, err
	}
	memories := make([]Memory, 0, len(results))
	for _, r := range results {
		mem, ok := m.parseMemory(r.Key, r.Value)
		if !ok {
			continue
		}
		memories = append(memories, mem)
		if len(memories) == limit {
			break
		}
	}
	return memories, nil
}

// RecentMemories returns up to limit stored memories for the contact,
// highest importance first. This is the no-query path used for context
// building.
func (m *Manager) RecentMemories(ctx context.Context, contactID string, isGroup bool, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 5
	}
	ns := m.contactNamespace(contactID, isGroup)
	// Fetch a generous page; memories are filtered and re-ranked by
	// importance below.
	records, err := m.db.List(ctx, ns, "memory_", 100, 0)
	if err != nil {
		return nil, err
	}
	var memories []Memory
	for _, r := range records {
		mem, ok := m.parseMemory(r.Key, r.Value)
		if !ok {
			continue
		}
		memories = append(memories, mem)
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Importance > memories[j].Importance
	})
	if len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// ContactContext renders the contact's profile and top memories into a
// single human-readable block for prompt injection. With no profile and no
// memories it returns an empty string, never an error.
func (m *Manager) ContactContext(ctx context.Context, contactID string, isGroup bool, maxMemories int) (string, error) {
	profile, err := m.ContactProfile(ctx, contactID, isGroup)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if profile != nil {
		fmt.Fprintf(&b, "Contact: %s\n", contactID)
		if profile.IsGroup {
			b.WriteString("Type: Group chat\n")
		} else {
			b.WriteString("Type: Individual chat\n")
		}
		if profile.Summary != "" {
			fmt.Fprintf(&b, "Personality: %s\n", profile.Summary)
		}
		if len(profile.Traits) > 0 {
			fmt.Fprintf(&b, "Traits: %s\n", formatTraits(profile.Traits))
		}
	}

	memories, err := m.RecentMemories(ctx, contactID, isGroup, maxMemories)
	if err != nil {
		return "", err
	}
	if len(memories) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Relevant memories:\n")
		for _, mem := range memories {
			fmt.Fprintf(&b, "- %s\n", mem.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// nextStamp issues a monotonically increasing microsecond timestamp
// rendered as YYYYMMDD_HHMMSS_ffffff.
func (m *Manager) nextStamp() string {
	m.mu.Lock()
	us := time.Now().UTC().UnixMicro()
	if us <= m.lastKeyUs {
		us = m.lastKeyUs + 1
	}
	m.lastKeyUs = us
	m.mu.Unlock()

	t := time.UnixMicro(us).UTC()
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), us%1_000_000)
}

func (m *Manager) parseMemory(key string, doc map[string]any) (Memory, bool) {
	if _, ok := doc["memory_type"]; !ok {
		return Memory{}, false
	}
	var mem Memory
	if err := decodeDoc(doc, &mem); err != nil {
		m.log.Warn("skipping malformed memory document", "key", key, "error", err)
		return Memory{}, false
	}
	mem.Key = key
	return mem, true
}

// loadDoc fetches the raw value document at (ns, key), nil when absent.
func (m *Manager) loadDoc(ctx context.Context, ns store.Namespace, key string) (map[string]any, error) {
	rec, err := m.db.Get(ctx, ns, key)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Value, nil
}

// mergeField unions updates into the named sub-map of doc, updates winning
// on overlapping keys.
func mergeField(doc map[string]any, field string, updates map[string]any) {
	if len(updates) == 0 {
		return
	}
	existing, _ := doc[field].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range updates {
		existing[k] = v
	}
	doc[field] = existing
}

// decodeDoc converts a raw value document into a typed struct via JSON.
func decodeDoc(doc map[string]any, out any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func formatTraits(traits map[string]any) string {
	keys := make([]string, 0, len(traits))
	for k := range traits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, traits[k]))
	}
	return strings.Join(parts, ", ")
}
