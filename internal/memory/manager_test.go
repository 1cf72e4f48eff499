package memory

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallbox/recallbox/internal/store"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(db, opts...)
}

func TestSaveContactProfileMerges(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	err := m.SaveContactProfile(ctx, "alice", false, "friendly and curious",
		map[string]any{"humor": "dry", "formality": "low"}, nil)
	require.NoError(t, err)

	first, err := m.ContactProfile(ctx, "alice", false)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "friendly and curious", first.Summary)
	assert.NotEmpty(t, first.FirstInteraction)
	assert.Equal(t, first.FirstInteraction, first.LastInteraction)

	// Second save: empty summary preserves the old one, traits union with
	// new values winning on overlap.
	err = m.SaveContactProfile(ctx, "alice", false, "",
		map[string]any{"humor": "sarcastic", "patience": "high"}, map[string]any{"lang": "en"})
	require.NoError(t, err)

	p, err := m.ContactProfile(ctx, "alice", false)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "friendly and curious", p.Summary)
	assert.Equal(t, map[string]any{
		"humor":     "sarcastic",
		"formality": "low",
		"patience":  "high",
	}, p.Traits)
	assert.Equal(t, map[string]any{"lang": "en"}, p.Metadata)
	assert.Equal(t, first.FirstInteraction, p.FirstInteraction)
}

func TestContactProfileAbsent(t *testing.T) {
	m := newTestManager(t)
	p, err := m.ContactProfile(context.Background(), "stranger", false)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUserAndGroupProfilesAreSeparate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveContactProfile(ctx, "team", true, "chaotic group", nil, nil))

	p, err := m.ContactProfile(ctx, "team", false)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = m.ContactProfile(ctx, "team", true)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsGroup)
}

func TestAddMemoryKeyShape(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	key, err := m.AddMemory(ctx, "alice", false, "loves hiking", TypeFact, 7, []string{"hobby"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^memory_fact_\d{8}_\d{6}_\d{6}$`), key)

	// Rapid calls never collide.
	seen := map[string]bool{key: true}
	for i := 0; i < 50; i++ {
		k, err := m.AddMemory(ctx, "alice", false, "another", "", 0, nil)
		require.NoError(t, err)
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}

func TestAddMemoryDefaultsAndClamping(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	key, err := m.AddMemory(ctx, "alice", false, "something", "", 99, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "memory_fact_"))

	memories, err := m.RecentMemories(ctx, "alice", false, 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, TypeFact, memories[0].Type)
	assert.Equal(t, 10, memories[0].Importance)
	assert.Equal(t, []string{}, memories[0].Tags)
	assert.NotEmpty(t, memories[0].CreatedAt)
}

func TestFindRelevantMemories(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddMemory(ctx, "alice", false, "loves Python programming", TypeFact, 6, nil)
	require.NoError(t, err)
	_, err = m.AddMemory(ctx, "alice", false, "has two cats", TypeFact, 6, nil)
	require.NoError(t, err)
	// The profile shares the namespace but must never surface as a memory.
	require.NoError(t, m.SaveContactProfile(ctx, "alice", false, "python enthusiast", nil, nil))

	memories, err := m.FindRelevantMemories(ctx, "alice", false, "python", 5)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "loves Python programming", memories[0].Content)
}

func TestRecentMemoriesRankByImportance(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddMemory(ctx, "alice", false, "minor detail", TypeFact, 2, nil)
	require.NoError(t, err)
	_, err = m.AddMemory(ctx, "alice", false, "crucial allergy info", TypeFact, 10, nil)
	require.NoError(t, err)
	_, err = m.AddMemory(ctx, "alice", false, "middling preference", TypePreference, 5, nil)
	require.NoError(t, err)

	memories, err := m.RecentMemories(ctx, "alice", false, 2)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, "crucial allergy info", memories[0].Content)
	assert.Equal(t, "middling preference", memories[1].Content)
}

func TestMalformedMemorySkipped(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddMemory(ctx, "alice", false, "valid memory", TypeFact, 5, nil)
	require.NoError(t, err)

	// A foreign document in the same namespace that declares a memory_type
	// but has the wrong field shapes is skipped, not fatal.
	ns := m.contactNamespace("alice", false)
	err = m.db.Put(ctx, ns, "memory_broken", map[string]any{
		"memory_type": TypeFact,
		"importance":  "very",
		"content":     "broken",
	}, nil)
	require.NoError(t, err)

	memories, err := m.RecentMemories(ctx, "alice", false, 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "valid memory", memories[0].Content)
}

func TestContactContext(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Nothing known yet: empty string, no error.
	text, err := m.ContactContext(ctx, "alice", false, 5)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	require.NoError(t, m.SaveContactProfile(ctx, "alice", false, "friendly",
		map[string]any{"humor": "dry"}, nil))
	_, err = m.AddMemory(ctx, "alice", false, "loves hiking", TypeFact, 8, nil)
	require.NoError(t, err)
	_, err = m.AddMemory(ctx, "alice", false, "prefers tea", TypePreference, 4, nil)
	require.NoError(t, err)

	text, err = m.ContactContext(ctx, "alice", false, 5)
	require.NoError(t, err)
	assert.Contains(t, text, "Contact: alice")
	assert.Contains(t, text, "Type: Individual chat")
	assert.Contains(t, text, "Personality: friendly")
	assert.Contains(t, text, "Traits: humor: dry")
	assert.Contains(t, text, "Relevant memories:")
	assert.Contains(t, text, "- loves hiking")
	assert.Contains(t, text, "- prefers tea")
	assert.False(t, strings.HasSuffix(text, "\n"))

	// maxMemories caps the list at the most important entries.
	text, err = m.ContactContext(ctx, "alice", false, 1)
	require.NoError(t, err)
	assert.Contains(t, text, "- loves hiking")
	assert.NotContains(t, text, "- prefers tea")
}

func TestContactContextMemoriesOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.AddMemory(ctx, "bob", false, "plays chess", TypeFact, 5, nil)
	require.NoError(t, err)

	text, err := m.ContactContext(ctx, "bob", false, 5)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Relevant memories:"))
	assert.Contains(t, text, "- plays chess")
}

func TestPlatformOption(t *testing.T) {
	m := newTestManager(t, WithPlatform("telegram"))
	ctx := context.Background()

	require.NoError(t, m.SaveContactProfile(ctx, "alice", false, "brisk", nil, nil))

	rec, err := m.db.Get(ctx, store.Namespace{"telegram", "user", "alice"}, profileKey)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
