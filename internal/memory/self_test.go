package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallbox/recallbox/internal/store"
)

func TestSelfProfileLifecycle(t *testing.T) {
	m := newTestManager(t, WithBotName("hattie"))
	ctx := context.Background()

	p, err := m.GetSelfProfile(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	err = m.SaveSelfProfile(ctx, "warm and a little sardonic",
		map[string]any{"curiosity": "high"}, nil, nil)
	require.NoError(t, err)

	p, err = m.GetSelfProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "warm and a little sardonic", p.Summary)
	assert.NotEmpty(t, p.FirstAwareness)

	// Observations append across saves; first_awareness stays put.
	err = m.SaveSelfProfile(ctx, "", nil, []string{"I overuse exclamation marks"}, nil)
	require.NoError(t, err)
	err = m.SaveSelfProfile(ctx, "", nil, []string{"I like wordplay"}, nil)
	require.NoError(t, err)

	updated, err := m.GetSelfProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, []string{"I overuse exclamation marks", "I like wordplay"}, updated.SelfObservations)
	assert.Equal(t, p.FirstAwareness, updated.FirstAwareness)
	assert.Equal(t, "warm and a little sardonic", updated.Summary)
}

func TestAddSelfObservation(t *testing.T) {
	m := newTestManager(t, WithBotName("hattie"))
	ctx := context.Background()

	require.NoError(t, m.AddSelfObservation(ctx, "I deflect compliments with jokes", 6, nil))

	// Standalone record lands in the bot's own namespace.
	keys, err := m.db.Keys(ctx, store.Namespace{"whatsapp", "ai", "hattie"})
	require.NoError(t, err)
	var standalone int
	for _, k := range keys {
		if strings.HasPrefix(k, "self_observation_") {
			standalone++
		}
	}
	assert.Equal(t, 1, standalone)

	// And it is appended to the profile document.
	p, err := m.GetSelfProfile(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []string{"I deflect compliments with jokes"}, p.SelfObservations)
}

func TestSelfContext(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	text, err := m.SelfContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	require.NoError(t, m.SaveSelfProfile(ctx, "playful", map[string]any{"wit": "quick"}, nil, nil))
	for i := 1; i <= 7; i++ {
		require.NoError(t, m.AddSelfObservation(ctx, fmt.Sprintf("observation %d", i), 5, nil))
	}

	text, err = m.SelfContext(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Your evolving personality: playful")
	assert.Contains(t, text, "Your traits: wit: quick")
	assert.Contains(t, text, "Your self-observations:")

	// Only the five most recent observations appear.
	assert.NotContains(t, text, "observation 1\n")
	assert.NotContains(t, text, "observation 2\n")
	for i := 3; i <= 7; i++ {
		assert.Contains(t, text, fmt.Sprintf("- observation %d", i))
	}
}
