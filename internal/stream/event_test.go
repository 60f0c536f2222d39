package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		ev, err := ParseEvent(`{"type":"token","content":"Hel"}`)
		require.NoError(t, err)
		assert.Equal(t, EventToken, ev.Type)
		assert.Equal(t, "Hel", ev.Token)
	})

	t.Run("sources", func(t *testing.T) {
		ev, err := ParseEvent(`{"type":"sources","content":[{"title":"A","url":"https://a","snippet":"s"}]}`)
		require.NoError(t, err)
		require.Len(t, ev.Sources, 1)
		assert.Equal(t, "A", ev.Sources[0].Title)
	})

	t.Run("materials", func(t *testing.T) {
		ev, err := ParseEvent(`{"type":"materials","content":[{"name":"lithium","formula":"Li"}]}`)
		require.NoError(t, err)
		require.Len(t, ev.Materials, 1)
		assert.Equal(t, "lithium", ev.Materials[0].Name)
	})

	t.Run("suggestions", func(t *testing.T) {
		ev, err := ParseEvent(`{"type":"suggestions","content":["next?","more?"]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"next?", "more?"}, ev.Suggestions)
	})

	t.Run("error", func(t *testing.T) {
		ev, err := ParseEvent(`{"type":"error","content":"model overloaded"}`)
		require.NoError(t, err)
		assert.Equal(t, "model overloaded", ev.Message)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseEvent(`not json`)
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ParseEvent(`{"type":"heartbeat","content":""}`)
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("shape mismatch rejected", func(t *testing.T) {
		// token content must be a string, not an array
		_, err := ParseEvent(`{"type":"token","content":[1,2]}`)
		assert.Error(t, err)
	})
}

func TestEventMarshalRoundTrip(t *testing.T) {
	in := Event{Type: EventSuggestions, Suggestions: []string{"a", "b"}}
	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := ParseEvent(string(data))
	require.NoError(t, err)
	assert.Equal(t, in.Suggestions, out.Suggestions)
}
