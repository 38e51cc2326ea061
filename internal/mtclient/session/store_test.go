package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, testKey)

	_, ok, err := s.Load("bot_42")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Save("bot_42", []byte("dc-state-blob")))

	got, ok, err := s.Load("bot_42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dc-state-blob", string(got))
}

func TestStoreSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, testKey)

	require.NoError(t, s.Save("bot_1", []byte("first")))
	require.NoError(t, s.Save("bot_1", []byte("second")))

	got, ok, err := s.Load("bot_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", string(got))
}
