package assets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLogoDeduplicatesIdenticalContent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	content := []byte("fake-png-bytes")
	a1, isNew1, err := s.SaveLogo(content, ".png")
	require.NoError(t, err)
	require.True(t, isNew1)

	a2, isNew2, err := s.SaveLogo(content, ".png")
	require.NoError(t, err)
	require.False(t, isNew2)
	require.Equal(t, a1.Path, a2.Path)
}

func TestSaveLogoDifferentContentDifferentPath(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	a1, _, err := s.SaveLogo([]byte("one"), ".png")
	require.NoError(t, err)
	a2, _, err := s.SaveLogo([]byte("two"), ".png")
	require.NoError(t, err)
	require.NotEqual(t, a1.Path, a2.Path)
}

func TestCleanupRemovesUnreferencedLogos(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.SaveLogo([]byte("stale"), ".png")
	require.NoError(t, err)

	n, err := s.Cleanup(-1 * time.Second) // everything is "older" than a negative window
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
