package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilenameStripsPathComponents(t *testing.T) {
	require.Equal(t, "evil.mp4", SanitizeFilename("../../etc/evil.mp4"))
	require.Equal(t, "evil.mp4", SanitizeFilename(`C:\Windows\evil.mp4`))
}

func TestSanitizeFilenameReplacesUnsafeCharacters(t *testing.T) {
	require.Equal(t, "a_b_c.mp4", SanitizeFilename("a b\tc.mp4"))
}

func TestSanitizeFilenameIsIdempotent(t *testing.T) {
	name := "some weird/../name*.mp4"
	once := SanitizeFilename(name)
	twice := SanitizeFilename(once)
	require.Equal(t, once, twice)
}

func TestSanitizeFilenameNeverReturnsEmpty(t *testing.T) {
	require.Equal(t, "file", SanitizeFilename("..."))
	require.Equal(t, "file", SanitizeFilename(""))
}

func TestNewTaskIDIsLowercaseAndSortable(t *testing.T) {
	a := NewTaskID()
	b := NewTaskID()
	require.Equal(t, strings.ToLower(a), a)
	require.NotEqual(t, a, b)
	require.Less(t, a, b)
	require.LessOrEqual(t, len(a), 32)
}

func TestRandomTrailerLengthAndCharset(t *testing.T) {
	s := RandomTrailer(8)
	require.Len(t, s, 8)
	for _, r := range s {
		require.True(t, strings.ContainsRune(charsetForTest, r))
	}
}

const charsetForTest = "abcdefghijklmnopqrstuvwxyz0123456789"
