package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	root := t.TempDir()
	s := &Store{
		IntakeDir:      filepath.Join(root, "intake"),
		WorkspaceDir:   filepath.Join(root, "workspace"),
		ArtifactsDir:   filepath.Join(root, "artifacts"),
		RetentionHours: 24,
	}
	for _, d := range []string{s.IntakeDir, s.WorkspaceDir, s.ArtifactsDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	return s
}

func TestPublishMovesFileIntoArtifactsDir(t *testing.T) {
	s := newTestStore(t)
	ws, err := s.NewWorkspace("task-1")
	require.NoError(t, err)

	src := filepath.Join(ws, "out.srt")
	require.NoError(t, os.WriteFile(src, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n\n"), 0o644))

	art, err := s.Publish(context.Background(), "task-1", src, OriginalSubs)
	require.NoError(t, err)
	require.FileExists(t, art.Path)
	require.Equal(t, filepath.Dir(art.Path), filepath.Clean(s.ArtifactsDir))
	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
}

func TestResolvePublishedRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ResolvePublished("../../etc/passwd")
	// sanitize strips path separators so this should collapse to a plain
	// filename under ArtifactsDir, never escaping it.
	require.NoError(t, err)

	resolved, err := s.ResolvePublished("../../etc/passwd")
	require.NoError(t, err)
	require.True(t, filepath.Dir(resolved) == filepath.Clean(s.ArtifactsDir))
}

func TestSweepExpiredDeletesOldArtifacts(t *testing.T) {
	s := newTestStore(t)
	s.RetentionHours = 0
	path := filepath.Join(s.ArtifactsDir, "old.srt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	n, err := s.SweepExpired(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
