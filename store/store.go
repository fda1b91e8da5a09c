// Package store implements the Artifact Store (C1): a content-addressed
// per-task workspace plus a published directory with atomic publish and
// retention sweep, in the same shape as the object-store abstraction
// pattern but simplified to local disk with an optional S3 mirror.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/livepeer/dubworker/config"
)

type Kind string

const (
	OriginalSubs   Kind = "OriginalSubs"
	TranslatedSubs Kind = "TranslatedSubs"
	SubtitledVideo Kind = "SubtitledVideo"
	RawDownload    Kind = "RawDownload"
)

// Artifact mirrors §3's Artifact record.
type Artifact struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store owns the workspace/published/intake directory tree (§6 disk
// layout) and, optionally, an S3-backed mirror of the published directory.
type Store struct {
	IntakeDir    string
	WorkspaceDir string
	ArtifactsDir string

	RetentionHours int

	s3Uploader *s3manager.Uploader
	s3Bucket   string
}

func New(cli config.Cli) (*Store, error) {
	s := &Store{
		IntakeDir:      cli.IntakeDir,
		WorkspaceDir:   cli.WorkspaceDir,
		ArtifactsDir:   cli.ArtifactsDir,
		RetentionHours: cli.ArtifactRetentionHours,
	}
	for _, dir := range []string{s.IntakeDir, s.WorkspaceDir, s.ArtifactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	if cli.S3Bucket != "" {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cli.S3Region), Endpoint: aws.String(cli.S3Endpoint)})
		if err != nil {
			return nil, fmt.Errorf("creating s3 session: %w", err)
		}
		s.s3Uploader = s3manager.NewUploader(sess)
		s.s3Bucket = cli.S3Bucket
	}
	return s, nil
}

// NewWorkspace creates the per-task scratch directory (§5, §6).
func (s *Store) NewWorkspace(taskID string) (string, error) {
	dir := filepath.Join(s.WorkspaceDir, config.SanitizeFilename(taskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace for task %s: %w", taskID, err)
	}
	return dir, nil
}

// DestroyWorkspace deletes per-task scratch; called on every exit path per
// §9's "scoped acquisition with guaranteed release" pattern.
func (s *Store) DestroyWorkspace(dir string) error {
	return os.RemoveAll(dir)
}

// Publish atomically moves a finished file from the workspace into the
// published directory (§4.6 S9) and optionally mirrors it to S3.
func (s *Store) Publish(ctx context.Context, taskID, workspacePath string, kind Kind) (*Artifact, error) {
	info, err := os.Stat(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("stat-ing artifact before publish: %w", err)
	}

	id := config.NewTaskID()
	filename := fmt.Sprintf("%s_%s%s", config.SanitizeFilename(taskID), id, filepath.Ext(workspacePath))
	dest := filepath.Join(s.ArtifactsDir, filename)

	if err := atomicMove(workspacePath, dest); err != nil {
		return nil, fmt.Errorf("publishing artifact: %w", err)
	}

	if s.s3Uploader != nil {
		if err := s.mirrorToS3(ctx, dest, filename); err != nil {
			// S3 mirroring failure does not fail the publish: the local
			// published directory remains the authoritative copy.
			_ = err
		}
	}

	now := config.Clock.GetTime()
	return &Artifact{
		ID:        id,
		TaskID:    taskID,
		Kind:      kind,
		Path:      dest,
		SizeBytes: info.Size(),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.RetentionHours) * time.Hour),
	}, nil
}

func atomicMove(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	// os.Rename fails across filesystem boundaries (e.g. tmpfs scratch to a
	// persistent artifacts volume); fall back to copy+remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (s *Store) mirrorToS3(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.s3Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.s3Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return err
}

// ResolvePublished returns the on-disk path for a published artifact
// filename, validated to never escape ArtifactsDir (§4.6.5, §8).
func (s *Store) ResolvePublished(filename string) (string, error) {
	safe := config.SanitizeFilename(filename)
	path := filepath.Join(s.ArtifactsDir, safe)
	if filepath.Dir(path) != filepath.Clean(s.ArtifactsDir) {
		return "", fmt.Errorf("resolved path escapes artifacts directory")
	}
	return path, nil
}

// SweepExpired deletes published artifacts past expiry; used by the
// Scheduler (C8, §4.8a).
func (s *Store) SweepExpired(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.ArtifactsDir)
	if err != nil {
		return 0, err
	}
	var deleted int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > time.Duration(s.RetentionHours)*time.Hour {
			if err := os.Remove(filepath.Join(s.ArtifactsDir, e.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// ReapOrphanedWorkspaces removes workspace directories older than
// threshold, for tasks whose worker crashed before cleanup (§4.8d).
func (s *Store) ReapOrphanedWorkspaces(now time.Time, threshold time.Duration) (int, error) {
	entries, err := os.ReadDir(s.WorkspaceDir)
	if err != nil {
		return 0, err
	}
	var reaped int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > threshold {
			if err := os.RemoveAll(filepath.Join(s.WorkspaceDir, e.Name())); err == nil {
				reaped++
			}
		}
	}
	return reaped, nil
}
