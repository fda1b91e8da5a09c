// Package registry implements the Task Registry (C3): a durable mapping of
// task-id to task record, backed by Postgres with an in-process
// read-through cache overlay for hot status polls.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/livepeer/dubworker/cache"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/progress"
	_ "github.com/lib/pq"
)

// SchemaVersion lets the jsonb-encoded progress/result/error blobs evolve
// without a migration on every release (§3 [ADDED]).
const SchemaVersion = 1

type State string

const (
	Pending  State = "Pending"
	Progress State = "Progress"
	Success  State = "Success"
	Failure  State = "Failure"
)

type RequestKind string

const (
	KindUpload       RequestKind = "Upload"
	KindRemoteURL    RequestKind = "RemoteUrl"
	KindDownloadOnly RequestKind = "DownloadOnly"
)

type InitialRequest struct {
	Kind      RequestKind `json:"kind"`
	URL       string      `json:"url,omitempty"`
	Filename  string      `json:"filename,omitempty"`
	StartTime string      `json:"start_time,omitempty"`
	EndTime   string      `json:"end_time,omitempty"`
}

type Watermark struct {
	Enabled  bool   `json:"enabled"`
	Position string `json:"position,omitempty"`
	Size     string `json:"size,omitempty"`
	Opacity  int    `json:"opacity,omitempty"`
	LogoRef  string `json:"logo_ref,omitempty"`
}

type UserChoices struct {
	SourceLang         string    `json:"source_lang"`
	TargetLang         string    `json:"target_lang"`
	TranscribeModel    string    `json:"transcribe_model"`
	TranslationService string    `json:"translation_service"`
	BurnIn             bool      `json:"burn_in"`
	Watermark          Watermark `json:"watermark"`
}

type SourceMetadata struct {
	DurationS float64 `json:"duration_s"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FPS       float64 `json:"fps"`
	CodecV    string  `json:"codec_v"`
	CodecA    string  `json:"codec_a"`
	SizeBytes int64   `json:"size_bytes"`
	BitRate   int64   `json:"bit_rate,omitempty"`
	MIME      string  `json:"mime,omitempty"`
	Ext       string  `json:"ext,omitempty"`
	Title     string  `json:"title,omitempty"`
}

type ResultFiles struct {
	OriginalSubs   string `json:"original_subs,omitempty"`
	TranslatedSubs string `json:"translated_subs,omitempty"`
	SubtitledVideo string `json:"subtitled_video,omitempty"`
	// DownloadedFile is set only for DownloadOnly requests, which skip the
	// whole transcribe/translate/render chain (§4.6 [ADDED]).
	DownloadedFile string `json:"downloaded_file,omitempty"`
}

type Result struct {
	Files          ResultFiles       `json:"files"`
	TimingSummary  map[string]string `json:"timing_summary,omitempty"`
	ChainedTaskID  string            `json:"chained_task_id,omitempty"`
	ModelUsed      string            `json:"model_used,omitempty"`
	ServiceUsed    string            `json:"service_used,omitempty"`
}

// TaskRecord is the Task Record from §3.
type TaskRecord struct {
	TaskID          string               `json:"task_id"`
	SchemaVersion   int                  `json:"schema_version"`
	State           State                `json:"state"`
	InitialRequest  InitialRequest       `json:"initial_request"`
	UserChoices     UserChoices          `json:"user_choices"`
	SourceMetadata  *SourceMetadata      `json:"source_metadata,omitempty"`
	ProgressSnap    *progress.Snapshot   `json:"progress,omitempty"`
	Result          *Result              `json:"result,omitempty"`
	Error           *errors.TaskError    `json:"error,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
	ArtifactExpires time.Time            `json:"artifact_expires_at"`
}

// Registry is the single source of truth for task records. Postgres is the
// durable store; the cache overlay exists purely to absorb rapid status
// polls without round-tripping to the database on every call (grounded on
// cache.Cache, the same read-through overlay idiom used elsewhere).
type Registry struct {
	db    *sql.DB
	cache *cache.Cache[*TaskRecord]
}

func Open(connString string) (*Registry, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging registry database: %w", err)
	}
	r := &Registry{db: db, cache: cache.New[*TaskRecord]()}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS task_records (
	task_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Ping is used by /health/deps (§4.1 [ADDED]).
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Create inserts a brand-new Pending task record; it is the only writer
// permitted to set `state=Pending` (§4.2).
func (r *Registry) Create(ctx context.Context, rec *TaskRecord) error {
	rec.SchemaVersion = SchemaVersion
	rec.State = Pending
	rec.CreatedAt = config.Clock.GetTime()
	rec.UpdatedAt = rec.CreatedAt
	rec.ExpiresAt = rec.CreatedAt.Add(time.Duration(config.DefaultArtifactRetentionHours) * time.Hour)

	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling task record: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO task_records (task_id, state, record, created_at, updated_at, expires_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.TaskID, rec.State, blob, rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting task record: %w", err)
	}
	r.cache.Store(rec.TaskID, rec)
	return nil
}

// Get reads through the cache, falling back to Postgres.
func (r *Registry) Get(ctx context.Context, taskID string) (*TaskRecord, error) {
	if rec := r.cache.Get(taskID); rec != nil {
		return rec, nil
	}
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT record FROM task_records WHERE task_id = $1`, taskID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, errors.NewObjectNotFoundError("task not found: "+taskID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("reading task record: %w", err)
	}
	var rec TaskRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("decoding task record: %w", err)
	}
	r.cache.Store(taskID, &rec)
	return &rec, nil
}

// UpdateProgress is a last-writer-wins update on the `progress` field only
// (§4.2's concurrency discipline); it never touches terminal fields.
func (r *Registry) UpdateProgress(ctx context.Context, taskID string, snap progress.Snapshot) error {
	return r.mutate(ctx, taskID, func(rec *TaskRecord) error {
		if rec.State == Success || rec.State == Failure {
			// A worker MUST NOT step a task out of a terminal state (§4.2).
			return nil
		}
		rec.State = Progress
		rec.ProgressSnap = &snap
		return nil
	})
}

// SetSourceMetadata fills `source_metadata` after the probe stage (S2).
func (r *Registry) SetSourceMetadata(ctx context.Context, taskID string, meta SourceMetadata) error {
	return r.mutate(ctx, taskID, func(rec *TaskRecord) error {
		rec.SourceMetadata = &meta
		return nil
	})
}

// Complete is the write-once terminal Success transition.
func (r *Registry) Complete(ctx context.Context, taskID string, result Result) error {
	return r.mutate(ctx, taskID, func(rec *TaskRecord) error {
		if rec.State == Success || rec.State == Failure {
			return nil
		}
		rec.State = Success
		rec.Result = &result
		return nil
	})
}

// Fail is the write-once terminal Failure transition. Per §4.9, any
// artifacts already published (e.g. subtitles when only render failed)
// remain attached via partialResult.
func (r *Registry) Fail(ctx context.Context, taskID string, taskErr *errors.TaskError, partialResult *Result) error {
	return r.mutate(ctx, taskID, func(rec *TaskRecord) error {
		if rec.State == Success || rec.State == Failure {
			return nil
		}
		rec.State = Failure
		rec.Error = taskErr
		rec.Result = partialResult
		return nil
	})
}

// SetChainedTaskID sets result.chained_task_id exactly once, after the
// successor has been enqueued (§4.6.7).
func (r *Registry) SetChainedTaskID(ctx context.Context, taskID, chainedTaskID string) error {
	return r.mutate(ctx, taskID, func(rec *TaskRecord) error {
		if rec.Result == nil {
			rec.Result = &Result{}
		}
		if rec.Result.ChainedTaskID != "" {
			return nil
		}
		rec.Result.ChainedTaskID = chainedTaskID
		return nil
	})
}

func (r *Registry) mutate(ctx context.Context, taskID string, fn func(rec *TaskRecord) error) error {
	rec, err := r.Get(ctx, taskID)
	if err != nil {
		return err
	}
	cp := *rec
	if err := fn(&cp); err != nil {
		return err
	}
	cp.UpdatedAt = config.Clock.GetTime()

	blob, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshaling task record: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE task_records SET state=$2, record=$3, updated_at=$4 WHERE task_id=$1`,
		cp.TaskID, cp.State, blob, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating task record: %w", err)
	}
	r.cache.Store(taskID, &cp)
	return nil
}

// SweepExpired returns task-ids whose `expires_at` has passed, for the
// Scheduler (C8) to reap (§4.8).
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT task_id FROM task_records WHERE expires_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Registry) Delete(ctx context.Context, taskID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM task_records WHERE task_id = $1`, taskID)
	r.cache.Remove("", taskID)
	return err
}
