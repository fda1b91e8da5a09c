package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/livepeer/dubworker/cache"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS task_records").WillReturnResult(sqlmock.NewResult(0, 0))
	return &Registry{db: db, cache: cache.New[*TaskRecord]()}, mock
}

func TestRegistryCreateInsertsPendingRecord(t *testing.T) {
	r, mock := newTestRegistry(t)
	require.NoError(t, r.migrate())

	config.Clock = config.FixedTimestampGenerator{Timestamp: time.Unix(1000, 0)}
	mock.ExpectExec("INSERT INTO task_records").WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &TaskRecord{TaskID: "t1", InitialRequest: InitialRequest{Kind: KindRemoteURL, URL: "http://example.com/x.mp4"}}
	require.NoError(t, r.Create(context.Background(), rec))
	require.Equal(t, Pending, rec.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistryFailIsWriteOnce(t *testing.T) {
	r, _ := newTestRegistry(t)
	rec := &TaskRecord{TaskID: "t2", State: Success}
	r.cache.Store("t2", rec)

	_ = r.Fail(context.Background(), "t2", errors.NewTaskError(errors.DownloadFailed, "boom", nil), nil)
	// The DB UPDATE isn't mocked here; the property under test is state
	// immutability, verified by re-reading straight from the cache.
	got := r.cache.Get("t2")
	require.Equal(t, Success, got.State)
	require.Nil(t, got.Error)
}

func TestTaskRecordRoundTripsJSON(t *testing.T) {
	rec := TaskRecord{
		TaskID: "t3",
		State:  Failure,
		Error:  errors.NewTaskError(errors.TimeoutExceeded, "deadline exceeded", nil),
	}
	blob, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded TaskRecord
	require.NoError(t, json.Unmarshal(blob, &decoded))
	require.Equal(t, rec.TaskID, decoded.TaskID)
	require.Equal(t, rec.Error.Code, decoded.Error.Code)
}
