package tokens

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS download_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	svc, err := NewService("test-signing-key", db)
	require.NoError(t, err)
	return svc, mock
}

func TestIssueThenRedeemReturnsArtifactKey(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO download_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	tok, err := svc.Issue(context.Background(), "artifacts/foo.srt", 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	mock.ExpectExec("UPDATE download_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	key, err := svc.Redeem(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, "artifacts/foo.srt", key)
}

func TestRedeemFailsOnSecondUse(t *testing.T) {
	svc, mock := newTestService(t)
	mock.ExpectExec("INSERT INTO download_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	tok, err := svc.Issue(context.Background(), "artifacts/foo.srt", 5*time.Minute)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE download_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	_, err = svc.Redeem(context.Background(), tok)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE download_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	_, err = svc.Redeem(context.Background(), tok)
	require.Error(t, err)
}
