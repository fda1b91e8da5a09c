// Package tokens implements the Token Service (C9): short-lived signed
// tokens granting one-time download of a named artifact.
package tokens

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/livepeer/dubworker/config"
)

// Claims is the JWT payload: `artifact_key` plus a `jti` used to enforce
// single-use redemption in Postgres (§3, §4.5).
type Claims struct {
	ArtifactKey string `json:"artifact_key"`
	jwt.RegisteredClaims
}

// Service issues and redeems download tokens. Verification is cheap and
// does not touch the broker (§4.5): it is a signature check plus a single
// conditional UPDATE against the redemption table.
type Service struct {
	signingKey []byte
	db         *sql.DB
}

func NewService(signingKey string, db *sql.DB) (*Service, error) {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS download_tokens (
	jti TEXT PRIMARY KEY,
	artifact_key TEXT NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	consumed_at TIMESTAMPTZ
)`); err != nil {
		return nil, fmt.Errorf("migrating download_tokens table: %w", err)
	}
	return &Service{signingKey: []byte(signingKey), db: db}, nil
}

// Issue implements issue(artifact_key, ttl) -> token (§4.5).
func (s *Service) Issue(ctx context.Context, artifactKey string, ttl time.Duration) (string, error) {
	now := config.Clock.GetTime()
	jti := uuid.NewString()

	claims := Claims{
		ArtifactKey: artifactKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing download token: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO download_tokens (jti, artifact_key, issued_at, expires_at) VALUES ($1,$2,$3,$4)`,
		jti, artifactKey, now, now.Add(ttl))
	if err != nil {
		return "", fmt.Errorf("recording download token: %w", err)
	}
	return signed, nil
}

// Redeem implements redeem(token) -> artifact_key | error (§4.5). The
// `WHERE consumed_at IS NULL` update gives single-use semantics without a
// separate lock: a second redemption affects zero rows.
func (s *Service) Redeem(ctx context.Context, tokenStr string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid download token: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE download_tokens SET consumed_at = $2 WHERE jti = $1 AND consumed_at IS NULL AND expires_at > $2`,
		claims.ID, config.Clock.GetTime())
	if err != nil {
		return "", fmt.Errorf("redeeming download token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("download token already redeemed or expired")
	}
	return claims.ArtifactKey, nil
}
