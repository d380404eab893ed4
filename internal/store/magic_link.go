package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/upkeepqr/maintcue/internal/model"
)

type MagicLinkStore struct {
	db *sql.DB
}

func NewMagicLinkStore(db *sql.DB) *MagicLinkStore {
	return &MagicLinkStore{db: db}
}

func scanMagicLink(scanner interface{ Scan(...any) error }) (*model.MagicLink, error) {
	var ml model.MagicLink
	var householdID sql.NullInt64
	var usedAt sql.NullTime

	err := scanner.Scan(
		&ml.ID, &ml.Token, &ml.Email, &ml.Purpose, &householdID,
		&ml.ExpiresAt, &usedAt, &ml.Attempts, &ml.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if householdID.Valid {
		ml.HouseholdID = &householdID.Int64
	}
	if usedAt.Valid {
		ml.UsedAt = &usedAt.Time
	}
	return &ml, nil
}

const magicLinkCols = `id, token, email, purpose, household_id, expires_at, used_at, attempts, created_at`

// generateToken returns 32 random bytes, hex encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create issues a new single-use token for the email and purpose. Earlier
// unused tokens with the same email and purpose are invalidated first.
func (s *MagicLinkStore) Create(ctx context.Context, email, purpose string, householdID *int64, ttl time.Duration) (*model.MagicLink, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`UPDATE magic_links SET used_at = ? WHERE email = ? AND purpose = ? AND used_at IS NULL`,
		now, email, purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous links: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	var hID sql.NullInt64
	if householdID != nil {
		hID = sql.NullInt64{Int64: *householdID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO magic_links (token, email, purpose, household_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		token, email, purpose, hID, now.Add(ttl), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert magic link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+magicLinkCols+` FROM magic_links WHERE id = ?`, id)
	return scanMagicLink(row)
}

// Consume marks the token used and returns it, provided it matches the
// purpose, has not expired, and has not been used. The check and the update
// happen in one statement, so a token can be consumed at most once. It
// returns nil when the token is not redeemable.
func (s *MagicLinkStore) Consume(ctx context.Context, token, purpose string) (*model.MagicLink, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE magic_links SET used_at = ?
		 WHERE token = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?`,
		now, token, purpose, now,
	)
	if err != nil {
		return nil, fmt.Errorf("consume magic link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE magic_links SET attempts = attempts + 1 WHERE token = ?`, token,
		); err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+magicLinkCols+` FROM magic_links WHERE token = ?`, token)
	ml, err := scanMagicLink(row)
	if err != nil {
		return nil, fmt.Errorf("get consumed magic link: %w", err)
	}
	return ml, nil
}

// GetByToken returns the link regardless of its state, or nil if unknown.
func (s *MagicLinkStore) GetByToken(ctx context.Context, token string) (*model.MagicLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+magicLinkCols+` FROM magic_links WHERE token = ?`, token)
	ml, err := scanMagicLink(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get magic link: %w", err)
	}
	return ml, nil
}

func (s *MagicLinkStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM magic_links WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired magic links: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
