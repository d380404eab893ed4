package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/upkeepqr/maintcue/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	var email, phone sql.NullString
	var smsOptIn int
	err := scanner.Scan(
		&h.ID, &h.Name, &email, &phone, &h.ZipCode,
		&h.NotificationPreference, &smsOptIn, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Email = email.String
	h.Phone = phone.String
	h.SMSOptIn = smsOptIn != 0
	return &h, nil
}

const householdCols = `id, name, email, phone, zip_code, notification_preference, sms_opt_in, created_at, updated_at`

// HouseholdParams holds the writable household fields.
type HouseholdParams struct {
	Name                   string
	Email                  string
	Phone                  string
	ZipCode                string
	NotificationPreference string
	SMSOptIn               bool
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *HouseholdStore) Create(ctx context.Context, p HouseholdParams) (*model.Household, error) {
	if p.NotificationPreference == "" {
		p.NotificationPreference = model.PreferenceEmailOnly
	}
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO households (name, email, phone, zip_code, notification_preference, sms_opt_in, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, nullString(p.Email), nullString(p.Phone), p.ZipCode,
		p.NotificationPreference, boolInt(p.SMSOptIn), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) GetByEmail(ctx context.Context, email string) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+householdCols+` FROM households WHERE email = ? COLLATE NOCASE`,
		strings.TrimSpace(email),
	)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by email: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) List(ctx context.Context) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+householdCols+` FROM households ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, p HouseholdParams) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE households
		 SET name = ?, email = ?, phone = ?, zip_code = ?, notification_preference = ?, sms_opt_in = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, nullString(p.Email), nullString(p.Phone), p.ZipCode,
		p.NotificationPreference, boolInt(p.SMSOptIn), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(ctx, id)
}

// UpdateNotificationSettings changes only the contact preference fields.
func (s *HouseholdStore) UpdateNotificationSettings(ctx context.Context, id int64, preference, phone string, smsOptIn bool) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE households SET notification_preference = ?, phone = ?, sms_opt_in = ?, updated_at = ? WHERE id = ?`,
		preference, nullString(phone), boolInt(smsOptIn), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update notification settings: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}
