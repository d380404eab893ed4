package store

import (
	"context"
	"testing"

	"github.com/upkeepqr/maintcue/internal/database"
	"github.com/upkeepqr/maintcue/internal/model"
)

func setupHouseholdTestDB(t *testing.T) *HouseholdStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewHouseholdStore(db)
}

func TestHouseholdCreate(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	h, err := hs.Create(ctx, HouseholdParams{
		Name:    "Ada Lovelace",
		Email:   "ada@example.com",
		ZipCode: "02139",
	})
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if h.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if h.Email != "ada@example.com" {
		t.Errorf("email = %q, want %q", h.Email, "ada@example.com")
	}
	if h.NotificationPreference != model.PreferenceEmailOnly {
		t.Errorf("preference = %q, want %q", h.NotificationPreference, model.PreferenceEmailOnly)
	}
	if h.Phone != "" {
		t.Errorf("phone = %q, want empty", h.Phone)
	}
	if h.SMSOptIn {
		t.Error("expected sms_opt_in = false")
	}
}

func TestHouseholdGetByIDNotFound(t *testing.T) {
	hs := setupHouseholdTestDB(t)

	h, err := hs.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if h != nil {
		t.Error("expected nil for nonexistent household")
	}
}

func TestHouseholdGetByEmail(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	created, err := hs.Create(ctx, HouseholdParams{Name: "Grace Hopper", Email: "grace@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h, err := hs.GetByEmail(ctx, "Grace@Example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if h == nil || h.ID != created.ID {
		t.Fatalf("got %+v, want household %d", h, created.ID)
	}

	missing, err := hs.GetByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestHouseholdUpdateNotificationSettings(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	created, err := hs.Create(ctx, HouseholdParams{Name: "Test", Email: "t@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := hs.UpdateNotificationSettings(ctx, created.ID, model.PreferenceBoth, "+15551234567", true)
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.NotificationPreference != model.PreferenceBoth {
		t.Errorf("preference = %q, want %q", updated.NotificationPreference, model.PreferenceBoth)
	}
	if updated.Phone != "+15551234567" {
		t.Errorf("phone = %q, want %q", updated.Phone, "+15551234567")
	}
	if !updated.SMSOptIn {
		t.Error("expected sms_opt_in = true")
	}
	if updated.Email != "t@example.com" {
		t.Errorf("email changed to %q", updated.Email)
	}
}

func TestHouseholdListAndDelete(t *testing.T) {
	hs := setupHouseholdTestDB(t)
	ctx := context.Background()

	b, _ := hs.Create(ctx, HouseholdParams{Name: "Beta"})
	if _, err := hs.Create(ctx, HouseholdParams{Name: "Alpha"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := hs.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 households, got %d", len(list))
	}
	if list[0].Name != "Alpha" {
		t.Errorf("list[0].Name = %q, want Alpha", list[0].Name)
	}

	if err := hs.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	h, err := hs.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if h != nil {
		t.Error("expected nil after delete")
	}
}

func TestHouseholdFirstName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Ada Lovelace", "Ada"},
		{"  Grace  ", "Grace"},
		{"", "there"},
	}
	for _, tt := range tests {
		h := model.Household{Name: tt.name}
		if got := h.FirstName(); got != tt.want {
			t.Errorf("FirstName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
