package credentials

import (
	"errors"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestStore_SetAndGet(t *testing.T) {
	keyring.MockInit()

	store := NewStore("", "clinic-a")
	if err := store.SetPassword(TargetLegacyDB, "s3cret-pass"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	got, err := store.Password(TargetLegacyDB)
	if err != nil {
		t.Fatalf("Password() error = %v", err)
	}
	if got != "s3cret-pass" {
		t.Errorf("Password() = %q, want %q", got, "s3cret-pass")
	}
}

func TestStore_TenantScoping(t *testing.T) {
	keyring.MockInit()

	a := NewStore("", "clinic-a")
	b := NewStore("", "clinic-b")
	if err := a.SetPassword(TargetDestDB, "alpha"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	if _, err := b.Password(TargetDestDB); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("other tenant Password() error = %v, want ErrNoCredentials", err)
	}
}

func TestStore_PasswordMissing(t *testing.T) {
	keyring.MockInit()

	_, err := NewStore("", "").Password(TargetDestDB)
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Password() error = %v, want ErrNoCredentials", err)
	}
}

func TestStore_UnknownTarget(t *testing.T) {
	keyring.MockInit()

	store := NewStore("", "")
	if err := store.SetPassword("mysql", "x"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("SetPassword() error = %v, want ErrUnknownTarget", err)
	}
	if _, err := store.Password("mysql"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("Password() error = %v, want ErrUnknownTarget", err)
	}
}

func TestStore_EmptyPasswordRejected(t *testing.T) {
	keyring.MockInit()

	if err := NewStore("", "").SetPassword(TargetLegacyDB, ""); err == nil {
		t.Error("SetPassword() with empty password should fail")
	}
}

func TestStore_Delete(t *testing.T) {
	keyring.MockInit()

	store := NewStore("", "clinic-a")
	if err := store.SetPassword(TargetLegacyDB, "to-remove"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if err := store.DeletePassword(TargetLegacyDB); err != nil {
		t.Fatalf("DeletePassword() error = %v", err)
	}
	if _, err := store.Password(TargetLegacyDB); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Password() after delete error = %v, want ErrNoCredentials", err)
	}

	// Second delete is a no-op.
	if err := store.DeletePassword(TargetLegacyDB); err != nil {
		t.Errorf("DeletePassword() on missing entry error = %v", err)
	}
}

func TestStore_KeyringFailure(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus not running"))
	t.Cleanup(keyring.MockInit)

	err := NewStore("", "").SetPassword(TargetDestDB, "pw")
	if !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("SetPassword() error = %v, want ErrKeyringUnavailable", err)
	}
}

func TestStore_Statuses(t *testing.T) {
	keyring.MockInit()

	store := NewStore("", "clinic-a")
	if err := store.SetPassword(TargetDestDB, "destination-pw"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	statuses, err := store.Statuses()
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Statuses() returned %d entries, want 2", len(statuses))
	}
	// Sorted: dest-db before legacy-db.
	if statuses[0].Target != TargetDestDB || !statuses[0].Stored {
		t.Errorf("statuses[0] = %+v, want stored dest-db", statuses[0])
	}
	if strings.Contains(statuses[0].Masked, "destination") {
		t.Errorf("masked value leaks secret: %q", statuses[0].Masked)
	}
	if statuses[1].Target != TargetLegacyDB || statuses[1].Stored {
		t.Errorf("statuses[1] = %+v, want missing legacy-db", statuses[1])
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "*****"},
		{"123456", "******"},
		{"postgres123", "po*******23"},
	}

	for _, tc := range tests {
		if got := Mask(tc.input); got != tc.expected {
			t.Errorf("Mask(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
