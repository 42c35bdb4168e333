// Package credentials stores database passwords for the petmig CLI in the
// operating system keyring.
package credentials

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name petmig writes under.
const DefaultService = "petmig"

// Known secret targets.
const (
	TargetLegacyDB = "legacy-db"
	TargetDestDB   = "dest-db"
)

var (
	// ErrNoCredentials indicates no password is stored for a target.
	ErrNoCredentials = errors.New("no credentials stored")

	// ErrKeyringUnavailable indicates the system keyring could not be used.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")

	// ErrUnknownTarget indicates a target name outside Targets().
	ErrUnknownTarget = errors.New("unknown credential target")
)

// Targets lists the secrets petmig knows how to store.
func Targets() []string {
	return []string{TargetLegacyDB, TargetDestDB}
}

// Status describes whether a target has a stored password.
type Status struct {
	Target string
	Stored bool
	Masked string
}

// Store reads and writes passwords in the keyring. Secrets are scoped by
// tenant so two clinics migrated from the same workstation do not collide.
type Store struct {
	mu      sync.Mutex
	service string
	tenant  string
}

// NewStore creates a store for the given tenant. An empty service uses
// DefaultService.
func NewStore(service, tenant string) *Store {
	if service == "" {
		service = DefaultService
	}
	return &Store{service: service, tenant: strings.TrimSpace(tenant)}
}

func (s *Store) account(target string) (string, error) {
	if !knownTarget(target) {
		return "", fmt.Errorf("%w: %q (expected one of %s)", ErrUnknownTarget, target, strings.Join(Targets(), ", "))
	}
	if s.tenant == "" {
		return target, nil
	}
	return s.tenant + "/" + target, nil
}

// SetPassword stores the password for target, replacing any previous value.
func (s *Store) SetPassword(target, password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	account, err := s.account(target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := keyring.Set(s.service, account, password); err != nil {
		return fmt.Errorf("%w: storing %s: %v", ErrKeyringUnavailable, target, err)
	}
	return nil
}

// Password returns the stored password for target or ErrNoCredentials.
func (s *Store) Password(target string) (string, error) {
	account, err := s.account(target)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	secret, err := keyring.Get(s.service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w for %s", ErrNoCredentials, target)
	}
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrKeyringUnavailable, target, err)
	}
	return secret, nil
}

// DeletePassword removes the password for target. Deleting a missing entry
// is not an error.
func (s *Store) DeletePassword(target string) error {
	account, err := s.account(target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = keyring.Delete(s.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: deleting %s: %v", ErrKeyringUnavailable, target, err)
	}
	return nil
}

// Statuses reports every known target, sorted by name.
func (s *Store) Statuses() ([]Status, error) {
	targets := Targets()
	sort.Strings(targets)

	out := make([]Status, 0, len(targets))
	for _, target := range targets {
		secret, err := s.Password(target)
		switch {
		case err == nil:
			out = append(out, Status{Target: target, Stored: true, Masked: Mask(secret)})
		case errors.Is(err, ErrNoCredentials):
			out = append(out, Status{Target: target})
		default:
			return nil, err
		}
	}
	return out, nil
}

// Backend returns a human-readable name for the keyring in use.
func Backend() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// Mask hides all but the first and last two characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 6 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}

func knownTarget(target string) bool {
	for _, t := range Targets() {
		if t == target {
			return true
		}
	}
	return false
}
