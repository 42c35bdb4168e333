package notes

import (
	"fmt"
	"time"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
)

// Attributor picks the clinician for a prescription from the entries of the
// same blob already resolved, which are in ascending timestamp order.
// ok is false when no earlier entry qualifies.
type Attributor interface {
	Attribute(history []ResolvedEntry, rx Entry) (clinicianID string, ok bool)
}

// LookbackAttributor takes the clinician of the nearest earlier entry that is
// not itself a prescription, however old it is.
type LookbackAttributor struct{}

// Attribute implements Attributor.
func (LookbackAttributor) Attribute(history []ResolvedEntry, _ Entry) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Category == CategoryPrescription {
			continue
		}
		if h.ClinicianID != "" {
			return h.ClinicianID, true
		}
	}
	return "", false
}

// WindowedAttributor only considers earlier non-prescription entries no older
// than MaxAge whose author was matched to a clinician by name. Entries that
// got the fallback clinician never qualify.
type WindowedAttributor struct {
	MaxAge time.Duration
}

// Attribute implements Attributor.
func (w WindowedAttributor) Attribute(history []ResolvedEntry, rx Entry) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Category == CategoryPrescription {
			continue
		}
		if rx.Timestamp.Sub(h.Timestamp) > w.MaxAge {
			// history is ascending, everything before is older still
			return "", false
		}
		if h.Resolution == ResolutionMatched && h.ClinicianID != "" {
			return h.ClinicianID, true
		}
	}
	return "", false
}

// Strategy names an Attributor in configuration.
type Strategy string

const (
	StrategyLookback Strategy = "lookback"
	StrategyWindowed Strategy = "windowed"
)

// DefaultWindow is the WindowedAttributor age limit when none is configured.
const DefaultWindow = 24 * time.Hour

// NewAttributor returns the Attributor for strategy. window is only used by
// StrategyWindowed; zero means DefaultWindow.
func NewAttributor(strategy Strategy, window time.Duration) (Attributor, error) {
	switch strategy {
	case StrategyLookback, "":
		return LookbackAttributor{}, nil
	case StrategyWindowed:
		if window < 0 {
			return nil, fmt.Errorf("attribution window %s is negative: %w", window, migerrors.ErrValidation)
		}
		if window == 0 {
			window = DefaultWindow
		}
		return WindowedAttributor{MaxAge: window}, nil
	default:
		return nil, fmt.Errorf("unknown attribution strategy %q: %w", strategy, migerrors.ErrValidation)
	}
}
