// Package errors provides the domain error types shared by the migration stages.
//
// Sentinel errors describe conditions callers branch on with errors.Is.
// MigrationError carries a classified code for failures that end a run.
//
// Usage:
//
//	import migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
//
//	if migerrors.IsConfiguration(err) {
//	    // abort before touching the destination
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested row or mapping was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration indicates the run cannot start with the given settings,
	// e.g. the fallback clinician does not exist in the destination.
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingDependency indicates a record whose parent has not been migrated yet.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrOutOfOrder indicates entries were resolved out of ascending timestamp order.
	ErrOutOfOrder = errors.New("entries out of order")

	// ErrLocked indicates another run holds the tenant lock.
	ErrLocked = errors.New("tenant locked by another run")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfiguration reports whether any error in err's chain is ErrConfiguration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsMissingDependency reports whether any error in err's chain is ErrMissingDependency.
func IsMissingDependency(err error) bool {
	return errors.Is(err, ErrMissingDependency)
}

// IsOutOfOrder reports whether any error in err's chain is ErrOutOfOrder.
func IsOutOfOrder(err error) bool {
	return errors.Is(err, ErrOutOfOrder)
}

// IsLocked reports whether any error in err's chain is ErrLocked.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}
