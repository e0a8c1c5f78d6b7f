// Package errs centralizes the error taxonomy from spec §7 so the dispatch
// loop, the Engine worker, and the REST client classify failures the same
// way instead of each re-deriving the transient/permanent/malformed split.
package errs

import (
	"errors"

	"github.com/sentinel-synth/synthcore/internal/domain"
)

// Class is one bucket of the error taxonomy.
type Class int

const (
	// ClassUnknown is the default for errors that match none of the known
	// classes; treated as retryable once, then permanent (spec §7).
	ClassUnknown Class = iota
	ClassMalformed
	ClassTransient
	ClassRateLimited
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassMalformed:
		return "malformed"
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify maps an error to a taxonomy class. It recognizes the sentinel
// errors declared in internal/domain; anything else is ClassUnknown.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrSchemaInvalid), errors.Is(err, domain.ErrMissingInteractionToken):
		return ClassMalformed
	case errors.Is(err, domain.ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, domain.ErrPermanent):
		return ClassPermanent
	case errors.Is(err, domain.ErrUnavailable):
		return ClassTransient
	default:
		return ClassUnknown
	}
}

// IsRetryable reports whether a class should trigger the Engine's
// backoff-and-retry path. The event consumer does not use it: it
// requeues only ClassTransient failures.
func IsRetryable(c Class) bool {
	switch c {
	case ClassTransient, ClassRateLimited, ClassUnknown:
		return true
	default:
		return false
	}
}
