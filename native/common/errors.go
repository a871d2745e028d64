package common

import "errors"

// Shared failure taxonomy for the valuation engine. All of these abort the
// whole call tree; none are recovered locally except by the feed health check,
// which converts source failures into an inactive flag instead.
var (
	// ErrFeedInactive signals a decommissioned price feed on the valuation
	// path. Callers must wait for the feed to be re-validated.
	ErrFeedInactive = errors.New("valuation: price feed inactive")
	// ErrOverflow signals an arithmetic result past the range reserved for
	// USD-scale values. Always fatal, never saturated.
	ErrOverflow = errors.New("valuation: arithmetic overflow")
	// ErrUnderflow signals a withdrawal past the recorded exposure. By
	// construction of the call order this indicates state corruption.
	ErrUnderflow = errors.New("valuation: arithmetic underflow")
	// ErrExposureCapExceeded rejects a deposit that would push protocol-wide
	// exposure above the configured cap. Recoverable by the caller.
	ErrExposureCapExceeded = errors.New("valuation: protocol exposure cap exceeded")
	// ErrArrayLengthMismatch rejects portfolio input arrays of unequal length
	// before any state is touched.
	ErrArrayLengthMismatch = errors.New("valuation: array length mismatch")
	// ErrBadSequence rejects a malformed or oversized feed sequence.
	ErrBadSequence = errors.New("valuation: malformed feed sequence")
	// ErrAssetNotAllowed signals a reference to an asset the registry does
	// not know about.
	ErrAssetNotAllowed = errors.New("valuation: asset not registered")
)
