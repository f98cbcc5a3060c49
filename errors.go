package dmc

import (
	"errors"
	"fmt"

	"github.com/xraph/dmc/types"
)

// Error categories. Every specific error below wraps exactly one of them,
// so errors.Is(err, ErrNotFound) classifies any failure.
var (
	ErrUnauthorized      = errors.New("dmc: unauthorized")
	ErrInvalidInput      = errors.New("dmc: invalid input")
	ErrNotFound          = errors.New("dmc: not found")
	ErrInsufficientFunds = errors.New("dmc: insufficient funds")
	ErrInvalidState      = errors.New("dmc: invalid state")
	ErrInvariant         = errors.New("dmc: invariant violation")
)

// categorized is a sentinel that belongs to a category.
type categorized struct {
	msg  string
	kind error
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &categorized{msg: "dmc: " + msg, kind: kind}
}

var (
	// Authorization errors
	ErrNoPrincipal  = newError(ErrUnauthorized, "no principal in context")
	ErrNotAuthority = newError(ErrUnauthorized, "principal is not the required authority")
	ErrNotParty     = newError(ErrUnauthorized, "principal is not a party to the order")

	// Validation errors
	ErrInvalidAmount    = newError(ErrInvalidInput, "amount must be positive")
	ErrInvalidSymbol    = newError(ErrInvalidInput, "unexpected token symbol")
	ErrInvalidPrice     = newError(ErrInvalidInput, "price out of range")
	ErrInvalidRate      = newError(ErrInvalidInput, "rate out of range")
	ErrInvalidDataID    = newError(ErrInvalidInput, "data id outside the committed blocks")
	ErrInvalidBatch     = newError(ErrInvalidInput, "batch limit out of range")
	ErrUnknownConfigKey = newError(ErrInvalidInput, "unknown config key")
	ErrDustShare        = newError(ErrInvalidInput, "share below 0.01% of the pool")
	ErrMinerRate        = newError(ErrInvalidInput, "provider share would fall below its miner rate")
	ErrProofMismatch    = newError(ErrInvalidInput, "proof does not match the commitment")
	ErrSameAccount      = newError(ErrInvalidInput, "sender and receiver are the same account")

	// Not found errors
	ErrBillNotFound      = newError(ErrNotFound, "bill not found")
	ErrOrderNotFound     = newError(ErrNotFound, "order not found")
	ErrChallengeNotFound = newError(ErrNotFound, "challenge not found")
	ErrMakerNotFound     = newError(ErrNotFound, "maker not found")
	ErrPartnerNotFound   = newError(ErrNotFound, "partner not found")
	ErrBalanceNotFound   = newError(ErrNotFound, "balance not found")
	ErrSupplyNotFound    = newError(ErrNotFound, "supply not found")
	ErrConfigNotFound    = newError(ErrNotFound, "config entry not found")
	ErrMetaNotFound      = newError(ErrNotFound, "meta entry not found")

	// Insufficient funds errors
	ErrInsufficientBalance    = newError(ErrInsufficientFunds, "balance below amount")
	ErrInsufficientPledge     = newError(ErrInsufficientFunds, "pledge below amount")
	ErrInsufficientCapacity   = newError(ErrInsufficientFunds, "bill capacity below amount")
	ErrInsufficientCollateral = newError(ErrInsufficientFunds, "collateral rate below benchmark")
	ErrMintCapExceeded        = newError(ErrInsufficientFunds, "amount exceeds the mint cap")

	// State errors
	ErrOrderTerminal       = newError(ErrInvalidState, "order is terminated")
	ErrOrderNotDelivering  = newError(ErrInvalidState, "order is not delivering")
	ErrChallengeOpen       = newError(ErrInvalidState, "a challenge is open")
	ErrChallengeNotOpen    = newError(ErrInvalidState, "no challenge request is open")
	ErrChallengeNotTimeout = newError(ErrInvalidState, "challenge has not timed out")
	ErrNoCommitment        = newError(ErrInvalidState, "no agreed merkle commitment")
	ErrAnswerWindowClosed  = newError(ErrInvalidState, "answer window has closed")
	ErrNothingToClaim      = newError(ErrInvalidState, "nothing to claim")
	ErrFirstStake          = newError(ErrInvalidState, "the provider must stake first")
	ErrMakerRegistered     = newError(ErrInvalidState, "owner is a registered maker")
	ErrBillMatched         = newError(ErrInvalidState, "bill has no unmatched capacity")

	// Invariant errors
	ErrOverflow = newError(ErrInvariant, "arithmetic overflow")
	ErrNegative = newError(ErrInvariant, "quantity would become negative")

	// Store errors
	ErrAlreadyExists = errors.New("dmc: already exists")
	ErrStoreClosed   = errors.New("dmc: store is closed")
)

// invariant maps arithmetic failures from the types package onto the
// invariant category and passes everything else through.
func invariant(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrOverflow):
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	case errors.Is(err, types.ErrNegative):
		return fmt.Errorf("%w: %w", ErrNegative, err)
	}
	return err
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("dmc: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap places every ValidationError in the invalid-input category.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "dmc: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("dmc: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAuthorization returns true if the caller lacked the required authority.
func IsAuthorization(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsValidation returns true if the call was rejected for bad arguments.
func IsValidation(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsInsufficientFunds returns true if a balance, pledge or capacity was too low.
func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }

// IsState returns true if the operation is invalid in the record's current state.
func IsState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsInvariant returns true if the call would have broken an accounting invariant.
func IsInvariant(err error) bool { return errors.Is(err, ErrInvariant) }
