package cardpool

import (
	"errors"

	"cardvault/internal/core/numerator"
)

var (
	// ErrExhaustedRange means the BIN has no suffix room left. Operator
	// intervention is required; never retried automatically.
	ErrExhaustedRange = numerator.ErrExhaustedRange

	// ErrSequenceCorruption means the latest checkpoint cannot be read back.
	// Generation halts; the ledger is never silently reset.
	ErrSequenceCorruption = errors.New("card sequence checkpoint is corrupted")

	// ErrLedgerBusy is returned when the ledger lock was not acquired in time.
	ErrLedgerBusy = errors.New("card sequence ledger is locked")

	// ErrGenerationFailed is the single retryable failure of Take: the
	// synchronous fill produced nothing. The cause, if any, is wrapped.
	ErrGenerationFailed = errors.New("card number generation failed")

	// ErrClosed is returned by Take after Close.
	ErrClosed = errors.New("card cache is closed")
)
