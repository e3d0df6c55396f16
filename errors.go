package qu

import "errors"

var (
	// Store errors.
	ErrNoStore            = errors.New("qu: no store configured")
	ErrStoreClosed        = errors.New("qu: store closed")
	ErrStorageUnavailable = errors.New("qu: storage unavailable")
	ErrMigrationFailed    = errors.New("qu: migration failed")

	// ErrUnsupported is the legacy signal some document stores return when an
	// atomic find-and-remove matches nothing. Job stores translate it to an
	// empty pop unless strict mode is enabled.
	ErrUnsupported = errors.New("qu: operation unsupported by storage")

	// Not found errors.
	ErrJobNotFound = errors.New("qu: job not found")
	ErrNoHandler   = errors.New("qu: no handler registered")

	// Validation errors.
	ErrInvalidJob    = errors.New("qu: invalid job")
	ErrInvalidWorker = errors.New("qu: invalid worker")
	ErrNoQueues      = errors.New("qu: worker has no queues")
)
