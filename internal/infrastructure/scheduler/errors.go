package scheduler

import (
	"errors"

	"github.com/erp/catalogcache/internal/domain/catalog"
)

var (
	// ErrSchedulerNotRunning is returned when a request reaches a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrMergeFuncRequired is returned when a merge scheduler has no merge function
	ErrMergeFuncRequired = errors.New("merge function is required")

	// ErrJobAlreadyRegistered is returned when two refresh jobs share a source
	ErrJobAlreadyRegistered = errors.New("refresh job already registered for source")

	// ErrRefreshInProgress is returned when another owner holds the refresh lease
	ErrRefreshInProgress = errors.New("refresh already in progress for source")

	// ErrUnknownSource is returned for sources without a registered refresh job
	ErrUnknownSource = catalog.ErrUnknownSource
)
