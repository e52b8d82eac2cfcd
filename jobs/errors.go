package jobs

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrLockRepositoryRequired is returned when a lock repository is not provided.
	ErrLockRepositoryRequired = errors.New("lock repository required")

	// ErrIndexerRequired is returned when an indexer is not provided.
	ErrIndexerRequired = errors.New("indexer required")

	// ErrProviderFactoryRequired is returned when a provider factory is not provided.
	ErrProviderFactoryRequired = errors.New("provider factory required")

	// ErrJobNotActive is returned when cancel targets a job that has
	// already reached a terminal state.
	ErrJobNotActive = errors.New("job is not active")

	// ErrCreateLockBusy is returned when the creation lock could not be
	// acquired within the retry window.
	ErrCreateLockBusy = errors.New("job creation lock busy")
)
