package migration

import "errors"

var (
	// ErrAlreadyRunning is returned when a run or a reset is requested while
	// another run is in progress.
	ErrAlreadyRunning = errors.New("team migration is already running")

	// ErrNotMapped is returned when a single-team run targets a team whose
	// mapping status is not mapped, or that has no destination.
	ErrNotMapped = errors.New("team is not mapped")

	// ErrNotFound is returned when the referenced mapping does not exist.
	ErrNotFound = errors.New("team mapping not found")

	// ErrInvalidScope is returned when a team slug is given without its org.
	ErrInvalidScope = errors.New("source_org is required when source_team_slug is set")

	// ErrDestinationCreateFailed marks a team that could not be checked or
	// created in the destination organization.
	ErrDestinationCreateFailed = errors.New("failed to create destination team")

	// ErrDestinationPermissionFailed marks a repository permission grant
	// that the destination rejected.
	ErrDestinationPermissionFailed = errors.New("failed to apply repository permission")

	// ErrTeamInProgress marks a team skipped because another run, possibly
	// in another process, is already processing it.
	ErrTeamInProgress = errors.New("team is already being processed by another run")

	// errStoreUnavailable marks mapping store failures. They end the run.
	errStoreUnavailable = errors.New("mapping store unavailable")
)
