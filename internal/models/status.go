package models

import "strings"

// MappingStatus is the user-owned decision about whether a team should be
// migrated. Only MappingStatusMapped entities are ever selected for a run.
type MappingStatus string

const (
	MappingStatusUnmapped MappingStatus = "unmapped"
	MappingStatusMapped   MappingStatus = "mapped"
	MappingStatusSkipped  MappingStatus = "skipped"
	MappingStatusUnknown  MappingStatus = "unknown"
)

// ParseMappingStatus converts a stored or imported value. Empty values are
// treated as unmapped; anything unrecognized becomes MappingStatusUnknown.
func ParseMappingStatus(s string) MappingStatus {
	switch MappingStatus(strings.ToLower(strings.TrimSpace(s))) {
	case MappingStatusUnmapped, "":
		return MappingStatusUnmapped
	case MappingStatusMapped:
		return MappingStatusMapped
	case MappingStatusSkipped:
		return MappingStatusSkipped
	default:
		return MappingStatusUnknown
	}
}

// IsValid reports whether the status is one of the persisted values.
func (s MappingStatus) IsValid() bool {
	return s == MappingStatusUnmapped || s == MappingStatusMapped || s == MappingStatusSkipped
}

// MigrationStatus is owned by the orchestrator.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationInProgress MigrationStatus = "in_progress"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationUnknown    MigrationStatus = "unknown"
)

// ParseMigrationStatus converts a stored value. Rows created before the
// orchestrator touched them carry an empty status, which reads as pending.
func ParseMigrationStatus(s string) MigrationStatus {
	switch MigrationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case MigrationPending, "":
		return MigrationPending
	case MigrationInProgress:
		return MigrationInProgress
	case MigrationCompleted:
		return MigrationCompleted
	case MigrationFailed:
		return MigrationFailed
	default:
		return MigrationUnknown
	}
}

func (s MigrationStatus) IsValid() bool {
	switch s {
	case MigrationPending, MigrationInProgress, MigrationCompleted, MigrationFailed:
		return true
	}
	return false
}

// SyncStatus summarizes how far a team's repository permissions have been
// applied in the destination. It is always derived, never stored.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusTeamOnly  SyncStatus = "team_only"
	SyncStatusNeedsSync SyncStatus = "needs_sync"
	SyncStatusPartial   SyncStatus = "partial"
	SyncStatusComplete  SyncStatus = "complete"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusUnknown   SyncStatus = "unknown"
)

// ParseSyncStatus is used for list filters supplied by callers.
func ParseSyncStatus(s string) SyncStatus {
	switch v := SyncStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case SyncStatusPending, SyncStatusTeamOnly, SyncStatusNeedsSync,
		SyncStatusPartial, SyncStatusComplete, SyncStatusFailed:
		return v
	default:
		return SyncStatusUnknown
	}
}

// DeriveSyncStatus computes the sync status from the persisted tracking
// fields. Rules are evaluated in order; the first match wins.
func DeriveSyncStatus(status MigrationStatus, teamCreated bool, eligible, synced int) SyncStatus {
	switch {
	case status == MigrationUnknown:
		return SyncStatusUnknown
	case status == MigrationFailed:
		return SyncStatusFailed
	case !teamCreated:
		return SyncStatusPending
	case eligible == 0:
		return SyncStatusTeamOnly
	case synced >= eligible:
		return SyncStatusComplete
	case synced == 0:
		return SyncStatusNeedsSync
	default:
		return SyncStatusPartial
	}
}

// RunStatus is the lifecycle of a single orchestrator run.
type RunStatus string

const (
	RunNotStarted          RunStatus = "not_started"
	RunInProgress          RunStatus = "in_progress"
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunCancelled           RunStatus = "cancelled"
)

// IsTerminal reports whether no more work will happen for the run.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunCompletedWithErrors || s == RunCancelled
}
