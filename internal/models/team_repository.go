package models

import "time"

// TeamRepository is a repository a source team has access to, together with
// the permission that should be granted on the destination side.
type TeamRepository struct {
	ID                      int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceOrg               string     `json:"source_org" gorm:"column:source_org;not null;uniqueIndex:idx_team_repo,priority:1"`
	SourceTeamSlug          string     `json:"source_team_slug" gorm:"column:source_team_slug;not null;uniqueIndex:idx_team_repo,priority:2"`
	SourceRepoFullName      string     `json:"source_repo_full_name" gorm:"column:source_repo_full_name;not null;uniqueIndex:idx_team_repo,priority:3"`
	DestinationRepoFullName *string    `json:"destination_repo_full_name,omitempty" gorm:"column:destination_repo_full_name"`
	Permission              string     `json:"permission" gorm:"column:permission;not null;default:pull"`
	Visibility              string     `json:"visibility" gorm:"column:visibility"`
	Archived                bool       `json:"archived" gorm:"column:archived;default:false"`
	Eligible                bool       `json:"eligible" gorm:"column:eligible;index"`
	Synced                  bool       `json:"synced" gorm:"column:synced;default:false"`
	SyncedAt                *time.Time `json:"synced_at,omitempty" gorm:"column:synced_at"`
	ErrorMessage            *string    `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	CreatedAt               time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for TeamRepository
func (TeamRepository) TableName() string { return "team_repositories" }

// RepoName returns the repository name without its owner.
func (r *TeamRepository) RepoName() string {
	for i := len(r.SourceRepoFullName) - 1; i >= 0; i-- {
		if r.SourceRepoFullName[i] == '/' {
			return r.SourceRepoFullName[i+1:]
		}
	}
	return r.SourceRepoFullName
}

// DestinationRepoName returns the repository name to grant in the destination
// org: the explicit override when set, otherwise the source name.
func (r *TeamRepository) DestinationRepoName() string {
	if r.DestinationRepoFullName != nil && *r.DestinationRepoFullName != "" {
		full := *r.DestinationRepoFullName
		for i := len(full) - 1; i >= 0; i-- {
			if full[i] == '/' {
				return full[i+1:]
			}
		}
		return full
	}
	return r.RepoName()
}
