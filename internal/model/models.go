// internal/model/models.go
package model

import "time"

// Project is a portfolio project row. Source-linked projects carry a non-nil
// SourceID and have their provider fields overwritten on every sync; manual
// projects have SourceID == nil and are never touched by the reconciler.
// IsVisible and OrderIndex are admin-owned for both kinds.
type Project struct {
	ID           int64      `json:"id"`
	SourceID     *int64     `json:"sourceId"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	URL          string     `json:"url"`
	Homepage     string     `json:"homepage"`
	Language     *string    `json:"language"`
	Stars        int        `json:"stars"`
	Topics       []string   `json:"topics"`
	IsVisible    bool       `json:"isVisible"`
	OrderIndex   int        `json:"orderIndex"`
	IsManual     bool       `json:"isManual"`
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PublicProject is the shape served on the public listing. Admin-only fields
// (visibility, ordering, manual flag) are stripped.
type PublicProject struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Homepage    string   `json:"homepage,omitempty"`
	Language    *string  `json:"language"`
	Stars       int      `json:"stars"`
	Topics      []string `json:"topics"`
}

// Public strips admin-only fields from a project.
func (p Project) Public() PublicProject {
	return PublicProject{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		URL:         p.URL,
		Homepage:    p.Homepage,
		Language:    p.Language,
		Stars:       p.Stars,
		Topics:      p.Topics,
	}
}

// RawRepo is the provider-neutral shape of one fetched repository, after
// filtering out private repos and forks.
type RawRepo struct {
	SourceID    int64
	Name        string
	Description string
	URL         string
	Homepage    string
	Language    *string
	Stars       int
	Topics      []string
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

// SyncState is the persisted sync cache singleton (one row, id = 1).
type SyncState struct {
	LastSyncAt           *time.Time `json:"lastSyncAt"`
	CacheDurationMinutes int        `json:"cacheDurationMinutes"`
}

// SyncResult is returned by every sync invocation, whether the gate let it
// run or not.
type SyncResult struct {
	Synced            bool       `json:"synced"`
	Count             int        `json:"count"`
	Message           string     `json:"message"`
	NextSyncInMinutes int        `json:"nextSyncInMinutes"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
	CanRetry          bool       `json:"canRetry,omitempty"`
}

// CacheStatus reports the gate's view of the world.
type CacheStatus struct {
	LastSyncAt           *time.Time `json:"lastSyncAt"`
	CacheDurationMinutes int        `json:"cacheDurationMinutes"`
	MinutesUntilNextSync int        `json:"minutesUntilNextSync"`
	CanSyncNow           bool       `json:"canSyncNow"`
}

// ReorderItem assigns a new order index to one project.
type ReorderItem struct {
	ID         int64 `json:"id"`
	OrderIndex int   `json:"orderIndex"`
}
