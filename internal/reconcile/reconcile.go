// internal/reconcile/reconcile.go
package reconcile

import (
	"time"

	"portfolio-sync/internal/model"
)

// Outcome describes the desired project set after one reconciliation pass.
//
// Projects is the complete desired set (source-linked and manual) and is what
// the contract of the pass guarantees invariants over. Upserts and HiddenIDs
// are the same changes split the way the store applies them: Upserts carries
// the source-linked creates (ID == 0) and provider-field updates, HiddenIDs
// the source-linked rows that disappeared from the fetch and must be
// soft-hidden. Manual projects never appear in Upserts or HiddenIDs.
type Outcome struct {
	Projects  []model.Project
	Upserts   []model.Project
	HiddenIDs []int64

	Created           int
	Updated           int
	Hidden            int
	DuplicatesDropped int
}

// Touched is the number of source-linked projects this pass created, updated
// or hid.
func (o Outcome) Touched() int {
	return o.Created + o.Updated + o.Hidden
}

// Reconcile merges the freshly fetched repository list into the existing
// project set. Provider fields of matched projects are overwritten; the
// admin-owned IsVisible and OrderIndex are carried forward unchanged. Repos
// not seen before are appended after all existing projects, in fetch order.
// Source-linked projects absent from the fetch are soft-hidden, never
// removed: a repo made private must not destroy admin history. Manual
// projects pass through untouched.
//
// Duplicate source ids within one fetch are a provider contract violation;
// the first occurrence wins and the rest are dropped and counted.
func Reconcile(existing []model.Project, fetched []model.RawRepo, now time.Time) Outcome {
	var out Outcome

	bySourceID := make(map[int64]model.Project)
	maxOrder := -1
	for _, p := range existing {
		if p.OrderIndex > maxOrder {
			maxOrder = p.OrderIndex
		}
		if !p.IsManual && p.SourceID != nil {
			bySourceID[*p.SourceID] = p
		}
	}

	seen := make(map[int64]bool, len(fetched))
	nextOrder := maxOrder + 1
	for _, repo := range fetched {
		if seen[repo.SourceID] {
			out.DuplicatesDropped++
			continue
		}
		seen[repo.SourceID] = true

		if prev, ok := bySourceID[repo.SourceID]; ok {
			updated := applyProviderFields(prev, repo, now)
			out.Projects = append(out.Projects, updated)
			out.Upserts = append(out.Upserts, updated)
			out.Updated++
			continue
		}

		created := newProject(repo, nextOrder, now)
		nextOrder++
		out.Projects = append(out.Projects, created)
		out.Upserts = append(out.Upserts, created)
		out.Created++
	}

	for _, p := range existing {
		if p.IsManual || p.SourceID == nil {
			out.Projects = append(out.Projects, p)
			continue
		}
		if seen[*p.SourceID] {
			continue
		}
		hidden := p
		hidden.IsVisible = false
		hidden.LastSyncedAt = &now
		out.Projects = append(out.Projects, hidden)
		out.HiddenIDs = append(out.HiddenIDs, p.ID)
		out.Hidden++
	}

	return out
}

// applyProviderFields overwrites the provider-owned fields of an existing
// project while leaving ID, IsVisible and OrderIndex alone.
func applyProviderFields(p model.Project, repo model.RawRepo, now time.Time) model.Project {
	p.Name = repo.Name
	p.Description = repo.Description
	p.URL = repo.URL
	p.Homepage = repo.Homepage
	p.Language = repo.Language
	p.Stars = repo.Stars
	p.Topics = repo.Topics
	p.LastSyncedAt = &now
	return p
}

func newProject(repo model.RawRepo, orderIndex int, now time.Time) model.Project {
	sourceID := repo.SourceID
	return model.Project{
		SourceID:     &sourceID,
		Name:         repo.Name,
		Description:  repo.Description,
		URL:          repo.URL,
		Homepage:     repo.Homepage,
		Language:     repo.Language,
		Stars:        repo.Stars,
		Topics:       repo.Topics,
		IsVisible:    true,
		OrderIndex:   orderIndex,
		IsManual:     false,
		LastSyncedAt: &now,
	}
}
