package core

import (
	"context"

	"github.com/shopspring/decimal"

	"procurecore/internal/bpsync"
	"procurecore/pkg/domain"
)

// syncReader is the read surface shared by transactions and views that a
// business plan preview needs.
type syncReader interface {
	FindProject(id string) (domain.Project, bool)
	ListProjectBundles(projectID string) []domain.ContractBundle
	ListSALEntries(lineID string) []domain.SALEntry
	FindSyncSnapshot(projectID string) (domain.SyncSnapshot, bool)
}

func (s *Service) previewFrom(r syncReader, projectID string) (domain.SyncResult, error) {
	project, ok := r.FindProject(projectID)
	if !ok {
		return domain.SyncResult{}, ErrNotFound{Entity: domain.EntityProject, ID: projectID}
	}
	snapshot, _ := r.FindSyncSnapshot(projectID)
	in := bpsync.Input{Project: project, Snapshot: snapshot}
	for _, bundle := range r.ListProjectBundles(projectID) {
		for _, line := range bundle.Lines {
			state := bpsync.LineState{Line: line, BundleID: bundle.ID, Consumed: decimal.Zero}
			for _, e := range r.ListSALEntries(line.ID) {
				state.Consumed = state.Consumed.Add(e.Amount)
				if e.RecordedAt.After(state.LastUpdated) {
					state.LastUpdated = e.RecordedAt
				}
			}
			in.Lines = append(in.Lines, state)
		}
	}
	return s.planner.Preview(in)
}

// PreviewBusinessPlanSync computes what committing the project's SAL-driven
// cost changes would do, without changing anything. Concurrent previews of
// one project share a single computation.
func (s *Service) PreviewBusinessPlanSync(ctx context.Context, projectID string) (domain.SyncResult, error) {
	return s.guard.Preview(projectID, func() (domain.SyncResult, error) {
		var out domain.SyncResult
		err := s.view(ctx, "preview_business_plan", func(v TransactionView) error {
			var err error
			out, err = s.previewFrom(v, projectID)
			return err
		})
		return out, err
	})
}

// CommitBusinessPlanSync applies a previously previewed result. The preview
// is recomputed under the project lock and must still carry previewID;
// otherwise the caller gets a ConflictError and should preview again. Only
// one commit per project runs at a time.
func (s *Service) CommitBusinessPlanSync(ctx context.Context, projectID, previewID string) (domain.CommittedDiff, Result, error) {
	release, ok := s.guard.TryLock(projectID)
	if !ok {
		err := domain.ConflictError{Entity: domain.EntityProject, ID: projectID, Reason: "sync already in progress"}
		s.logger.Warn("sync commit rejected", "project_id", projectID, "error", err)
		s.metrics.Observe(ctx, "commit_business_plan", false, 0)
		return domain.CommittedDiff{}, Result{}, err
	}
	defer release()

	var diff domain.CommittedDiff
	res, err := s.run(ctx, "commit_business_plan", func() subject { return subject{id: diff.Result.ID, payload: diff.Result} }, func(tx Transaction) error {
		current, err := s.previewFrom(tx, projectID)
		if err != nil {
			return err
		}
		if current.ID != previewID {
			return domain.ConflictError{Entity: domain.EntitySyncResult, ID: previewID, Reason: "preview is stale, preview again"}
		}
		if current.Empty() {
			return domain.ValidationError{Field: "preview", Message: "nothing to commit"}
		}
		project, _ := tx.FindProject(projectID)
		snapshot, _ := tx.FindSyncSnapshot(projectID)
		nextProject, nextSnapshot, applied := bpsync.Apply(current, project, snapshot, tx.Now())
		updated, err := tx.UpdateProject(projectID, func(p *domain.Project) error {
			p.CostBuckets = nextProject.CostBuckets
			p.Metrics = nextProject.Metrics
			p.LastSync = nextProject.LastSync
			return nil
		})
		if err != nil {
			return err
		}
		if _, err := tx.PutSyncSnapshot(nextSnapshot); err != nil {
			return err
		}
		if _, err := tx.AppendSyncResult(applied.Result); err != nil {
			return err
		}
		applied.PlanVersion = updated.Version
		diff = applied
		return nil
	})
	if err != nil {
		return domain.CommittedDiff{}, res, err
	}
	if s.archiver != nil {
		if key, archiveErr := s.archiver.ArchiveSync(ctx, diff); archiveErr != nil {
			s.logger.Warn("sync archive failed", "project_id", projectID, "error", archiveErr)
		} else {
			diff.ArtifactKey = key
		}
	}
	s.logger.Info("business plan synced", "project_id", projectID, "sync_id", diff.Result.ID, "impact", diff.Result.Impact, "cost_delta", diff.Result.CostDelta.StringFixed(domain.MoneyPlaces))
	s.publish(ctx, EventSyncCommitted, projectID, diff)
	return diff, res, nil
}

// SyncHistory lists committed sync results of a project, oldest first.
func (s *Service) SyncHistory(ctx context.Context, projectID string) ([]domain.SyncResult, error) {
	var out []domain.SyncResult
	err := s.view(ctx, "sync_history", func(v TransactionView) error {
		if _, ok := v.FindProject(projectID); !ok {
			return ErrNotFound{Entity: domain.EntityProject, ID: projectID}
		}
		out = v.ListSyncResults(projectID)
		return nil
	})
	return out, err
}
