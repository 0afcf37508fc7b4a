package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"procurecore/internal/blob"
	"procurecore/pkg/domain"
)

// Archiver writes comparison and sync workbooks to an artifact store.
type Archiver struct {
	store  blob.Store
	prefix string
}

// NewArchiver returns an archiver writing below prefix in store.
func NewArchiver(store blob.Store, prefix string) *Archiver {
	return &Archiver{store: store, prefix: prefix}
}

// ComparisonKey is where the workbook for a computation is stored.
func (a *Archiver) ComparisonKey(cmp domain.Comparison) string {
	stamp := strconv.FormatInt(cmp.ComputedAt.UTC().UnixMilli(), 10)
	return a.key("comparisons", cmp.RDOID, stamp+".xlsx")
}

// SyncKey is where the workbook for a committed sync is stored.
func (a *Archiver) SyncKey(diff domain.CommittedDiff) string {
	return a.key("sync", diff.Result.ProjectID, diff.Result.ID+".xlsx")
}

// ArchiveComparison stores the comparison workbook. A recomputation at the
// same instant replaces the earlier artifact.
func (a *Archiver) ArchiveComparison(ctx context.Context, rdo domain.RDO, cmp domain.Comparison) (string, error) {
	buf, err := ComparisonWorkbook(rdo, cmp)
	if err != nil {
		return "", fmt.Errorf("render comparison: %w", err)
	}
	key := a.ComparisonKey(cmp)
	_, err = a.store.Put(ctx, key, buf, blob.PutOptions{
		ContentType: ContentTypeXLSX,
		Metadata:    map[string]string{"rdo": rdo.ID, "project": rdo.ProjectID, "offers": strconv.Itoa(len(cmp.Ranked))},
		Overwrite:   true,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// ArchiveSync stores the sync workbook next to the committed diff as JSON.
// Sync IDs are content digests, so an existing artifact is already correct.
func (a *Archiver) ArchiveSync(ctx context.Context, diff domain.CommittedDiff) (string, error) {
	buf, err := SyncWorkbook(diff)
	if err != nil {
		return "", fmt.Errorf("render sync: %w", err)
	}
	meta := map[string]string{"project": diff.Result.ProjectID, "plan_version": strconv.FormatInt(diff.PlanVersion, 10)}
	key := a.SyncKey(diff)
	if err := a.putOnce(ctx, key, buf, blob.PutOptions{ContentType: ContentTypeXLSX, Metadata: meta}); err != nil {
		return "", err
	}
	raw, err := json.MarshalIndent(diff, "", "  ")
	if err != nil {
		return "", err
	}
	jsonKey := a.key("sync", diff.Result.ProjectID, diff.Result.ID+".json")
	if err := a.putOnce(ctx, jsonKey, bytes.NewReader(raw), blob.PutOptions{ContentType: "application/json", Metadata: meta}); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) putOnce(ctx context.Context, key string, body io.Reader, opts blob.PutOptions) error {
	_, err := a.store.Put(ctx, key, body, opts)
	if errors.Is(err, blob.ErrExists) {
		return nil
	}
	return err
}

func (a *Archiver) key(parts ...string) string {
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}
