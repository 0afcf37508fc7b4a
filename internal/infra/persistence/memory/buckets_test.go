package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"procurecore/pkg/domain"
)

func TestSnapshotChangedTracksTouchedBuckets(t *testing.T) {
	store := NewStore(nil)
	_, _, bundle := seed(t, store)

	all, digests, err := store.ExportState().Changed(nil)
	if err != nil {
		t.Fatalf("changed: %v", err)
	}
	if len(all) != len(Buckets) || len(digests) != len(Buckets) {
		t.Fatalf("nil digests must report every bucket, got %d", len(all))
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendSALEntry(domain.SALEntry{ContractLineID: bundle.Lines[0].ID, Amount: decimal.NewFromInt(50)})
		return err
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	changed, next, err := store.ExportState().Changed(digests)
	if err != nil {
		t.Fatalf("changed: %v", err)
	}
	if len(changed) != 1 {
		t.Fatalf("only the SAL bucket should change, got %v", keys(changed))
	}
	if _, ok := changed["sal_entries"]; !ok {
		t.Fatalf("expected sal_entries to change, got %v", keys(changed))
	}

	again, _, err := store.ExportState().Changed(next)
	if err != nil {
		t.Fatalf("changed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("unchanged state must report nothing, got %v", keys(again))
	}
}

func TestDecodeBucketIgnoresUnknownAndEmpty(t *testing.T) {
	var snapshot Snapshot
	if err := snapshot.DecodeBucket("retired", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("unknown bucket: %v", err)
	}
	if err := snapshot.DecodeBucket("projects", nil); err != nil {
		t.Fatalf("empty payload: %v", err)
	}
	if err := snapshot.DecodeBucket("projects", []byte(`[`)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := snapshot.EncodeBucket("retired"); err == nil {
		t.Fatal("expected unknown bucket error on encode")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
