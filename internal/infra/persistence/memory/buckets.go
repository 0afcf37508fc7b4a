package memory

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot sections durable stores persist, in write order.
var Buckets = []string{
	"projects",
	"rdos",
	"offers",
	"prechecks",
	"comparisons",
	"bundles",
	"sal_entries",
	"sync_snapshots",
	"sync_results",
}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "projects":
		return &s.Projects, true
	case "rdos":
		return &s.RDOs, true
	case "offers":
		return &s.Offers, true
	case "prechecks":
		return &s.PreChecks, true
	case "comparisons":
		return &s.Comparisons, true
	case "bundles":
		return &s.Bundles, true
	case "sal_entries":
		return &s.SALEntries, true
	case "sync_snapshots":
		return &s.SyncSnapshots, true
	case "sync_results":
		return &s.SyncResults, true
	}
	return nil, false
}

// EncodeBucket marshals one snapshot section.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals payload into the named section. Unknown buckets
// left behind by older builds are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// BucketDigests fingerprints the encoded form of each bucket.
type BucketDigests map[string][sha256.Size]byte

// Changed encodes every bucket and returns the payloads whose fingerprint
// differs from prev, together with the fingerprints of the whole snapshot.
// A nil prev reports every bucket as changed.
func (s Snapshot) Changed(prev BucketDigests) (map[string][]byte, BucketDigests, error) {
	changed := make(map[string][]byte)
	next := make(BucketDigests, len(Buckets))
	for _, bucket := range Buckets {
		data, err := s.EncodeBucket(bucket)
		if err != nil {
			return nil, nil, err
		}
		sum := sha256.Sum256(data)
		next[bucket] = sum
		if old, ok := prev[bucket]; !ok || old != sum {
			changed[bucket] = data
		}
	}
	return changed, next, nil
}
