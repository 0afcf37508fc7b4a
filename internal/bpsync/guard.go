package bpsync

import (
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"procurecore/pkg/domain"
)

// Guard serializes commits per project and collapses concurrent previews.
type Guard struct {
	mu       sync.Mutex
	projects map[string]*semaphore.Weighted
	previews singleflight.Group
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{projects: map[string]*semaphore.Weighted{}}
}

func (g *Guard) sem(projectID string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.projects[projectID]
	if !ok {
		s = semaphore.NewWeighted(1)
		g.projects[projectID] = s
	}
	return s
}

// TryLock claims the project without waiting. The returned release must be
// called exactly once when ok is true.
func (g *Guard) TryLock(projectID string) (release func(), ok bool) {
	s := g.sem(projectID)
	if !s.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { s.Release(1) }) }, true
}

// Preview runs fn once for all callers previewing projectID concurrently.
// Each caller receives its own copy of the result.
func (g *Guard) Preview(projectID string, fn func() (domain.SyncResult, error)) (domain.SyncResult, error) {
	v, err, _ := g.previews.Do(projectID, func() (any, error) {
		return fn()
	})
	if err != nil {
		return domain.SyncResult{}, err
	}
	return cloneResult(v.(domain.SyncResult)), nil
}

func cloneResult(r domain.SyncResult) domain.SyncResult {
	r.Lines = append([]domain.LineDelta(nil), r.Lines...)
	r.Buckets = cloneBuckets(r.Buckets)
	r.Recommendations = append([]string(nil), r.Recommendations...)
	return r
}
