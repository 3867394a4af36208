// Package scheduler implements get-steps: select up to limit steps for a
// scope set under priority/velocity/recency ordering, and atomically lease
// them to working.
//
// Candidates are fetched in one compound-WHERE, ordered query, then
// admitted one at a time against the in-process tag-velocity governor
// before a single batched lease update, which runs in its own row-locked
// transaction — a single SQL LIMIT cannot express per-candidate
// tag-budget skipping.
package scheduler

import (
	"context"
	"time"

	"github.com/daniel-olson-code/buelon/internal/governor"
	"github.com/daniel-olson-code/buelon/internal/metadata"
)

// DefaultStaleWorkingSeconds mirrors config.DefaultLeaseSeconds; New takes
// the configured lease duration explicitly so LEASE_SECONDS actually
// governs stale-working reclaim rather than a second hardcoded constant.
const DefaultStaleWorkingSeconds = 720

type Scheduler struct {
	repo             metadata.Repo
	gov              *governor.Governor
	staleWorkingTime time.Duration
}

func New(repo metadata.Repo, gov *governor.Governor, leaseDuration time.Duration) *Scheduler {
	if leaseDuration <= 0 {
		leaseDuration = DefaultStaleWorkingSeconds * time.Second
	}
	return &Scheduler{repo: repo, gov: gov, staleWorkingTime: leaseDuration}
}

// GetSteps is the scheduler's sole operation: scope filter, priority/epoch
// ordering, sequential velocity admission, then a single batched lease
// update for the admitted set. Steps whose tag is over budget are
// skipped, not counted against limit, and remain candidates on the next
// call.
func (s *Scheduler) GetSteps(ctx context.Context, scopes []string, limit int, status metadata.Status, includeWorking bool, reverse bool) ([]*metadata.Step, error) {
	if limit <= 0 {
		return nil, nil
	}
	staleCutoff := time.Now().Add(-s.staleWorkingTime)

	// Velocity admission only filters, never reorders, so one
	// over-fetched candidate page (generously above limit, since some
	// candidates may be skipped for being over their tag's budget)
	// suffices instead of a real paging loop.
	const overfetchFactor = 8
	candidates, err := s.repo.SelectCandidates(ctx, scopes, status, includeWorking, staleCutoff, limit*overfetchFactor, reverse)
	if err != nil {
		return nil, err
	}

	admitted := make([]*metadata.Step, 0, limit)
	admittedIDs := make([]string, 0, limit)
	for _, c := range candidates {
		if len(admitted) >= limit {
			break
		}
		if !s.gov.TryAdmit(c.Tag) {
			continue
		}
		admitted = append(admitted, c)
		admittedIDs = append(admittedIDs, c.ID)
	}

	if len(admittedIDs) == 0 {
		return admitted, nil
	}
	if err := s.repo.LeaseWorking(ctx, admittedIDs); err != nil {
		return nil, err
	}
	for _, step := range admitted {
		step.Status = metadata.StatusWorking
	}
	return admitted, nil
}
