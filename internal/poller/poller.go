// Package poller drives the fixed-interval presence collection cycle.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"presencelog/internal/cache"
	"presencelog/internal/graph"
	"presencelog/internal/logutil"
	"presencelog/internal/presence"
	"presencelog/internal/store"
)

// CurrentPresencePrefix namespaces the latest-presence cache entries.
const CurrentPresencePrefix = "presence:current:"

// Outcome classifies what happened to one member within a cycle.
const (
	OutcomeStored  = "stored"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Directory is the slice of the Graph client the poller needs.
type Directory interface {
	ListMembers(ctx context.Context) ([]presence.Member, error)
	FetchPresence(ctx context.Context, memberID string) (presence.RawPresence, error)
	FetchPresenceBatch(ctx context.Context, ids []string) (map[string]presence.RawPresence, error)
}

// Store is the slice of the presence store the poller needs.
type Store interface {
	UpsertMember(ctx context.Context, m *store.Member) error
	DeactivateMembersNotIn(ctx context.Context, ids []string) (int64, error)
	Append(ctx context.Context, rec *store.PresenceRecord) error
	LastRecord(ctx context.Context, userID string) (*store.PresenceRecord, error)
}

// Options configures the poll loop.
type Options struct {
	// Interval between cycle starts.
	Interval time.Duration

	// CycleTimeout bounds one cycle end to end.
	CycleTimeout time.Duration

	// Concurrency bounds in-flight per-member fetches.
	Concurrency int

	// MaxGap forces a write when the last record is older than this,
	// even if the status did not change.
	MaxGap time.Duration

	// BatchSize > 0 switches presence fetching to the batch endpoint,
	// BatchSize ids per request. 0 means per-member fetches.
	BatchSize int
}

// MemberResult is the per-member outcome of one cycle.
type MemberResult struct {
	MemberID string `json:"member_id"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
}

// CycleReport aggregates one completed cycle.
type CycleReport struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Members   int            `json:"members"`
	Stored    int            `json:"stored"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []MemberResult `json:"results"`
}

// Poller runs collection cycles against the directory and store.
type Poller struct {
	dir    Directory
	store  Store
	cache  cache.Cache
	opts   Options
	logger *slog.Logger

	running atomic.Bool
}

// New creates a poller. cache may be nil to disable the latest-presence
// view.
func New(dir Directory, st Store, c cache.Cache, opts Options, logger *slog.Logger) *Poller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Poller{
		dir:    dir,
		store:  st,
		cache:  c,
		opts:   opts,
		logger: logutil.NoopIfNil(logger),
	}
}

// Run executes a cycle immediately, then one per interval until ctx is
// canceled. A tick that arrives while a cycle is still in flight is
// skipped, so cycles never overlap. An in-flight cycle drains up to its
// timeout after cancellation.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup

	cycle := func() {
		if !p.running.CompareAndSwap(false, true) {
			p.logger.Warn("previous poll cycle still running, skipping tick")
			metricTicksSkipped.Inc()
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.running.Store(false)
			p.RunCycle(ctx, time.Now())
		}()
	}

	cycle()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			cycle()
		}
	}
}

// RunCycle performs one collection pass. The reference time now stamps
// every record written in the pass. A directory listing failure fails
// the whole cycle with zero writes; per-member failures are soft and
// land in the report.
func (p *Poller) RunCycle(ctx context.Context, now time.Time) (*CycleReport, error) {
	// Detach from the caller's cancellation so shutdown lets the
	// in-flight cycle finish, still bounded by the cycle timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.CycleTimeout)
	defer cancel()

	started := time.Now()
	report := &CycleReport{StartedAt: now.UTC()}

	members, err := p.dir.ListMembers(ctx)
	if err != nil {
		p.logger.Error("poll cycle failed, directory listing unavailable", "error", err)
		metricCycles.WithLabelValues("error").Inc()
		return nil, err
	}
	report.Members = len(members)

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
		if err := p.store.UpsertMember(ctx, &store.Member{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Email:       m.Email,
		}); err != nil {
			p.logger.Warn("member upsert failed", "member_id", m.ID, "error", err)
		}
	}
	if len(ids) > 0 {
		if n, err := p.store.DeactivateMembersNotIn(ctx, ids); err != nil {
			p.logger.Warn("member deactivation failed", "error", err)
		} else if n > 0 {
			p.logger.Info("members left the directory", "count", n)
		}
	}

	if p.opts.BatchSize > 0 {
		report.Results = p.collectBatch(ctx, members, now)
	} else {
		report.Results = p.collectFanOut(ctx, members, now)
	}

	for _, res := range report.Results {
		switch res.Outcome {
		case OutcomeStored:
			report.Stored++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		metricMemberOutcomes.WithLabelValues(res.Outcome).Inc()
	}

	report.Duration = time.Since(started)
	metricCycles.WithLabelValues("ok").Inc()
	metricCycleDuration.Observe(report.Duration.Seconds())

	p.logger.Info("poll cycle complete",
		"members", report.Members,
		"stored", report.Stored,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration)
	return report, nil
}

// collectFanOut fetches presence member by member with bounded
// parallelism.
func (p *Poller) collectFanOut(ctx context.Context, members []presence.Member, now time.Time) []MemberResult {
	results := make([]MemberResult, len(members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, m := range members {
		g.Go(func() error {
			raw, err := p.dir.FetchPresence(gctx, m.ID)
			if err != nil {
				results[i] = failedResult(m.ID, err)
				return nil
			}
			results[i] = p.record(gctx, presence.Normalize(m.ID, raw, now))
			return nil
		})
	}
	g.Wait()

	return results
}

// collectBatch fetches presence through the batch endpoint, then
// records each member sequentially.
func (p *Poller) collectBatch(ctx context.Context, members []presence.Member, now time.Time) []MemberResult {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	presences, err := p.dir.FetchPresenceBatch(ctx, ids)
	if err != nil {
		results := make([]MemberResult, len(members))
		for i, m := range members {
			results[i] = failedResult(m.ID, err)
		}
		return results
	}

	results := make([]MemberResult, len(members))
	for i, m := range members {
		raw, ok := presences[m.ID]
		if !ok {
			results[i] = MemberResult{MemberID: m.ID, Outcome: OutcomeFailed, Reason: "missing from batch response"}
			continue
		}
		results[i] = p.record(ctx, presence.Normalize(m.ID, raw, now))
	}
	return results
}

// record applies the dedupe policy and persists rec when it qualifies.
// A write happens on the first observation, on a status change, or when
// the last record is MaxGap old. Everything else is a skip, which still
// refreshes the latest-presence cache.
func (p *Poller) record(ctx context.Context, rec presence.Record) MemberResult {
	capturedAt := rec.CapturedAt.Unix()

	last, err := p.store.LastRecord(ctx, rec.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First observation, always stored.
	case err != nil:
		return failedResult(rec.UserID, err)
	case last.CapturedAt == capturedAt:
		// Same observation instant already recorded.
		p.cacheCurrent(ctx, rec)
		return MemberResult{MemberID: rec.UserID, Outcome: OutcomeSkipped, Reason: "duplicate capture time"}
	case last.Status == string(rec.Status) && capturedAt-last.CapturedAt < int64(p.opts.MaxGap/time.Second):
		p.cacheCurrent(ctx, rec)
		return MemberResult{MemberID: rec.UserID, Outcome: OutcomeSkipped, Reason: "unchanged"}
	}

	err = p.store.Append(ctx, &store.PresenceRecord{
		UserID:     rec.UserID,
		CapturedAt: capturedAt,
		Status:     string(rec.Status),
		Activity:   rec.Activity,
	})
	if err != nil {
		return failedResult(rec.UserID, err)
	}

	p.cacheCurrent(ctx, rec)
	return MemberResult{MemberID: rec.UserID, Outcome: OutcomeStored}
}

// cacheCurrent refreshes the member's latest-presence entry. Best
// effort; a cache failure never fails the member.
func (p *Poller) cacheCurrent(ctx context.Context, rec presence.Record) {
	if p.cache == nil {
		return
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, CurrentPresencePrefix+rec.UserID, val, 2*p.opts.Interval); err != nil {
		p.logger.Warn("presence cache update failed", "member_id", rec.UserID, "error", err)
	}
}

func failedResult(memberID string, err error) MemberResult {
	reason := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	var fe *graph.FetchError
	if errors.As(err, &fe) && errors.Is(fe.Err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	return MemberResult{MemberID: memberID, Outcome: OutcomeFailed, Reason: reason}
}
