package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/evesync/internal/logging"
)

// PollSummary reports one pass over a set of jobs.
type PollSummary struct {
	CycleID  string          `json:"cycle_id"`
	Jobs     int             `json:"jobs"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Results  []CycleResult   `json:"results"`
	Duration time.Duration   `json:"duration_ns"`
}

// Runner executes jobs concurrently, bounded by a CycleLimiter.
type Runner struct {
	orch    *Orchestrator
	limiter *CycleLimiter
}

// NewRunner creates a Runner.
func NewRunner(orch *Orchestrator, limiter *CycleLimiter) *Runner {
	return &Runner{orch: orch, limiter: limiter}
}

// Run executes every job and returns the results in job order. Jobs queue
// for a limiter slot for as long as ctx allows; a job is reported as failed
// without being attempted only when ctx ends first.
func (r *Runner) Run(ctx context.Context, jobs []Job) PollSummary {
	start := time.Now()
	cycleID := uuid.NewString()
	ctx = logging.WithCycleID(ctx, cycleID)
	logger := logging.FromContext(ctx)

	results := make([]CycleResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limiter.MaxConcurrent())
	for i, job := range jobs {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				res := CycleResult{Endpoint: job.Endpoint.Key(), Descriptor: job.Descriptor}
				res.fail(err)
				results[i] = res
				return nil
			}
			defer r.limiter.Release()

			results[i] = r.orch.Run(gctx, job.Endpoint, job.Descriptor)
			return nil
		})
	}
	_ = g.Wait()

	summary := PollSummary{
		CycleID:  cycleID,
		Jobs:     len(jobs),
		Outcomes: make(map[Outcome]int),
		Results:  results,
		Duration: time.Since(start),
	}
	for _, res := range results {
		summary.Outcomes[res.Outcome]++
	}

	logger.Info("poll finished",
		"jobs", summary.Jobs,
		"stored", summary.Outcomes[OutcomeStored],
		"fresh", summary.Outcomes[OutcomeFresh],
		"locked", summary.Outcomes[OutcomeLocked],
		"invalid", summary.Outcomes[OutcomeInvalid],
		"failed", summary.Outcomes[OutcomeFailed],
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary
}
