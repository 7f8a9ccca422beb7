package core

// orchestrator.go runs one poll cycle for one resource:
//
//	Idle -> CheckCache -> (fresh) Idle
//	                   -> AcquireLock -> (denied) Idle
//	                                  -> (committed meanwhile) ReleaseLock -> Idle
//	                                  -> Fetch -> Validate
//	                                     -> (valid)   PreserveRows    -> CommitExpiry -> ReleaseLock -> Idle
//	                                     -> (invalid) PreserveInvalid -> CommitExpiry -> ReleaseLock -> Idle
//
// A failure in Fetch, Validate or PreserveRows goes straight to ReleaseLock
// and leaves the previous expiry in place, so the resource is retried on the
// next cycle. The lock is released on every path once it was acquired.

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/evesync/internal/cache"
	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/logging"
	"github.com/JonMunkholm/evesync/internal/preserve"
	"github.com/JonMunkholm/evesync/internal/retriever"
)

// DefaultFallbackInterval is used when a document carries no usable cache
// hint and the endpoint sets no interval of its own.
const DefaultFallbackInterval = 5 * time.Minute

// Orchestrator drives the poll cycle.
type Orchestrator struct {
	gate      *cache.Gate
	retriever retriever.Retriever
	store     *preserve.Store
	archive   *Archive
	fallback  time.Duration
	now       func() time.Time

	// archiveValid keeps the last valid body per resource in the archive
	// next to the Invalid-prefixed copies.
	archiveValid bool
}

// NewOrchestrator creates an Orchestrator. A non-positive fallback selects
// DefaultFallbackInterval.
func NewOrchestrator(gate *cache.Gate, r retriever.Retriever, store *preserve.Store, archive *Archive, fallback time.Duration) *Orchestrator {
	if fallback <= 0 {
		fallback = DefaultFallbackInterval
	}
	return &Orchestrator{
		gate:      gate,
		retriever: r,
		store:     store,
		archive:   archive,
		fallback:  fallback,
		now:       time.Now,
	}
}

// Run executes one cycle for d. It never returns an error: failures are
// reported in the result and logged.
func (o *Orchestrator) Run(ctx context.Context, ep Endpoint, d Descriptor) (res CycleResult) {
	now := o.now().UTC()
	logger := logging.WithFields(ctx,
		"section", d.Section,
		"api", d.API,
		"owner_id", d.OwnerID,
	)

	res = CycleResult{Endpoint: ep.Key(), Descriptor: d}
	defer func() {
		res.enter(StateIdle)
		res.Duration = o.now().Sub(now)
		if res.Err != nil {
			logger.Warn("cycle aborted", "outcome", res.Outcome, "code", res.Code, "error", res.Err)
		} else {
			logger.Debug("cycle finished", "outcome", res.Outcome, "rows", res.Rows)
		}
	}()

	res.enter(StateCheckCache)
	fresh, err := o.gate.IsFresh(ctx, d.Key, d.OwnerID, now)
	if err != nil {
		res.fail(err)
		return res
	}
	if fresh {
		res.Outcome = OutcomeFresh
		return res
	}

	res.enter(StateAcquireLock)
	acquired, err := o.gate.TryAcquire(ctx, d.Key, d.OwnerID)
	if err != nil {
		res.fail(err)
		return res
	}
	if !acquired {
		res.Outcome = OutcomeLocked
		return res
	}
	defer func() {
		res.enter(StateReleaseLock)
		if err := o.gate.Release(context.WithoutCancel(ctx), d.Key, d.OwnerID); err != nil {
			logger.Error("release lock failed", "error", err)
		}
	}()

	// Another holder may have committed between CheckCache and the lock.
	if fresh, err := o.gate.IsFresh(ctx, d.Key, d.OwnerID, now); err != nil {
		res.fail(err)
		return res
	} else if fresh {
		res.Outcome = OutcomeFresh
		return res
	}

	res.enter(StateFetch)
	body, err := o.retriever.Fetch(ctx, d.Request())
	if err != nil {
		res.fail(err)
		return res
	}

	res.enter(StateValidate)
	doc, err := document.Parse(body)
	if err == nil {
		err = doc.Validate(ep.shapes()...)
	}
	var invalid *document.InvalidError
	if errors.As(err, &invalid) {
		o.preserveInvalid(ctx, &res, ep, d, body, doc, invalid, now)
		return res
	}
	if err != nil {
		res.fail(err)
		return res
	}

	res.enter(StatePreserveRows)
	rows, err := o.preserveRows(ctx, ep, d, doc)
	if err != nil {
		res.fail(err)
		return res
	}
	res.Rows = rows
	if o.archiveValid {
		o.archiveDocument(ctx, d, d.API, "", body, now)
	}

	res.enter(StateCommitExpiry)
	expiry := now.Add(doc.CacheInterval(o.interval(ep)))
	if err := o.gate.CommitExpiry(ctx, d.Key, d.OwnerID, expiry); err != nil {
		res.fail(err)
		return res
	}
	res.Expiry = expiry
	res.Outcome = OutcomeStored
	return res
}

func (o *Orchestrator) interval(ep Endpoint) time.Duration {
	if ep.Interval > 0 {
		return ep.Interval
	}
	return o.fallback
}

// preserveRows writes every target of ep in one transaction.
func (o *Orchestrator) preserveRows(ctx context.Context, ep Endpoint, d Descriptor, doc *document.Document) (int, error) {
	sess, err := o.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = sess.Rollback() }()

	written := 0
	for _, t := range ep.Targets {
		defaults := map[string]any{}
		if t.OwnerColumn != "" {
			defaults[t.OwnerColumn] = d.OwnerID
		}

		batch, err := sess.Batch(ctx, t.Table, defaults)
		if err != nil {
			return 0, err
		}
		for row, err := range doc.Rows(t.Shape) {
			if err != nil {
				return 0, &document.InvalidError{Reason: "read " + t.Shape.String() + ": " + err.Error()}
			}
			if err := batch.AddRow(row); err != nil {
				return 0, err
			}
		}
		if err := batch.Flush(ctx); err != nil {
			return 0, err
		}
		written += batch.Written()
	}

	if err := sess.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// archiveDocument stores body under api. A failure is logged and does not
// affect the cycle.
func (o *Orchestrator) archiveDocument(ctx context.Context, d Descriptor, api, reason string, body []byte, now time.Time) {
	err := o.archive.Store(ctx, RawDocument{
		Section:     d.Section,
		API:         api,
		OwnerID:     d.OwnerID,
		ResourceKey: d.Key,
		Reason:      reason,
		Body:        string(body),
		FetchedAt:   now,
	})
	if err != nil {
		logging.WithFields(ctx, "section", d.Section, "api", api, "owner_id", d.OwnerID).
			Error("archive document failed", "error", err)
	}
}

// preserveInvalid archives the raw document and commits an expiry so a
// broken source is not polled again before its interval.
func (o *Orchestrator) preserveInvalid(ctx context.Context, res *CycleResult, ep Endpoint, d Descriptor,
	body []byte, doc *document.Document, invalid *document.InvalidError, now time.Time,
) {
	res.enter(StatePreserveInvalid)
	o.archiveDocument(ctx, d, InvalidPrefix+d.API, invalid.Reason, body, now)

	interval := o.interval(ep)
	if doc != nil {
		interval = doc.CacheInterval(interval)
	}

	res.enter(StateCommitExpiry)
	expiry := now.Add(interval)
	if err := o.gate.CommitExpiry(ctx, d.Key, d.OwnerID, expiry); err != nil {
		res.fail(err)
		return
	}

	res.Outcome = OutcomeInvalid
	res.Expiry = expiry
	res.Err = invalid
	res.Error = invalid.Error()
	res.Code = MapError(invalid).Code
}
