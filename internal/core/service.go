package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/evesync/internal/access"
	"github.com/JonMunkholm/evesync/internal/cache"
	"github.com/JonMunkholm/evesync/internal/database"
	"github.com/JonMunkholm/evesync/internal/preserve"
	"github.com/JonMunkholm/evesync/internal/retriever"
)

// ErrUnknownEndpoint is returned when no endpoint is registered under a name.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// PollTimeout is the maximum duration for one poll of every planned job.
var PollTimeout = 10 * time.Minute

// Options configures a Service.
type Options struct {
	Retriever        retriever.Retriever
	Locker           cache.Locker
	FallbackInterval time.Duration
	Concurrency      int
	MaxWait          time.Duration
	// ArchiveValid also archives the last valid document per resource.
	ArchiveValid bool
}

// Service provides the operations exposed by the HTTP API and the CLI.
type Service struct {
	db       *database.DB
	registry *access.Registry
	keys     *access.KeyStore
	gate     *cache.Gate
	archive  *Archive
	orch     *Orchestrator
	planner  *Planner
	runner   *Runner
	limiter  *CycleLimiter
}

// NewService wires a Service over db.
func NewService(db *database.DB, registry *access.Registry, opts Options) (*Service, error) {
	if opts.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if opts.Locker == nil {
		opts.Locker = cache.NewSQLLocker(db, cache.NewHolderID())
	}
	if registry == nil {
		registry = access.Default()
	}

	keys := access.NewKeyStore(db)
	gate := cache.NewGate(db, opts.Locker)
	archive := NewArchive(db)
	orch := NewOrchestrator(gate, opts.Retriever, preserve.NewStore(db), archive, opts.FallbackInterval)
	orch.archiveValid = opts.ArchiveValid
	limiter := NewCycleLimiter(opts.Concurrency, opts.MaxWait)

	return &Service{
		db:       db,
		registry: registry,
		keys:     keys,
		gate:     gate,
		archive:  archive,
		orch:     orch,
		planner:  NewPlanner(db, keys, registry),
		runner:   NewRunner(orch, limiter),
		limiter:  limiter,
	}, nil
}

// Registry returns the capability registry.
func (s *Service) Registry() *access.Registry {
	return s.registry
}

// Limiter returns the cycle limiter.
func (s *Service) Limiter() *CycleLimiter {
	return s.limiter
}

// Archive returns the diagnostic document archive.
func (s *Service) Archive() *Archive {
	return s.archive
}

// Ping checks database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Polling
// ============================================================================

// Poll plans every job and runs them.
func (s *Service) Poll(ctx context.Context) (PollSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, PollTimeout)
	defer cancel()

	jobs, err := s.planner.Plan(ctx)
	if err != nil {
		return PollSummary{}, fmt.Errorf("plan poll: %w", err)
	}
	return s.runner.Run(ctx, jobs), nil
}

// PollKey runs the jobs of one registered key.
func (s *Service) PollKey(ctx context.Context, keyID int64) (PollSummary, error) {
	k, err := s.keys.Lookup(ctx, keyID, false)
	if err != nil {
		return PollSummary{}, err
	}
	jobs, err := s.planner.PlanKey(ctx, k)
	if err != nil {
		return PollSummary{}, fmt.Errorf("plan key %d: %w", keyID, err)
	}
	return s.runner.Run(ctx, jobs), nil
}

// RunEndpoint runs a single cycle for section/name.
func (s *Service) RunEndpoint(ctx context.Context, section, name string, ownerID int64, args ...Arg) (CycleResult, error) {
	ep, ok := Get(section, name)
	if !ok {
		return CycleResult{}, fmt.Errorf("%w: %s/%s", ErrUnknownEndpoint, section, name)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return CycleResult{}, err
	}
	defer s.limiter.Release()

	return s.orch.Run(ctx, ep, NewDescriptor(ep.Section, ep.Name, ownerID, args...)), nil
}

// EndpointInfo describes a registered endpoint.
type EndpointInfo struct {
	Section string   `json:"section"`
	Name    string   `json:"name"`
	Scope   string   `json:"scope"`
	Tables  []string `json:"tables"`
}

// ListEndpoints returns every registered endpoint.
func (s *Service) ListEndpoints() []EndpointInfo {
	eps := All()
	infos := make([]EndpointInfo, len(eps))
	for i, ep := range eps {
		tables := make([]string, len(ep.Targets))
		for j, t := range ep.Targets {
			tables[j] = t.Table.Name
		}
		infos[i] = EndpointInfo{Section: ep.Section, Name: ep.Name, Scope: ep.Scope.String(), Tables: tables}
	}
	return infos
}

// ============================================================================
// Keys and capabilities
// ============================================================================

// Key returns a registered key.
func (s *Service) Key(ctx context.Context, keyID int64) (*access.Key, error) {
	return s.keys.Lookup(ctx, keyID, false)
}

// RegisterKey stores a key with its verification code. An existing key keeps
// its mask.
func (s *Service) RegisterKey(ctx context.Context, keyID int64, vCode string) (*access.Key, error) {
	k, err := s.keys.Lookup(ctx, keyID, true)
	if err != nil {
		return nil, err
	}
	k.VCode = strings.TrimSpace(vCode)
	k.IsActive = true
	if err := s.keys.Store(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// SetKeyActive enables or disables polling of a key.
func (s *Service) SetKeyActive(ctx context.Context, keyID int64, active bool) (*access.Key, error) {
	k, err := s.keys.Lookup(ctx, keyID, false)
	if err != nil {
		return nil, err
	}
	k.IsActive = active
	if err := s.keys.Store(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// AddCapability enables name for the key, creating the key if needed.
// alreadyActive is true when nothing changed.
func (s *Service) AddCapability(ctx context.Context, keyID int64, name, section string) (key *access.Key, alreadyActive bool, err error) {
	k, err := s.keys.Lookup(ctx, keyID, true)
	if err != nil {
		return nil, false, err
	}
	alreadyActive, err = k.AddActiveAPI(s.registry, name, section)
	if err != nil {
		return nil, false, err
	}
	if !alreadyActive || !k.Exists() {
		if err := s.keys.Store(ctx, k); err != nil {
			return nil, false, err
		}
	}
	return k, alreadyActive, nil
}

// RemoveCapability disables name for the key. wasActive is false when
// nothing changed.
func (s *Service) RemoveCapability(ctx context.Context, keyID int64, name, section string) (key *access.Key, wasActive bool, err error) {
	k, err := s.keys.Lookup(ctx, keyID, false)
	if err != nil {
		return nil, false, err
	}
	wasActive, err = k.RemoveActiveAPI(s.registry, name, section)
	if err != nil {
		return nil, false, err
	}
	if wasActive {
		if err := s.keys.Store(ctx, k); err != nil {
			return nil, false, err
		}
	}
	return k, wasActive, nil
}

// Capabilities lists the capabilities enabled for a key.
func (s *Service) Capabilities(ctx context.Context, keyID int64) ([]string, error) {
	k, err := s.keys.Lookup(ctx, keyID, false)
	if err != nil {
		return nil, err
	}
	return k.ActiveAPIs(s.registry), nil
}

// ============================================================================
// Locks
// ============================================================================

// Locks lists every held single-flight lock.
func (s *Service) Locks(ctx context.Context) ([]cache.Lock, error) {
	return s.gate.Locker().List(ctx)
}

// ReapLocks removes locks older than staleAfter.
func (s *Service) ReapLocks(ctx context.Context, staleAfter time.Duration) int {
	return cache.ReapOnce(ctx, s.gate.Locker(), staleAfter, time.Now())
}
