package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"discord-interactions-server/internal/adapters/metrics"
	"discord-interactions-server/internal/core/domain"
	"discord-interactions-server/internal/core/ports"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

type Option func(*Store)

// WithConcurrency bounds how many operations of one pass are in flight at once.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithAlwaysPatch sends the full payload for every matched command, even without drift.
func WithAlwaysPatch() Option {
	return func(s *Store) {
		s.alwaysPatch = true
	}
}

// WithLocker serializes passes across processes sharing the same application and scope.
func WithLocker(l ports.Locker) Option {
	return func(s *Store) {
		s.locker = l
	}
}

// Store holds the desired-state queue and the known-remote cache of one scope.
type Store struct {
	transport   ports.Transport
	appID       string
	scope       domain.Scope
	concurrency int
	alwaysPatch bool
	locker      ports.Locker

	mu    sync.Mutex
	queue []*domain.Descriptor
	cache map[string]*domain.Descriptor

	busy atomic.Bool
}

func NewStore(transport ports.Transport, appID string, scope domain.Scope, opts ...Option) *Store {
	s := &Store{
		transport:   transport,
		appID:       appID,
		scope:       scope,
		concurrency: defaultConcurrency,
		cache:       make(map[string]*domain.Descriptor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Scope() domain.Scope { return s.scope }

// AddToQueue appends a command to the queue. It fails without touching the queue or cache
// when the entry is invalid or its name is already known in this scope.
func (s *Store) AddToQueue(entry domain.Entry) (*Store, error) {
	d, err := domain.Resolve(entry)
	if err != nil {
		return s, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasNameLocked(d.Name()) {
		return s, &DuplicateNameError{Name: d.Name(), Scope: s.scope}
	}

	s.queue = append(s.queue, d)
	s.recordSizesLocked()
	return s, nil
}

// Enqueue adds every entry in order and stops at the first failure.
func (s *Store) Enqueue(entries ...domain.Entry) error {
	for _, e := range entries {
		if _, err := s.AddToQueue(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Queue() []*domain.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Descriptor(nil), s.queue...)
}

// Cache returns a copy of the known-remote cache keyed by remote id.
func (s *Store) Cache() map[string]*domain.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.Descriptor, len(s.cache))
	for id, d := range s.cache {
		out[id] = d
	}
	return out
}

// Lookup finds a cached or queued descriptor by name, cache first.
func (s *Store) Lookup(name string) (*domain.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.cache {
		if d.Name() == name {
			return d, true
		}
	}
	for _, d := range s.queue {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Remote returns the cached remote representations sorted by name.
func (s *Store) Remote() []*discordgo.ApplicationCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*discordgo.ApplicationCommand, 0, len(s.cache))
	for _, d := range s.cache {
		if snap := d.Snapshot(); snap != nil {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FetchRemote loads the remote command list of the scope into the cache. Known ids keep
// their descriptor, which gets the refreshed snapshot. The queue is never touched.
func (s *Store) FetchRemote(ctx context.Context) ([]*domain.Descriptor, error) {
	remote, err := s.transport.Get(ctx, s.scope.CommandsPath(s.appID))
	if err != nil {
		return nil, &ReconcileError{Phase: PhaseFetch, Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.absorbLocked(remote)
	s.recordSizesLocked()
	return result, nil
}

func (s *Store) absorbLocked(remote []*discordgo.ApplicationCommand) []*domain.Descriptor {
	result := make([]*domain.Descriptor, 0, len(remote))
	seen := make(map[string]bool, len(remote))

	for _, rc := range remote {
		if rc == nil {
			continue
		}

		if d, ok := s.cache[rc.ID]; ok {
			d.Bind(rc)
			seen[rc.ID] = true
			result = append(result, d)
			continue
		}

		if d := s.desiredByNameLocked(rc.Name); d != nil {
			delete(s.cache, d.RemoteID())
			d.Bind(rc)
			s.cache[rc.ID] = d
			seen[rc.ID] = true
			result = append(result, d)
			continue
		}

		d, err := domain.HydrateDescriptor(rc)
		if err != nil {
			slog.Warn("Skipping malformed remote command", "scope", s.scope.Key(), "error", err)
			continue
		}
		s.cache[d.RemoteID()] = d
		seen[d.RemoteID()] = true
		result = append(result, d)
	}

	for id, d := range s.cache {
		if !seen[id] && !d.Desired() {
			delete(s.cache, id)
		}
	}

	return result
}

// Reconcile brings the remote command set of the scope in line with the desired state.
// Every operation of the pass is issued concurrently and the call returns once all of them
// settled. The report itemizes each operation; the error is the first failure observed.
// Only successful operations are applied to the queue and cache.
func (s *Store) Reconcile(ctx context.Context) (report Report, err error) {
	report.Scope = s.scope

	if !s.busy.CompareAndSwap(false, true) {
		return report, ErrReconcileInProgress
	}
	defer s.busy.Store(false)

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, s.lockKey())
		if err != nil {
			return report, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to release reconcile lock", "scope", s.scope.Key(), "error", err)
			}
		}()
	}

	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		metrics.ReconcileDuration.WithLabelValues(s.scope.Key()).Observe(report.Duration.Seconds())
	}()

	remote, err := s.FetchRemote(ctx)
	if err != nil {
		slog.Error("Failed to fetch remote commands", "scope", s.scope.Key(), "error", err)
		metrics.ReconcilePasses.WithLabelValues(s.scope.Key(), "failure").Inc()
		return report, err
	}

	pass := s.prepare(remote)

	// Issued operations run to completion regardless of the caller's context.
	results, responses, firstErr := s.execute(context.WithoutCancel(ctx), pass)
	s.apply(pass, results, responses)

	report.Results = results
	status := "success"
	if firstErr != nil {
		status = "failure"
	}
	metrics.ReconcilePasses.WithLabelValues(s.scope.Key(), status).Inc()

	slog.Info("Reconciled commands",
		"scope", s.scope.Key(),
		"created", len(report.Names(StatusCreated)),
		"updated", len(report.Names(StatusUpdated)),
		"deleted", len(report.Names(StatusDeleted)),
		"unchanged", len(report.Names(StatusUnchanged)),
		"failed", len(report.Failed()),
	)

	return report, firstErr
}

type operation struct {
	phase      Phase
	name       string
	path       string
	body       any
	skip       bool
	target     *domain.Descriptor
	remoteID   string
	previousID string
}

type passOps struct {
	ops        []operation
	superseded []*domain.Descriptor
}

// prepare computes the plan and request bodies while holding the lock, so the concurrent
// phase never reads descriptor state.
func (s *Store) prepare(remote []*domain.Descriptor) passOps {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := buildPlan(s.queue, s.cache, remote)
	out := passOps{superseded: p.superseded}

	for _, d := range p.superseded {
		slog.Warn("Queued command superseded by a later entry", "scope", s.scope.Key(), "name", d.Name())
	}

	for _, d := range p.creates {
		out.ops = append(out.ops, operation{
			phase:      PhaseCreate,
			name:       d.Name(),
			path:       s.scope.CommandsPath(s.appID),
			body:       d.Payload(),
			target:     d,
			previousID: d.RemoteID(),
		})
	}

	for _, r := range p.deletes {
		out.ops = append(out.ops, operation{
			phase:    PhaseDelete,
			name:     r.Name(),
			path:     s.scope.CommandPath(s.appID, r.RemoteID()),
			target:   r,
			remoteID: r.RemoteID(),
		})
	}

	for _, u := range p.updates {
		if u.desired != u.remote {
			u.desired.Bind(u.remote.Snapshot())
		}
		op := operation{
			phase:    PhaseUpdate,
			name:     u.desired.Name(),
			path:     s.scope.CommandPath(s.appID, u.remote.RemoteID()),
			target:   u.desired,
			remoteID: u.remote.RemoteID(),
		}
		if s.alwaysPatch {
			op.body = u.desired.Payload()
		} else if changes := u.desired.Changes(); len(changes) > 0 {
			op.body = changes
		} else {
			op.skip = true
		}
		out.ops = append(out.ops, op)
	}

	return out
}

func (s *Store) execute(ctx context.Context, pass passOps) ([]OperationResult, []*discordgo.ApplicationCommand, error) {
	results := make([]OperationResult, len(pass.ops))
	responses := make([]*discordgo.ApplicationCommand, len(pass.ops))

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i, op := range pass.ops {
		if op.skip {
			results[i] = OperationResult{Name: op.name, Phase: op.phase, RemoteID: op.remoteID, Status: StatusUnchanged}
			continue
		}
		i, op := i, op
		g.Go(func() error {
			resp, res := s.run(ctx, op)
			results[i] = res
			responses[i] = resp
			if res.Err != nil {
				return res.Err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, responses, err
}

func (s *Store) run(ctx context.Context, op operation) (*discordgo.ApplicationCommand, OperationResult) {
	res := OperationResult{Name: op.name, Phase: op.phase, RemoteID: op.remoteID}

	var (
		resp *discordgo.ApplicationCommand
		err  error
	)
	switch op.phase {
	case PhaseCreate:
		resp, err = s.transport.Post(ctx, op.path, op.body)
		if err == nil && (resp == nil || resp.ID == "") {
			err = ErrMissingRemoteID
		}
		res.Status = StatusCreated
	case PhaseDelete:
		err = s.transport.Delete(ctx, op.path)
		res.Status = StatusDeleted
	case PhaseUpdate:
		resp, err = s.transport.Patch(ctx, op.path, op.body)
		res.Status = StatusUpdated
	}

	if err != nil {
		res.Status = StatusFailed
		res.Err = &ReconcileError{Phase: op.phase, Name: op.name, Cause: err}
		slog.Error("Command operation failed", "scope", s.scope.Key(), "phase", op.phase, "name", op.name, "error", err)
		metrics.CommandOperations.WithLabelValues(s.scope.Key(), string(op.phase), "failure").Inc()
		return nil, res
	}

	if resp != nil && resp.ID != "" {
		res.RemoteID = resp.ID
	}
	slog.Info("Command operation succeeded", "scope", s.scope.Key(), "phase", op.phase, "name", op.name, "id", res.RemoteID)
	metrics.CommandOperations.WithLabelValues(s.scope.Key(), string(op.phase), "success").Inc()
	return resp, res
}

// apply folds the successful operations of a pass into the queue and cache.
func (s *Store) apply(pass passOps, results []OperationResult, responses []*discordgo.ApplicationCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range pass.superseded {
		s.dequeueLocked(d)
	}

	for i, op := range pass.ops {
		if !results[i].OK() {
			continue
		}

		switch op.phase {
		case PhaseCreate:
			if op.previousID != "" {
				delete(s.cache, op.previousID)
			}
			op.target.Bind(responses[i])
			s.settleLocked(op.target)
		case PhaseDelete:
			if cached, ok := s.cache[op.remoteID]; ok && cached == op.target {
				delete(s.cache, op.remoteID)
			}
		case PhaseUpdate:
			if responses[i] != nil {
				op.target.Bind(responses[i])
			}
			s.settleLocked(op.target)
		}
	}

	s.recordSizesLocked()
}

// settleLocked moves a reconciled descriptor from the queue into the cache, dropping any
// other cache entry that still carries its name.
func (s *Store) settleLocked(d *domain.Descriptor) {
	s.dequeueLocked(d)
	for id, cached := range s.cache {
		if cached != d && cached.SameName(d) {
			delete(s.cache, id)
		}
	}
	s.cache[d.RemoteID()] = d
}

func (s *Store) dequeueLocked(d *domain.Descriptor) {
	for i, q := range s.queue {
		if q == d {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Store) hasNameLocked(name string) bool {
	for _, d := range s.queue {
		if d.Name() == name {
			return true
		}
	}
	for _, d := range s.cache {
		if d.Name() == name {
			return true
		}
	}
	return false
}

func (s *Store) desiredByNameLocked(name string) *domain.Descriptor {
	for _, d := range s.cache {
		if d.Desired() && d.Name() == name {
			return d
		}
	}
	return nil
}

func (s *Store) lockKey() string {
	return fmt.Sprintf("commandsync:%s:%s", s.appID, s.scope.Key())
}

func (s *Store) recordSizesLocked() {
	metrics.QueuedCommands.WithLabelValues(s.scope.Key()).Set(float64(len(s.queue)))
	metrics.CachedCommands.WithLabelValues(s.scope.Key()).Set(float64(len(s.cache)))
}
