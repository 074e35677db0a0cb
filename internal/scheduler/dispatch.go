package scheduler

import (
	"context"
	"log/slog"
	"slices"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/resolve"
	"github.com/roach88/reflow/internal/store"
)

// request queues cbs in group. A request for an executing instance
// supersedes that execution; a request for a queued one merges into it.
func (s *Scheduler) request(ctx context.Context, cbs []*resolve.Callback, group string) {
	for _, cb := range cbs {
		if cb.ExecutionGroup == "" {
			cb.ExecutionGroup = group
		}
		if ex, ok := s.executing[cb.ResolvedID]; ok {
			delete(s.executing, cb.ResolvedID)
			slog.Debug("execution superseded", "resolved_id", cb.ResolvedID, "token", ex.token)
			s.record(ctx, ex.cb, store.OutcomeSuperseded, nil)
		}
		if i := s.indexRequested(cb.ResolvedID); i >= 0 {
			s.requested[i].Merge(cb)
			delete(s.followers, cb.ResolvedID)
			continue
		}
		s.requested = append(s.requested, cb)
	}
}

// follow queues callbacks that only read outputs of other queued
// callbacks. Instances already queued or executing are left alone.
func (s *Scheduler) follow(cbs []*resolve.Callback, group string) {
	for _, cb := range cbs {
		if _, ok := s.executing[cb.ResolvedID]; ok {
			continue
		}
		if s.indexRequested(cb.ResolvedID) >= 0 {
			continue
		}
		if cb.ExecutionGroup == "" {
			cb.ExecutionGroup = group
		}
		s.followers[cb.ResolvedID] = true
		s.requested = append(s.requested, cb)
	}
}

func (s *Scheduler) indexRequested(resolvedID string) int {
	return slices.IndexFunc(s.requested, func(cb *resolve.Callback) bool {
		return cb.ResolvedID == resolvedID
	})
}

func (s *Scheduler) removeRequested(cb *resolve.Callback) {
	if i := s.indexRequested(cb.ResolvedID); i >= 0 {
		s.requested = slices.Delete(s.requested, i, i+1)
	}
	delete(s.followers, cb.ResolvedID)
}

func (s *Scheduler) active() []*resolve.Callback {
	active := slices.Clone(s.requested)
	for _, ex := range s.executing {
		active = append(active, ex.cb)
	}
	return active
}

// pump moves requested callbacks forward until a pass makes no progress.
// A pass can unblock others without starting anything, e.g. when a null
// callback is dropped. It returns only a *executor.ReferenceError.
func (s *Scheduler) pump(ctx context.Context) error {
	for {
		before := len(s.requested)
		if err := s.pumpOnce(ctx); err != nil {
			return err
		}
		if len(s.requested) == 0 || len(s.requested) >= before {
			return nil
		}
	}
}

// pumpOnce prunes, picks the ready callbacks and starts as many as the
// concurrency limit allows.
func (s *Scheduler) pumpOnce(ctx context.Context) error {
	s.prune(ctx)
	if len(s.requested) == 0 {
		return nil
	}

	ready := s.ready(ctx)
	if len(ready) == 0 {
		if len(s.executing) > 0 || len(s.requested) == 0 {
			return nil
		}
		// Everything left blocks everything else: a cycle that only shows
		// up in the live layout. Admit the first by priority.
		for _, cb := range s.requested {
			cb.Priority = resolve.Priority(s.graph, s.index, cb)
		}
		first := slices.MinFunc(s.requested, resolve.ComparePriority)
		slog.Warn("no callback is ready; breaking circular wait", "resolved_id", first.ResolvedID)
		ready = []*resolve.Callback{first}
	}

	for _, cb := range ready {
		cb.Priority = resolve.Priority(s.graph, s.index, cb)
	}
	slices.SortStableFunc(ready, resolve.ComparePriority)

	busy := make(map[string]bool)
	for _, ex := range s.executing {
		for _, o := range ex.cb.Outputs(s.index) {
			busy[o.String()] = true
		}
	}

	for _, cb := range ready {
		if s.maxConcurrent > 0 && len(s.executing) >= s.maxConcurrent {
			break
		}
		outs := cb.Outputs(s.index)
		if slices.ContainsFunc(outs, func(o resolve.ConcreteBinding) bool { return busy[o.String()] }) {
			continue
		}
		s.removeRequested(cb)
		if err := s.start(ctx, cb); err != nil {
			return err
		}
		if _, ok := s.executing[cb.ResolvedID]; ok {
			for _, o := range outs {
				busy[o.String()] = true
			}
		}
	}
	return nil
}

// prune drops requests whose outputs left the layout and re-queues the
// partly surviving ones.
func (s *Scheduler) prune(ctx context.Context) {
	added, removed := resolve.Prune(s.index, s.requested)
	if len(removed) == 0 {
		return
	}
	for _, cb := range removed {
		wasFollower := s.followers[cb.ResolvedID]
		s.removeRequested(cb)
		if slices.ContainsFunc(added, func(a *resolve.Callback) bool { return a.ResolvedID == cb.ResolvedID }) {
			if wasFollower {
				s.followers[cb.ResolvedID] = true
			}
			continue
		}
		slog.Debug("callback pruned", "resolved_id", cb.ResolvedID, "reason", "outputs removed")
		s.record(ctx, cb, store.OutcomePruned, nil)
	}
	s.requested = append(s.requested, added...)
}

// ready returns the requested callbacks none of whose inputs is about to
// change. Ready followers that nothing upstream triggered are dropped, and
// readiness is recomputed since they no longer block anyone.
func (s *Scheduler) ready(ctx context.Context) []*resolve.Callback {
	for {
		ready := resolve.Ready(s.index, s.requested, s.active(), s.graph)
		dropped := false
		for _, cb := range ready {
			if !s.followers[cb.ResolvedID] || cb.InitialCall || cb.MaxUrgency() >= resolve.Direct {
				continue
			}
			slog.Debug("callback pruned", "resolved_id", cb.ResolvedID, "reason", "inputs unchanged")
			s.removeRequested(cb)
			s.record(ctx, cb, store.OutcomePruned, nil)
			dropped = true
		}
		if !dropped {
			return ready
		}
	}
}

// start prepares cb and runs it on its own goroutine.
func (s *Scheduler) start(ctx context.Context, cb *resolve.Callback) error {
	if err := s.quota(cb.ExecutionGroup).Check(cb.ExecutionGroup); err != nil {
		s.reporter.Report(KindCallback, cb, err)
		s.record(ctx, cb, store.OutcomeError, err)
		return nil
	}

	p, err := executor.Prepare(s.index, s.tree, cb)
	if err != nil {
		s.reporter.Report(KindCallback, cb, err)
		s.record(ctx, cb, store.OutcomeError, err)
		return err
	}
	if p == nil {
		slog.Debug("null callback: inputs missing", "resolved_id", cb.ResolvedID)
		s.record(ctx, cb, store.OutcomeNull, nil)
		return nil
	}

	token := s.clock.Next()
	s.executing[cb.ResolvedID] = &execution{cb: cb, token: token}
	slog.Debug("callback started",
		"resolved_id", cb.ResolvedID,
		"priority", cb.Priority,
		"group", cb.ExecutionGroup,
		"triggers", p.ChangedPropIDs,
		"token", token,
	)

	run := cb.Clone()
	go func() {
		res := s.exec.Execute(ctx, run, p)
		s.queue.Enqueue(event{
			typ:        eventCompletion,
			completion: &completion{cb: run, token: token, result: res},
		})
	}()
	return nil
}

func (s *Scheduler) quota(group string) *QuotaEnforcer {
	q, ok := s.quotas[group]
	if !ok {
		q = NewQuotaEnforcer(s.maxSteps)
		s.quotas[group] = q
	}
	return q
}

// record journals a run outcome. Journal failures are logged, never fatal.
func (s *Scheduler) record(ctx context.Context, cb *resolve.Callback, outcome store.Outcome, err error) {
	if s.journal == nil {
		return
	}
	r := store.Run{
		Seq:        s.clock.Next(),
		GroupID:    cb.ExecutionGroup,
		ResolvedID: cb.ResolvedID,
		Outcome:    outcome,
		Priority:   cb.Priority,
		Triggers:   cb.Triggers(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	if werr := s.journal.WriteRun(ctx, r); werr != nil {
		slog.Warn("journal write failed", "resolved_id", cb.ResolvedID, "outcome", string(outcome), "error", werr)
	}
}
