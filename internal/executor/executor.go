// Package executor applies the hub's state-machine mutations
// (upload-step, pending, done, error, cancel, reset, reset-errors)
// against the metadata store, walking the dependency DAG read from the
// blob store where a transition needs to propagate.
//
// pending, done, and error apply unconditionally of the row's current
// status, same as cancel and reset; only cancel and reset additionally
// propagate across the parent+child closure.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/logger"
	"github.com/daniel-olson-code/buelon/internal/metadata"
)

type stepEdges struct {
	Parents  []string `json:"parents"`
	Children []string `json:"children"`
}

type Executor struct {
	repo  metadata.Repo
	store blob.Store
	log   *logger.Logger
}

func New(repo metadata.Repo, store blob.Store, log *logger.Logger) *Executor {
	return &Executor{repo: repo, store: store, log: log.With("component", "executor")}
}

// Store exposes the backing blob store so the dispatcher can persist a
// Step definition document as part of applying upload-step/upload-steps,
// without the executor itself owning wire-level decoding.
func (e *Executor) Store() blob.Store { return e.store }

// UploadStep inserts a step row from a freshly-parsed definition with the
// caller-supplied initial status (queued for non-starters, pending for
// starters, by convention of the caller — the executor does not infer it).
func (e *Executor) UploadStep(ctx context.Context, def *blob.Definition, status metadata.Status) error {
	edges, err := json.Marshal(stepEdges{Parents: def.Parents, Children: def.Children})
	if err != nil {
		return fmt.Errorf("marshal edges for %q: %w", def.ID, err)
	}
	return e.repo.Insert(ctx, &metadata.Step{
		ID:       def.ID,
		Priority: def.Priority,
		Scope:    def.Scope,
		Velocity: def.Velocity,
		Tag:      def.Tag,
		Status:   status,
		Epoch:    time.Now().Unix(),
		Edges:    datatypes.JSON(edges),
	})
}

// Pending sets a step's status to pending with a fresh epoch,
// unconditionally of its current status.
func (e *Executor) Pending(ctx context.Context, id string) error {
	return e.repo.UpdateFields(ctx, id, map[string]interface{}{
		"status": metadata.StatusPending,
	})
}

// Done marks a step success and promotes its children (read from the
// blob store's Step definition) to pending, unconditionally of current
// status.
func (e *Executor) Done(ctx context.Context, id string) error {
	def, err := blob.GetStepDefinition(ctx, e.store, id)
	if err != nil {
		return fmt.Errorf("load step definition for %q: %w", id, err)
	}
	if err := e.repo.UpdateFields(ctx, id, map[string]interface{}{
		"status": metadata.StatusSuccess,
	}); err != nil {
		return err
	}
	for _, childID := range def.Children {
		if err := e.repo.UpdateFields(ctx, childID, map[string]interface{}{
			"status": metadata.StatusPending,
		}); err != nil {
			return fmt.Errorf("promote child %q: %w", childID, err)
		}
	}
	e.maybeGC(ctx, id)
	return nil
}

// Error sets a step's status/epoch/msg/trace from a worker-reported
// failure, unconditionally of its current status.
func (e *Executor) Error(ctx context.Context, id, msg, trace string) error {
	return e.repo.UpdateFields(ctx, id, map[string]interface{}{
		"status": metadata.StatusError,
		"msg":    msg,
		"trace":  trace,
	})
}

// Cancel recursively cancels the full parent+child closure of id,
// visiting each step once.
func (e *Executor) Cancel(ctx context.Context, id string) error {
	if err := e.walkClosure(ctx, id, func(stepID string) error {
		return e.repo.UpdateFields(ctx, stepID, map[string]interface{}{
			"status": metadata.StatusCancel,
		})
	}); err != nil {
		return err
	}
	e.maybeGC(ctx, id)
	return nil
}

// Reset recursively resets the parent+child closure of id: a step with
// parents goes back to queued (it must wait for them again); a step with
// no parents goes straight to pending.
func (e *Executor) Reset(ctx context.Context, id string) error {
	return e.walkClosure(ctx, id, func(stepID string) error {
		def, err := blob.GetStepDefinition(ctx, e.store, stepID)
		if err != nil {
			return fmt.Errorf("load step definition for %q: %w", stepID, err)
		}
		status := metadata.StatusPending
		if len(def.Parents) > 0 {
			status = metadata.StatusQueued
		}
		return e.repo.UpdateFields(ctx, stepID, map[string]interface{}{"status": status})
	})
}

// ResetErrors bulk-transitions error (and optionally working) rows back
// to pending, scoped to the given scopes.
func (e *Executor) ResetErrors(ctx context.Context, scopes []string, includeWorking bool) (int, error) {
	statuses := []metadata.Status{metadata.StatusError}
	if includeWorking {
		statuses = append(statuses, metadata.StatusWorking)
	}
	staleCutoff := time.Now().Add(24 * time.Hour) // effectively "all", not just stale-working
	total := 0
	for _, st := range statuses {
		rows, err := e.repo.SelectCandidates(ctx, scopes, st, false, staleCutoff, 100000, false)
		if err != nil {
			return total, err
		}
		for _, row := range rows {
			if err := e.repo.UpdateFields(ctx, row.ID, map[string]interface{}{"status": metadata.StatusPending}); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

// walkClosure performs a visited-set-guarded BFS over the parent+child
// edges read from the blob store, applying fn to every step reached,
// including id itself. Cycles cannot cause infinite traversal since each
// id is enqueued at most once.
func (e *Executor) walkClosure(ctx context.Context, id string, fn func(stepID string) error) error {
	visited := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		def, err := blob.GetStepDefinition(ctx, e.store, current)
		if err != nil {
			return fmt.Errorf("load step definition for %q: %w", current, err)
		}
		if err := fn(current); err != nil {
			return err
		}
		for _, neighbor := range append(append([]string{}, def.Parents...), def.Children...) {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			queue = append(queue, neighbor)
		}
	}
	return nil
}

// maybeGC deletes step-data/<id> for every step in id's parent+child
// closure once that whole closure has reached a terminal status
// (success or cancel). The step definition blob is never deleted.
func (e *Executor) maybeGC(ctx context.Context, id string) {
	closure, err := e.closureIDs(ctx, id)
	if err != nil {
		e.log.Warn("blob GC: failed to compute closure", "step_id", id, "error", err)
		return
	}
	rows, err := e.repo.GetMany(ctx, closure)
	if err != nil {
		e.log.Warn("blob GC: failed to load closure rows", "step_id", id, "error", err)
		return
	}
	if len(rows) != len(closure) {
		return // not every step in the closure has a row yet
	}
	for _, row := range rows {
		if !row.Status.IsTerminal() {
			return
		}
	}
	for _, stepID := range closure {
		if err := e.store.Delete(ctx, blob.CategoryStepData, stepID); err != nil && err != blob.ErrNotFound {
			e.log.Warn("blob GC: failed to delete step-data blob", "step_id", stepID, "error", err)
		}
	}
}

func (e *Executor) closureIDs(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := e.walkClosure(ctx, id, func(stepID string) error {
		ids = append(ids, stepID)
		return nil
	})
	return ids, err
}
