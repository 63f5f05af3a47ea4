// Package deferred tracks placeholder operations whose results are produced
// outside the sandbox. Script code receives an Operation handle immediately;
// the host resolves or fails it later through the server. Any probe of a
// still-pending handle unwinds evaluation with a PendingError so synchronous
// code cannot observe a half-finished value.
package deferred

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies what work an operation represents.
type Kind string

const (
	KindLLMCall   Kind = "llm_call"
	KindLLMBatch  Kind = "llm_batch"
	KindSummarize Kind = "summarize"
	KindEmbed     Kind = "embed"
	KindMapReduce Kind = "map_reduce"
)

// State is the lifecycle state of an operation. Transitions are monotonic:
// pending moves exactly once to resolved or failed.
type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
	StateFailed   State = "failed"
)

// Operation is a placeholder for an async result.
type Operation struct {
	ID     string
	Kind   Kind
	Params map[string]any
	State  State
	Result any
	Err    string
}

// NewOperation mints a pending operation with a random id.
func NewOperation(kind Kind, params map[string]any) *Operation {
	if params == nil {
		params = map[string]any{}
	}
	return &Operation{
		ID:     uuid.NewString(),
		Kind:   kind,
		Params: params,
		State:  StatePending,
	}
}

// IsPending reports whether the operation has not reached a terminal state.
func (o *Operation) IsPending() bool { return o.State == StatePending }

// IsResolved reports whether the operation resolved successfully.
func (o *Operation) IsResolved() bool { return o.State == StateResolved }

// IsFailed reports whether the operation failed.
func (o *Operation) IsFailed() bool { return o.State == StateFailed }

// Resolve transitions the operation to resolved. Terminal states are
// single-writer: resolving anything but a pending operation fails.
func (o *Operation) Resolve(result any) error {
	if o.State != StatePending {
		return &StateError{ID: o.ID, State: o.State}
	}
	o.Result = result
	o.State = StateResolved
	return nil
}

// Fail transitions the operation to failed.
func (o *Operation) Fail(errMsg string) error {
	if o.State != StatePending {
		return &StateError{ID: o.ID, State: o.State}
	}
	o.Err = errMsg
	o.State = StateFailed
	return nil
}

// Get returns the result of a resolved operation. A pending operation raises
// the pending signal; a failed one reports its stored error.
func (o *Operation) Get() (any, error) {
	switch o.State {
	case StatePending:
		return nil, &PendingError{OperationID: o.ID}
	case StateFailed:
		msg := o.Err
		if msg == "" {
			msg = "Operation failed"
		}
		return nil, &FailedError{OperationID: o.ID, Message: msg}
	default:
		return o.Result, nil
	}
}

// String is the debug form; it never raises.
func (o *Operation) String() string {
	return fmt.Sprintf("DeferredOperation(%s..., %s, %s)", shortID(o.ID), o.Kind, o.State)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// PendingError is the control-flow signal raised when code touches a pending
// operation. The server catches it to report which operation blocks progress.
type PendingError struct {
	OperationID string
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("Operation %s is still pending", e.OperationID)
}

// FailedError reports access to a failed operation.
type FailedError struct {
	OperationID string
	Message     string
}

func (e *FailedError) Error() string { return e.Message }

// StateError reports a second terminal transition on an operation.
type StateError struct {
	ID    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot transition operation %s in state %s", e.ID, e.State)
}

// NotFoundError reports a resolution for an id the registry never issued.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown operation: %s", e.ID)
}

// Registry tracks every operation a session has created, in creation order.
type Registry struct {
	order     []string
	ops       map[string]*Operation
	onCreated []func(*Operation)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Create mints a new pending operation, notifies every creation callback and
// returns the handle.
func (r *Registry) Create(kind Kind, params map[string]any) *Operation {
	op := NewOperation(kind, params)
	r.ops[op.ID] = op
	r.order = append(r.order, op.ID)
	for _, cb := range r.onCreated {
		cb(op)
	}
	return op
}

// Get looks up an operation by id, nil when unknown.
func (r *Registry) Get(id string) *Operation {
	return r.ops[id]
}

// Resolve transitions the identified operation to resolved.
func (r *Registry) Resolve(id string, result any) error {
	op, ok := r.ops[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	return op.Resolve(result)
}

// Fail transitions the identified operation to failed.
func (r *Registry) Fail(id string, errMsg string) error {
	op, ok := r.ops[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	return op.Fail(errMsg)
}

// PendingIDs returns the ids of all pending operations in creation order.
func (r *Registry) PendingIDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.ops[id].IsPending() {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingOperations returns all pending operations in creation order.
func (r *Registry) PendingOperations() []*Operation {
	ops := make([]*Operation, 0, len(r.order))
	for _, id := range r.order {
		if op := r.ops[id]; op.IsPending() {
			ops = append(ops, op)
		}
	}
	return ops
}

// ClearResolved removes terminal entries, preserving pending ones, and
// returns the removed count.
func (r *Registry) ClearResolved() int {
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		if r.ops[id].IsPending() {
			kept = append(kept, id)
		} else {
			delete(r.ops, id)
			removed++
		}
	}
	r.order = kept
	return removed
}

// OnCreated registers a callback invoked for every created operation.
func (r *Registry) OnCreated(cb func(*Operation)) {
	r.onCreated = append(r.onCreated, cb)
}

// Len returns the total number of tracked operations, terminal included.
func (r *Registry) Len() int { return len(r.ops) }
