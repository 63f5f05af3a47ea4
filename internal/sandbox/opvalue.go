package sandbox

import (
	"fmt"

	"github.com/ternarybob/replbox/internal/deferred"
	"github.com/ternarybob/replbox/internal/script"
)

// ClassDeferredOperation is the script-visible class of deferred handles,
// exposed so scripts can isinstance-check what the async helpers return.
var ClassDeferredOperation = &script.Class{Name: "DeferredOperation"}

// opValue wraps a deferred operation as a script object. Every probe of a
// pending handle raises the pending signal so conditional code cannot read a
// placeholder as a value.
type opValue struct {
	op *deferred.Operation
}

func (o *opValue) TypeName() string { return "DeferredOperation" }

func (o *opValue) ScriptClass() *script.Class { return ClassDeferredOperation }

func (o *opValue) Truth() (bool, error) {
	if !o.op.IsResolved() {
		return false, script.RaisePending(o.op.ID)
	}
	v, err := o.resolved()
	if err != nil {
		return false, err
	}
	return script.Truth(v)
}

func (o *opValue) Len() (int64, error) {
	if !o.op.IsResolved() {
		return 0, script.RaisePending(o.op.ID)
	}
	v, err := o.resolved()
	if err != nil {
		return 0, err
	}
	return script.Len(v)
}

func (o *opValue) Iter() ([]script.Value, error) {
	if !o.op.IsResolved() {
		return nil, script.RaisePending(o.op.ID)
	}
	v, err := o.resolved()
	if err != nil {
		return nil, err
	}
	return script.Iterate(v)
}

func (o *opValue) Str() string {
	if o.op.IsResolved() {
		if v, err := o.resolved(); err == nil {
			return script.Str(v)
		}
	}
	return fmt.Sprintf("<Deferred:%s>", shortID(o.op.ID))
}

// Dump snapshots the operation for serialization, mirroring its field set.
func (o *opValue) Dump() any {
	return map[string]any{
		"id":             o.op.ID,
		"operation_type": string(o.op.Kind),
		"params":         o.op.Params,
		"state":          string(o.op.State),
		"result":         o.op.Result,
		"error":          o.op.Err,
	}
}

func (o *opValue) resolved() (script.Value, error) {
	v, err := script.FromNative(o.op.Result)
	if err != nil {
		return nil, script.Raise(script.ClassRuntimeError, "unusable operation result: %s", err)
	}
	return v, nil
}

// Attr exposes the operation surface: accessor methods plus plain fields.
func (o *opValue) Attr(name string) (script.Value, error) {
	switch name {
	case "get":
		return boundMethod("get", func(args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
			result, err := o.op.Get()
			if err != nil {
				switch e := err.(type) {
				case *deferred.PendingError:
					return nil, script.RaisePending(e.OperationID)
				case *deferred.FailedError:
					return nil, script.Raise(script.ClassDeferredError, "%s", e.Message)
				default:
					return nil, script.Raise(script.ClassRuntimeError, "%s", err)
				}
			}
			v, err := script.FromNative(result)
			if err != nil {
				return nil, script.Raise(script.ClassRuntimeError, "unusable operation result: %s", err)
			}
			return v, nil
		}), nil
	case "is_pending":
		return boundMethod("is_pending", func(_ []script.Value, _ map[string]script.Value) (script.Value, error) {
			return o.op.IsPending(), nil
		}), nil
	case "is_resolved":
		return boundMethod("is_resolved", func(_ []script.Value, _ map[string]script.Value) (script.Value, error) {
			return o.op.IsResolved(), nil
		}), nil
	case "is_failed":
		return boundMethod("is_failed", func(_ []script.Value, _ map[string]script.Value) (script.Value, error) {
			return o.op.IsFailed(), nil
		}), nil
	case "id":
		return o.op.ID, nil
	case "operation_type":
		return string(o.op.Kind), nil
	case "state":
		return string(o.op.State), nil
	case "params":
		v, err := script.FromNative(o.op.Params)
		if err != nil {
			return nil, script.Raise(script.ClassRuntimeError, "unusable operation params: %s", err)
		}
		return v, nil
	case "error":
		if o.op.Err == "" {
			return nil, nil
		}
		return o.op.Err, nil
	}
	return nil, script.Raise(script.ClassAttributeError, "'DeferredOperation' object has no attribute '%s'", name)
}

func boundMethod(name string, fn func(args []script.Value, kwargs map[string]script.Value) (script.Value, error)) *script.Builtin {
	return &script.Builtin{Name: name, Fn: func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		return fn(args, kwargs)
	}}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
