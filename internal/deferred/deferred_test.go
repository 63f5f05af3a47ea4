package deferred

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOperation(t *testing.T) {
	r := NewRegistry()
	op := r.Create(KindLLMCall, map[string]any{"prompt": "test"})

	assert.True(t, op.IsPending())
	assert.False(t, op.IsResolved())
	assert.Equal(t, KindLLMCall, op.Kind)
	assert.Equal(t, "test", op.Params["prompt"])
	assert.Len(t, op.ID, 36, "operation id should be a uuid")
}

func TestResolveOperation(t *testing.T) {
	r := NewRegistry()
	op := r.Create(KindLLMCall, nil)

	require.NoError(t, r.Resolve(op.ID, "result value"))

	assert.True(t, op.IsResolved())
	got, err := op.Get()
	require.NoError(t, err)
	assert.Equal(t, "result value", got)
}

func TestFailOperation(t *testing.T) {
	r := NewRegistry()
	op := r.Create(KindLLMCall, nil)

	require.NoError(t, r.Fail(op.ID, "test error"))

	assert.True(t, op.IsFailed())
	_, err := op.Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test error")

	var failed *FailedError
	assert.True(t, errors.As(err, &failed))
}

func TestPendingOperationGetRaises(t *testing.T) {
	op := NewOperation(KindLLMCall, nil)

	_, err := op.Get()
	require.Error(t, err)

	var pending *PendingError
	require.True(t, errors.As(err, &pending))
	assert.Equal(t, op.ID, pending.OperationID)
}

func TestTerminalTransitionsAreSingleWriter(t *testing.T) {
	r := NewRegistry()
	op := r.Create(KindSummarize, nil)

	require.NoError(t, r.Resolve(op.ID, "done"))

	var stateErr *StateError
	err := r.Resolve(op.ID, "again")
	require.Error(t, err)
	assert.True(t, errors.As(err, &stateErr))

	err = r.Fail(op.ID, "too late")
	require.Error(t, err)
	assert.True(t, errors.As(err, &stateErr))
}

func TestUnknownOperationNotFound(t *testing.T) {
	r := NewRegistry()

	var notFound *NotFoundError
	err := r.Resolve("nope", 1)
	require.Error(t, err)
	assert.True(t, errors.As(err, &notFound))

	err = r.Fail("nope", "boom")
	require.Error(t, err)
	assert.True(t, errors.As(err, &notFound))
}

func TestPendingIDsOrderAndFiltering(t *testing.T) {
	r := NewRegistry()
	op1 := r.Create(KindLLMCall, nil)
	op2 := r.Create(KindSummarize, nil)
	op3 := r.Create(KindEmbed, nil)

	assert.Equal(t, []string{op1.ID, op2.ID, op3.ID}, r.PendingIDs())

	require.NoError(t, r.Resolve(op1.ID, "done"))

	assert.Equal(t, []string{op2.ID, op3.ID}, r.PendingIDs())

	ops := r.PendingOperations()
	require.Len(t, ops, 2)
	assert.Equal(t, op2.ID, ops[0].ID)
	assert.Equal(t, op3.ID, ops[1].ID)
}

func TestClearResolved(t *testing.T) {
	r := NewRegistry()
	op1 := r.Create(KindLLMCall, nil)
	op2 := r.Create(KindLLMCall, nil)
	op3 := r.Create(KindLLMCall, nil)

	require.NoError(t, r.Resolve(op1.ID, "a"))
	require.NoError(t, r.Fail(op3.ID, "b"))

	assert.Equal(t, 2, r.ClearResolved())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{op2.ID}, r.PendingIDs())
	assert.Nil(t, r.Get(op1.ID))
	assert.NotNil(t, r.Get(op2.ID))
}

func TestOnCreatedCallbacks(t *testing.T) {
	r := NewRegistry()

	var seen []string
	r.OnCreated(func(op *Operation) { seen = append(seen, op.ID) })
	r.OnCreated(func(op *Operation) { seen = append(seen, "second:"+op.ID) })

	op := r.Create(KindMapReduce, nil)

	require.Len(t, seen, 2)
	assert.Equal(t, op.ID, seen[0])
	assert.Equal(t, "second:"+op.ID, seen[1])
}

func TestOperationString(t *testing.T) {
	op := NewOperation(KindLLMCall, nil)
	s := op.String()
	assert.Contains(t, s, "DeferredOperation(")
	assert.Contains(t, s, "llm_call")
	assert.Contains(t, s, "pending")
}
