package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/replbox/internal/deferred"
	"github.com/ternarybob/replbox/internal/script"
	"github.com/ternarybob/replbox/pkg/protocol"
)

func newSession() *Session {
	return NewSession(deferred.NewRegistry())
}

func raisedClass(t *testing.T, err error) *script.Class {
	t.Helper()
	r := script.AsRaised(err)
	require.NotNil(t, r, "expected a script-level raise, got %v", err)
	return r.Class
}

func TestSimpleExecution(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = 1 + 1", true)
	require.NoError(t, err)
	assert.Contains(t, s.ListVariables(), "x")
}

func TestStdoutCapture(t *testing.T) {
	s := newSession()
	out, err := s.Execute("print('hello')", true)
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "hello")
}

func TestCaptureDisabled(t *testing.T) {
	s := newSession()
	out, err := s.Execute("print('hidden')", false)
	require.NoError(t, err)
	assert.Empty(t, out.Stdout)
}

func TestLastExpressionValue(t *testing.T) {
	s := newSession()
	out, err := s.Execute("40 + 2", true)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.Value)

	out, err = s.Execute("x = 1", true)
	require.NoError(t, err)
	assert.Nil(t, out.Value)
}

func TestVariableAccess(t *testing.T) {
	s := newSession()
	require.NoError(t, s.SetVariable("test_var", int64(42)))
	v, err := s.GetVariable("test_var")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.True(t, s.HasVariable("test_var"))
	assert.False(t, s.HasVariable("missing"))
}

func TestSetVariableRejectsUnderscore(t *testing.T) {
	s := newSession()
	err := s.SetVariable("_hidden", int64(1))
	require.Error(t, err)
	assert.Equal(t, script.ClassSandboxError, raisedClass(t, err))

	assert.NoError(t, s.SetVariable("_", int64(1)))
}

func TestGetVariableMissing(t *testing.T) {
	s := newSession()
	_, err := s.GetVariable("nope")
	require.Error(t, err)
	assert.Equal(t, script.ClassKeyError, raisedClass(t, err))
}

func TestBlockedBuiltins(t *testing.T) {
	s := newSession()
	_, err := s.Execute("open('/etc/passwd')", true)
	require.Error(t, err)
	assert.Equal(t, script.ClassNameError, raisedClass(t, err))
}

func TestBlockedImport(t *testing.T) {
	s := newSession()
	_, err := s.Execute("import os", true)
	require.Error(t, err)
	assert.Equal(t, script.ClassSandboxError, raisedClass(t, err))
	assert.Contains(t, err.Error(), "not allowed")
}

func TestAllowedImport(t *testing.T) {
	s := newSession()
	_, err := s.Execute("import math; x = math.sqrt(4)", true)
	require.NoError(t, err)
	v, err := s.GetVariable("x")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
}

func TestHelperFunctionsAvailable(t *testing.T) {
	s := newSession()
	_, err := s.Execute("result = peek('line1\\nline2', 0, 1)", true)
	require.NoError(t, err)
	v, err := s.GetVariable("result")
	require.NoError(t, err)
	assert.Equal(t, "line1", v)
}

func TestSearchHelperInScript(t *testing.T) {
	s := newSession()
	_, err := s.Execute("hits = search('foo\\nbar foo', 'foo')\nn = len(hits)\nfirst = hits[0]['index']", true)
	require.NoError(t, err)
	n, err := s.GetVariable("n")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	first, err := s.GetVariable("first")
	require.NoError(t, err)
	assert.Equal(t, int64(0), first)
}

func TestDunderAccessBlocked(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = ().__class__.__bases__[0]", true)
	require.Error(t, err)
	assert.Equal(t, script.ClassSandboxError, raisedClass(t, err))
}

func TestListVariables(t *testing.T) {
	s := newSession()
	_, err := s.Execute("a = 1; b = 'hello'; c = [1, 2, 3]", true)
	require.NoError(t, err)
	variables := s.ListVariables()
	assert.Equal(t, "int", variables["a"])
	assert.Equal(t, "str", variables["b"])
	assert.Equal(t, "list", variables["c"])
}

func TestListVariablesHidesInfrastructure(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = 1", true)
	require.NoError(t, err)
	variables := s.ListVariables()
	for _, hidden := range []string{"peek", "llm", "SUBMIT", "DeferredOperation", "print_collector", "_"} {
		assert.NotContains(t, variables, hidden)
	}
}

func TestClear(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = 42", true)
	require.NoError(t, err)
	assert.Contains(t, s.ListVariables(), "x")
	s.Clear()
	assert.NotContains(t, s.ListVariables(), "x")

	// Helpers still work after clear.
	_, err = s.Execute("y = count_tokens('abcdefgh')", true)
	require.NoError(t, err)
	v, err := s.GetVariable("y")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestLLMReturnsDeferred(t *testing.T) {
	s := newSession()
	_, err := s.Execute("result = llm('test prompt')", true)
	require.NoError(t, err)
	v, err := s.GetVariable("result")
	require.NoError(t, err)
	op, ok := v.(*opValue)
	require.True(t, ok)
	assert.True(t, op.op.IsPending())
	assert.Equal(t, deferred.KindLLMCall, op.op.Kind)
	assert.Equal(t, "test prompt", op.op.Params["prompt"])
	assert.Equal(t, int64(1024), op.op.Params["max_tokens"])
}

func TestSummarizeReturnsDeferred(t *testing.T) {
	s := newSession()
	_, err := s.Execute("result = summarize('some text to summarize')", true)
	require.NoError(t, err)
	v, err := s.GetVariable("result")
	require.NoError(t, err)
	op := v.(*opValue)
	assert.Equal(t, deferred.KindSummarize, op.op.Kind)
	prompt := op.op.Params["prompt"].(string)
	assert.Contains(t, prompt, "Summarize the following in at most 500 tokens")
	assert.Contains(t, prompt, "some text to summarize")
}

func TestSummarizeFocus(t *testing.T) {
	s := newSession()
	_, err := s.Execute("result = summarize('text', max_tokens=100, focus='errors')", true)
	require.NoError(t, err)
	v, _ := s.GetVariable("result")
	prompt := v.(*opValue).op.Params["prompt"].(string)
	assert.Contains(t, prompt, "at most 100 tokens, focusing on errors")
}

func TestAccessingPendingRaises(t *testing.T) {
	s := newSession()
	_, err := s.Execute("result = llm('test')", true)
	require.NoError(t, err)

	_, err = s.Execute("x = result.get()", true)
	require.Error(t, err)
	r := script.AsRaised(err)
	require.NotNil(t, r)
	assert.Equal(t, script.ClassPendingOperation, r.Class)
	assert.Equal(t, s.registry.PendingIDs()[0], r.Payload)
}

func TestPendingProbesRaise(t *testing.T) {
	probes := []string{
		"if op:\n    x = 1",
		"n = len(op)",
		"items = [v for v in op]",
		"b = bool(op)",
	}
	for _, code := range probes {
		t.Run(code, func(t *testing.T) {
			s := newSession()
			_, err := s.Execute("op = llm('p')", true)
			require.NoError(t, err)
			_, err = s.Execute(code, true)
			require.Error(t, err)
			assert.Equal(t, script.ClassPendingOperation, raisedClass(t, err))
		})
	}
}

func TestResolvedOperationBehaves(t *testing.T) {
	s := newSession()
	_, err := s.Execute("op = llm('p')", true)
	require.NoError(t, err)
	id := s.registry.PendingIDs()[0]
	require.NoError(t, s.registry.Resolve(id, "the answer"))

	_, err = s.Execute("value = op.get()\nok = op.is_resolved()\nn = len(op)\ntext = str(op)", true)
	require.NoError(t, err)
	v, _ := s.GetVariable("value")
	assert.Equal(t, "the answer", v)
	ok, _ := s.GetVariable("ok")
	assert.Equal(t, true, ok)
	n, _ := s.GetVariable("n")
	assert.Equal(t, int64(len("the answer")), n)
	text, _ := s.GetVariable("text")
	assert.Equal(t, "the answer", text)
}

func TestFailedOperationRaisesOnGet(t *testing.T) {
	s := newSession()
	_, err := s.Execute("op = llm('p')", true)
	require.NoError(t, err)
	id := s.registry.PendingIDs()[0]
	require.NoError(t, s.registry.Fail(id, "model unavailable"))

	_, err = s.Execute("x = op.get()", true)
	require.Error(t, err)
	assert.Equal(t, script.ClassDeferredError, raisedClass(t, err))
	assert.Contains(t, err.Error(), "model unavailable")

	// The failure is catchable inside the script.
	_, err = s.Execute("try:\n    x = op.get()\nexcept Exception as e:\n    handled = str(e)", true)
	require.NoError(t, err)
	handled, _ := s.GetVariable("handled")
	assert.Equal(t, "model unavailable", handled)
}

func TestScriptCanCatchPendingError(t *testing.T) {
	s := newSession()
	_, err := s.Execute("op = llm('p')", true)
	require.NoError(t, err)
	_, err = s.Execute("try:\n    x = op.get()\nexcept Exception:\n    waited = True", true)
	require.NoError(t, err)
	waited, _ := s.GetVariable("waited")
	assert.Equal(t, true, waited)
}

func TestLLMBatchLengthCheck(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = llm_batch(['a', 'b'], contexts=['only one'])", true)
	require.Error(t, err)
	assert.Equal(t, script.ClassValueError, raisedClass(t, err))
	assert.Contains(t, err.Error(), "same length as prompts")
}

func TestLLMBatchParams(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = llm_batch(['a', 'b'], max_parallel=3)", true)
	require.NoError(t, err)
	v, _ := s.GetVariable("x")
	op := v.(*opValue)
	assert.Equal(t, deferred.KindLLMBatch, op.op.Kind)
	assert.Equal(t, []any{"a", "b"}, op.op.Params["prompts"])
	assert.Equal(t, int64(3), op.op.Params["max_parallel"])
	assert.Nil(t, op.op.Params["contexts"])
}

func TestDeprecatedAliasWarnsOnce(t *testing.T) {
	s := newSession()
	out, err := s.Execute("x = llm_query_batched(['p'])", true)
	require.NoError(t, err)
	assert.Contains(t, out.Stderr, "DeprecationWarning")
	assert.Contains(t, out.Stderr, "llm_batch")

	v, _ := s.GetVariable("x")
	assert.Equal(t, deferred.KindLLMBatch, v.(*opValue).op.Kind)

	out, err = s.Execute("y = llm_query_batched(['q'])", true)
	require.NoError(t, err)
	assert.Empty(t, out.Stderr)
}

func TestMapReduceChunks(t *testing.T) {
	s := newSession()
	_, err := s.Execute("x = map_reduce([1, 2, 3, 4, 5], 'map {item}', 'reduce {results}', chunk_size=2)", true)
	require.NoError(t, err)
	op := mustGetOp(t, s, "x")
	assert.Equal(t, deferred.KindMapReduce, op.op.Kind)
	chunks := op.op.Params["chunks"].([]any)
	require.Len(t, chunks, 3)
	assert.Equal(t, []any{int64(1), int64(2)}, chunks[0])
	assert.Equal(t, []any{int64(5)}, chunks[2])
}

func TestFindRelevantChunksString(t *testing.T) {
	s := newSession()
	require.NoError(t, s.SetVariable("doc", "alpha\nbeta"))
	_, err := s.Execute("x = find_relevant(doc, 'query', top_k=2)", true)
	require.NoError(t, err)
	op := mustGetOp(t, s, "x")
	assert.Equal(t, deferred.KindEmbed, op.op.Kind)
	assert.Equal(t, "query", op.op.Params["query"])
	assert.Equal(t, int64(2), op.op.Params["top_k"])
	assert.Equal(t, []any{"alpha\nbeta"}, op.op.Params["chunks"])
}

func TestVerifyClaimAndAuditReasoning(t *testing.T) {
	s := newSession()
	_, err := s.Execute("a = verify_claim('claim', 'evidence')\nb = audit_reasoning(['s1', 's2'])", true)
	require.NoError(t, err)

	a := mustGetOp(t, s, "a")
	assert.Equal(t, deferred.KindLLMCall, a.op.Kind)
	assert.Equal(t, "verify_claim", a.op.Params["type"])
	assert.Equal(t, 0.95, a.op.Params["target_confidence"])

	b := mustGetOp(t, s, "b")
	assert.Equal(t, deferred.KindLLMCall, b.op.Kind)
	assert.Equal(t, "audit_reasoning", b.op.Params["type"])
	assert.Equal(t, []any{"s1", "s2"}, b.op.Params["steps"])
}

func mustGetOp(t *testing.T, s *Session, name string) *opValue {
	t.Helper()
	v, err := s.GetVariable(name)
	require.NoError(t, err)
	op, ok := v.(*opValue)
	require.True(t, ok, "expected a deferred operation, got %T", v)
	return op
}

// SUBMIT behavior.

func stringField(name string) protocol.OutputField {
	return protocol.OutputField{Name: name, FieldType: &protocol.FieldType{Type: "string"}}
}

func TestSubmitSuccess(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "qa")

	_, err := s.Execute("SUBMIT({'answer': 'forty-two'})", true)
	require.NoError(t, err)

	sub := s.ConsumeSubmitResult()
	require.NotNil(t, sub)
	assert.Equal(t, "success", sub["status"])
	outputs := sub["outputs"].(map[string]any)
	assert.Equal(t, "forty-two", outputs["answer"])

	// Consuming clears the bundle.
	assert.Nil(t, s.ConsumeSubmitResult())
}

func TestSubmitHaltsEvaluation(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	_, err := s.Execute("SUBMIT({'answer': 'a'})\nafter = True", true)
	require.NoError(t, err)
	assert.False(t, s.HasVariable("after"))
}

func TestSubmitTypeMismatch(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	_, err := s.Execute("SUBMIT({'answer': 42})", true)
	require.NoError(t, err)

	sub := s.ConsumeSubmitResult()
	require.NotNil(t, sub)
	assert.Equal(t, "validation_error", sub["status"])
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "type_mismatch", first["error_type"])
	assert.Equal(t, "answer", first["field"])
	assert.Equal(t, "integer", first["got"])
	assert.Equal(t, "42", first["value_preview"])
}

func TestSubmitMissingField(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	_, err := s.Execute("SUBMIT({})", true)
	require.NoError(t, err)

	sub := s.ConsumeSubmitResult()
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "missing_field", first["error_type"])
	assert.Equal(t, "answer", first["field"])
}

func TestSubmitOptionalFieldMayBeAbsent(t *testing.T) {
	s := newSession()
	notRequired := false
	s.RegisterSignature([]protocol.OutputField{
		stringField("answer"),
		{Name: "notes", Required: &notRequired, FieldType: &protocol.FieldType{Type: "string"}},
	}, "")

	_, err := s.Execute("SUBMIT({'answer': 'ok'})", true)
	require.NoError(t, err)
	assert.Equal(t, "success", s.ConsumeSubmitResult()["status"])
}

func TestSubmitNoSignature(t *testing.T) {
	s := newSession()
	_, err := s.Execute("SUBMIT({'answer': 'x'})", true)
	require.NoError(t, err)

	sub := s.ConsumeSubmitResult()
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "no_signature_registered", errs[0].(map[string]any)["error_type"])
}

func TestSubmitMultiple(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	code := "try:\n    SUBMIT({'answer': 'a'})\nexcept:\n    pass\nSUBMIT({'answer': 'b'})"
	_, err := s.Execute(code, true)
	require.NoError(t, err)

	sub := s.ConsumeSubmitResult()
	require.NotNil(t, sub)
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "multiple_submits", first["error_type"])
	assert.Equal(t, 2, first["count"])
}

func TestSubmitSignalNotCaughtByExcept(t *testing.T) {
	// `except Exception` must not swallow the submit signal.
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	_, err := s.Execute("try:\n    SUBMIT({'answer': 'a'})\nexcept Exception:\n    pass\nafter = True", true)
	require.NoError(t, err)
	assert.False(t, s.HasVariable("after"))
	assert.Equal(t, "success", s.ConsumeSubmitResult()["status"])
}

func TestSubmitBundleResetPerExecute(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	_, err := s.Execute("SUBMIT({'answer': 'a'})", true)
	require.NoError(t, err)
	require.NotNil(t, s.ConsumeSubmitResult())

	_, err = s.Execute("x = 1", true)
	require.NoError(t, err)
	assert.Nil(t, s.ConsumeSubmitResult())
}

func TestSubmitEnumValidation(t *testing.T) {
	enumType := &protocol.FieldType{Type: "enum", Value: []byte(`["yes", "no"]`)}
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{{Name: "verdict", FieldType: enumType}}, "")

	_, err := s.Execute("SUBMIT({'verdict': 'maybe'})", true)
	require.NoError(t, err)
	errs := s.ConsumeSubmitResult()["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "enum_invalid", first["error_type"])
	assert.Equal(t, "maybe", first["value"])

	_, err = s.Execute("SUBMIT({'verdict': 'yes'})", true)
	require.NoError(t, err)
	assert.Equal(t, "success", s.ConsumeSubmitResult()["status"])
}

func TestSubmitListValidation(t *testing.T) {
	listType := &protocol.FieldType{Type: "list", Value: []byte(`{"type": "integer"}`)}
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{{Name: "nums", FieldType: listType}}, "")

	_, err := s.Execute("SUBMIT({'nums': [1, 'two', 3]})", true)
	require.NoError(t, err)
	errs := s.ConsumeSubmitResult()["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "type_mismatch", first["error_type"])
	assert.Equal(t, "nums[1]", first["field"])
}

func TestSubmitObjectValidation(t *testing.T) {
	objType := &protocol.FieldType{
		Type:  "object",
		Value: []byte(`[{"name": "inner", "field_type": {"type": "boolean"}}]`),
	}
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{{Name: "wrap", FieldType: objType}}, "")

	_, err := s.Execute("SUBMIT({'wrap': {}})", true)
	require.NoError(t, err)
	errs := s.ConsumeSubmitResult()["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "missing_field", first["error_type"])
	assert.Equal(t, "wrap.inner", first["field"])

	_, err = s.Execute("SUBMIT({'wrap': {'inner': True}})", true)
	require.NoError(t, err)
	assert.Equal(t, "success", s.ConsumeSubmitResult()["status"])
}

func TestSubmitNonObjectOutputs(t *testing.T) {
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{stringField("answer")}, "")

	_, err := s.Execute("SUBMIT('just a string')", true)
	require.NoError(t, err)
	errs := s.ConsumeSubmitResult()["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "validation_failed", errs[0].(map[string]any)["error_type"])
}

func TestSubmitBooleanNotInteger(t *testing.T) {
	intType := &protocol.FieldType{Type: "integer"}
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{{Name: "n", FieldType: intType}}, "")

	_, err := s.Execute("SUBMIT({'n': True})", true)
	require.NoError(t, err)
	errs := s.ConsumeSubmitResult()["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "type_mismatch", errs[0].(map[string]any)["error_type"])
}

func TestSubmitFloatAcceptsInteger(t *testing.T) {
	floatType := &protocol.FieldType{Type: "float"}
	s := newSession()
	s.RegisterSignature([]protocol.OutputField{{Name: "score", FieldType: floatType}}, "")

	_, err := s.Execute("SUBMIT({'score': 3})", true)
	require.NoError(t, err)
	assert.Equal(t, "success", s.ConsumeSubmitResult()["status"])
}

func TestSignatureRoundTrip(t *testing.T) {
	s := newSession()
	assert.False(t, s.SignatureRegistered())

	replaced := s.RegisterSignature([]protocol.OutputField{stringField("a")}, "first")
	assert.False(t, replaced)
	assert.True(t, s.SignatureRegistered())

	replaced = s.RegisterSignature([]protocol.OutputField{stringField("b")}, "second")
	assert.True(t, replaced)

	assert.True(t, s.ClearSignature())
	assert.False(t, s.SignatureRegistered())
	assert.False(t, s.ClearSignature())
}
