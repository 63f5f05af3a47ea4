package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/replbox/internal/config"
)

// harness drives a server over in-process pipes, the way the host process
// drives it over stdin/stdout.
type harness struct {
	t    *testing.T
	in   *io.PipeWriter
	out  *bufio.Scanner
	outR *io.PipeReader
	done chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	cfg := config.DefaultConfig()
	srv := New(cfg, "0.1.0", inR, outW)

	done := make(chan error, 1)
	go func() {
		err := srv.Run()
		outW.Close()
		done <- err
		close(done)
	}()

	scanner := bufio.NewScanner(outR)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	h := &harness{t: t, in: inW, out: scanner, outR: outR, done: done}
	t.Cleanup(func() {
		inW.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		outR.Close()
	})

	// First line is the ready notification.
	ready := h.readLine()
	require.Equal(t, "ready", ready["method"])
	params := ready["params"].(map[string]any)
	require.Equal(t, "0.1.0", params["version"])
	return h
}

func (h *harness) writeLine(line string) {
	h.t.Helper()
	_, err := io.WriteString(h.in, line+"\n")
	require.NoError(h.t, err)
}

func (h *harness) readLine() map[string]any {
	h.t.Helper()
	require.True(h.t, h.out.Scan(), "expected a response line: %v", h.out.Err())
	var msg map[string]any
	require.NoError(h.t, json.Unmarshal(h.out.Bytes(), &msg))
	return msg
}

// call sends a request and reads its paired response.
func (h *harness) call(id any, method string, params any) map[string]any {
	h.t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": id}
	if params != nil {
		req["params"] = params
	}
	data, err := json.Marshal(req)
	require.NoError(h.t, err)
	h.writeLine(string(data))
	resp := h.readLine()
	assert.Equal(h.t, "2.0", resp["jsonrpc"])
	return resp
}

func result(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	require.Nil(t, resp["error"], "unexpected rpc error: %v", resp["error"])
	r, ok := resp["result"].(map[string]any)
	require.True(t, ok, "result is %T", resp["result"])
	return r
}

func rpcError(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected an rpc error, got %v", resp)
	return e
}

func TestScenarioSimpleExecution(t *testing.T) {
	h := newHarness(t)

	r := result(t, h.call(1, "execute", map[string]any{"code": "x = 1 + 1"}))
	assert.Equal(t, true, r["success"])
	assert.Equal(t, "", r["stdout"])
	assert.Equal(t, "", r["stderr"])
	assert.Nil(t, r["error"])

	resp := h.call(2, "get_variable", map[string]any{"name": "x"})
	require.Nil(t, resp["error"])
	assert.Equal(t, float64(2), resp["result"])

	vars := result(t, h.call(3, "list_variables"))["variables"].(map[string]any)
	assert.Equal(t, "int", vars["x"])
}

func TestScenarioBlockedImport(t *testing.T) {
	h := newHarness(t)

	r := result(t, h.call(1, "execute", map[string]any{"code": "import os"}))
	assert.Equal(t, false, r["success"])
	assert.Equal(t, "SandboxError", r["error_type"])
	assert.Contains(t, r["error"].(string), "not allowed")
}

func TestScenarioPendingOperation(t *testing.T) {
	h := newHarness(t)

	r := result(t, h.call(1, "execute", map[string]any{"code": "result = llm('test')"}))
	assert.Equal(t, true, r["success"])
	pending := r["pending_operations"].([]any)
	require.Len(t, pending, 1)
	opID := pending[0].(string)

	r = result(t, h.call(2, "execute", map[string]any{"code": "x = result.get()"}))
	assert.Equal(t, false, r["success"])
	assert.Equal(t, "PendingOperationError", r["error_type"])
	assert.Contains(t, r["error"].(string), opID)
	assert.NotEmpty(t, r["pending_operations"])

	// Resolve, then the same code succeeds.
	resolved := result(t, h.call(3, "resolve_operation", map[string]any{"operation_id": opID, "result": "resolved text"}))
	assert.Equal(t, true, resolved["success"])

	r = result(t, h.call(4, "execute", map[string]any{"code": "x = result.get()"}))
	assert.Equal(t, true, r["success"])

	resp := h.call(5, "get_variable", map[string]any{"name": "x"})
	assert.Equal(t, "resolved text", resp["result"])

	r = result(t, h.call(6, "execute", map[string]any{"code": "y = 1"}))
	assert.Empty(t, r["pending_operations"])
}

func registerAnswerSignature(t *testing.T, h *harness) {
	r := result(t, h.call("sig", "register_signature", map[string]any{
		"output_fields": []any{map[string]any{
			"name":       "answer",
			"required":   true,
			"field_type": map[string]any{"type": "string"},
		}},
		"signature_name": "qa",
	}))
	require.Equal(t, true, r["success"])
	require.Equal(t, true, r["signature_registered"])
}

func TestScenarioSubmitTypeMismatch(t *testing.T) {
	h := newHarness(t)
	registerAnswerSignature(t, h)

	r := result(t, h.call(1, "execute", map[string]any{"code": "SUBMIT({'answer': 42})"}))
	assert.Equal(t, false, r["success"])
	assert.Equal(t, "SubmitValidationError", r["error_type"])
	assert.Contains(t, r["error"].(string), "expected string, got integer")

	sub := r["submit_result"].(map[string]any)
	assert.Equal(t, "validation_error", sub["status"])
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "type_mismatch", first["error_type"])
	assert.Equal(t, "answer", first["field"])
	assert.Equal(t, "integer", first["got"])
}

func TestScenarioSubmitMissingField(t *testing.T) {
	h := newHarness(t)
	registerAnswerSignature(t, h)

	r := result(t, h.call(1, "execute", map[string]any{"code": "SUBMIT({})"}))
	assert.Equal(t, false, r["success"])
	sub := r["submit_result"].(map[string]any)
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "missing_field", first["error_type"])
	assert.Equal(t, "answer", first["field"])
	assert.Contains(t, r["error"].(string), "Missing required field 'answer'")
}

func TestScenarioSubmitTwice(t *testing.T) {
	h := newHarness(t)
	registerAnswerSignature(t, h)

	code := "try:\n    SUBMIT({'answer': 'a'})\nexcept:\n    pass\nSUBMIT({'answer': 'b'})"
	r := result(t, h.call(1, "execute", map[string]any{"code": code}))
	assert.Equal(t, false, r["success"])
	sub := r["submit_result"].(map[string]any)
	errs := sub["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "multiple_submits", first["error_type"])
	assert.Equal(t, float64(2), first["count"])
	assert.Contains(t, r["error"].(string), "2 times")
}

func TestScenarioSubmitSuccess(t *testing.T) {
	h := newHarness(t)
	registerAnswerSignature(t, h)

	r := result(t, h.call(1, "execute", map[string]any{"code": "SUBMIT({'answer': 'done'})"}))
	assert.Equal(t, true, r["success"])
	sub := r["submit_result"].(map[string]any)
	assert.Equal(t, "success", sub["status"])
	outputs := sub["outputs"].(map[string]any)
	assert.Equal(t, "done", outputs["answer"])
}

func TestSubmitResultAbsentWithoutSubmit(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "execute", map[string]any{"code": "x = 1"}))
	assert.Nil(t, r["submit_result"])
}

func TestStatusAndSignatureRoundTrip(t *testing.T) {
	h := newHarness(t)

	st := result(t, h.call(1, "status"))
	assert.Equal(t, true, st["ready"])
	assert.Equal(t, float64(0), st["pending_operations"])
	assert.Equal(t, false, st["signature_registered"])

	registerAnswerSignature(t, h)
	st = result(t, h.call(2, "status"))
	assert.Equal(t, true, st["signature_registered"])

	cl := result(t, h.call(3, "clear_signature"))
	assert.Equal(t, true, cl["success"])
	assert.Equal(t, true, cl["cleared"])

	st = result(t, h.call(4, "status"))
	assert.Equal(t, false, st["signature_registered"])
}

func TestRegisterSignatureReplaced(t *testing.T) {
	h := newHarness(t)
	registerAnswerSignature(t, h)
	r := result(t, h.call(2, "register_signature", map[string]any{
		"output_fields": []any{map[string]any{"name": "other", "field_type": map[string]any{"type": "string"}}},
	}))
	assert.Equal(t, true, r["replaced"])
}

func TestReset(t *testing.T) {
	h := newHarness(t)

	result(t, h.call(1, "execute", map[string]any{"code": "x = 1\nop = llm('p')"}))
	registerAnswerSignature(t, h)

	st := result(t, h.call(2, "status"))
	assert.Equal(t, float64(1), st["pending_operations"])
	assert.NotEqual(t, float64(0), st["variables_count"])

	r := result(t, h.call(3, "reset"))
	assert.Equal(t, true, r["success"])

	st = result(t, h.call(4, "status"))
	assert.Equal(t, float64(0), st["pending_operations"])
	assert.Equal(t, float64(0), st["variables_count"])
	assert.Equal(t, false, st["signature_registered"])
}

func TestPendingOperationsManifest(t *testing.T) {
	h := newHarness(t)

	result(t, h.call(1, "execute", map[string]any{"code": "a = llm('one')\nb = summarize('two')"}))

	resp := h.call(2, "pending_operations")
	require.Nil(t, resp["error"])
	ops := resp["result"].([]any)
	require.Len(t, ops, 2)
	first := ops[0].(map[string]any)
	assert.Equal(t, "llm_call", first["operation_type"])
	params := first["params"].(map[string]any)
	assert.Equal(t, "one", params["prompt"])
	second := ops[1].(map[string]any)
	assert.Equal(t, "summarize", second["operation_type"])
}

func TestFailOperation(t *testing.T) {
	h := newHarness(t)

	result(t, h.call(1, "execute", map[string]any{"code": "op = llm('p')"}))
	st := result(t, h.call(2, "status"))
	require.Equal(t, float64(1), st["pending_operations"])

	resp := h.call(3, "pending_operations")
	opID := resp["result"].([]any)[0].(map[string]any)["id"].(string)

	r := result(t, h.call(4, "fail_operation", map[string]any{"operation_id": opID, "error": "provider down"}))
	assert.Equal(t, true, r["success"])

	exec := result(t, h.call(5, "execute", map[string]any{"code": "x = op.get()"}))
	assert.Equal(t, false, exec["success"])
	assert.Equal(t, "DeferredOperationError", exec["error_type"])
	assert.Contains(t, exec["error"].(string), "provider down")
}

func TestResolveUnknownOperation(t *testing.T) {
	h := newHarness(t)
	resp := h.call(1, "resolve_operation", map[string]any{"operation_id": "missing", "result": 1})
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32000), e["code"])
	assert.Contains(t, e["message"].(string), "unknown operation")
}

func TestResolveTwiceFails(t *testing.T) {
	h := newHarness(t)
	result(t, h.call(1, "execute", map[string]any{"code": "op = llm('p')"}))
	opID := h.call(2, "pending_operations")["result"].([]any)[0].(map[string]any)["id"].(string)

	result(t, h.call(3, "resolve_operation", map[string]any{"operation_id": opID, "result": "a"}))
	resp := h.call(4, "resolve_operation", map[string]any{"operation_id": opID, "result": "b"})
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32000), e["code"])
}

func TestSetVariableUnderscoreViolation(t *testing.T) {
	h := newHarness(t)
	resp := h.call(1, "set_variable", map[string]any{"name": "_x", "value": 1})
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32002), e["code"])
}

func TestSetVariableRoundTrip(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "set_variable", map[string]any{"name": "doc", "value": map[string]any{"lines": []any{"a", "b"}, "n": 2}}))
	assert.Equal(t, true, r["success"])

	exec := result(t, h.call(2, "execute", map[string]any{"code": "x = doc['lines'][1] + str(doc['n'])"}))
	require.Equal(t, true, exec["success"])

	resp := h.call(3, "get_variable", map[string]any{"name": "x"})
	assert.Equal(t, "b2", resp["result"])
}

func TestGetVariableMissing(t *testing.T) {
	h := newHarness(t)
	resp := h.call(1, "get_variable", map[string]any{"name": "ghost"})
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32000), e["code"])
}

func TestParseError(t *testing.T) {
	h := newHarness(t)
	h.writeLine("{not json")
	resp := h.readLine()
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32700), e["code"])
}

func TestInvalidRequestMissingMethod(t *testing.T) {
	h := newHarness(t)
	h.writeLine(`{"jsonrpc":"2.0","id":1}`)
	resp := h.readLine()
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32600), e["code"])
}

func TestMethodNotFound(t *testing.T) {
	h := newHarness(t)
	resp := h.call(1, "no_such_method", nil)
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32601), e["code"])
}

func TestInvalidParamsMissingField(t *testing.T) {
	h := newHarness(t)
	resp := h.call(1, "execute", map[string]any{})
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32602), e["code"])
	assert.Contains(t, e["message"].(string), "code")
}

func TestListShapedParamsRejected(t *testing.T) {
	h := newHarness(t)
	h.writeLine(`{"jsonrpc":"2.0","method":"execute","params":["x = 1"],"id":9}`)
	resp := h.readLine()
	e := rpcError(t, resp)
	assert.Equal(t, float64(-32602), e["code"])
	assert.Equal(t, float64(9), resp["id"])
}

func TestNotificationGetsNoReply(t *testing.T) {
	h := newHarness(t)

	// A notification followed by a normal request: the next line written
	// must answer the request, not the notification.
	h.writeLine(`{"jsonrpc":"2.0","method":"execute","params":{"code":"x = 5"}}`)
	st := result(t, h.call(42, "status"))
	assert.Equal(t, true, st["ready"])

	// The notification still executed.
	resp := h.call(43, "get_variable", map[string]any{"name": "x"})
	assert.Equal(t, float64(5), resp["result"])
}

func TestResponseIDMatching(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		resp := h.call(fmt.Sprintf("req-%d", i), "status", nil)
		assert.Equal(t, fmt.Sprintf("req-%d", i), resp["id"])
	}
}

func TestExecutionErrorCarriesTypeAndTrace(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "execute", map[string]any{"code": "raise ValueError('kaput')"}))
	assert.Equal(t, false, r["success"])
	assert.Equal(t, "ValueError", r["error_type"])
	assert.Equal(t, "kaput", r["error"])
	assert.Contains(t, r["stderr"].(string), "ValueError")
}

func TestCompilationError(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "execute", map[string]any{"code": "class Foo:\n    pass"}))
	assert.Equal(t, false, r["success"])
	assert.Equal(t, "CompilationError", r["error_type"])
}

func TestExecuteCapturesOutput(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "execute", map[string]any{"code": "print('to host')"}))
	assert.Equal(t, "to host\n", r["stdout"])

	r = result(t, h.call(2, "execute", map[string]any{"code": "print('muted')", "capture_output": false}))
	assert.Equal(t, "", r["stdout"])
}

func TestExecuteReportsTiming(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "execute", map[string]any{"code": "x = sum([i for i in range(100)])"}))
	_, ok := r["execution_time_ms"].(float64)
	assert.True(t, ok)
}

func TestLastExpressionResult(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "execute", map[string]any{"code": "2 + 3"}))
	assert.Equal(t, float64(5), r["result"])

	r = result(t, h.call(2, "execute", map[string]any{"code": "x = 1"}))
	assert.Nil(t, r["result"])
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	r := result(t, h.call(1, "shutdown"))
	assert.Equal(t, true, r["shutdown"])

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
