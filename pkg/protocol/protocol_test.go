package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, -32700, ParseError("").Code)
	assert.Equal(t, -32600, InvalidRequest("").Code)
	assert.Equal(t, -32601, MethodNotFound("x").Code)
	assert.Equal(t, -32602, InvalidParams("bad").Code)
	assert.Equal(t, -32603, InternalError("boom", nil).Code)
	assert.Equal(t, -32000, ExecutionError("fail", nil).Code)
	assert.Equal(t, -32001, TimeoutError(500).Code)
	assert.Equal(t, -32002, SandboxViolation("no").Code)
	assert.Equal(t, -32003, ResourceLimit("memory", "1GB").Code)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Method not found: run", MethodNotFound("run").Message)
	assert.Contains(t, TimeoutError(500).Message, "500ms")
	assert.Equal(t, "test", ExecutionError("test", nil).Message)
}

func TestRequestNotification(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"execute","params":{"code":"x"},"id":1}`), &req))
	assert.False(t, req.IsNotification())
	assert.Equal(t, "execute", req.Method)

	var note Request
	require.NoError(t, json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notify","params":{}}`), &note))
	assert.True(t, note.IsNotification())
}

func TestRequestIgnoresUnknownFields(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"status","id":1,"extra":"ignored"}`), &req)
	require.NoError(t, err)
	assert.Equal(t, "status", req.Method)
}

func TestResponseShapes(t *testing.T) {
	ok := Success(map[string]any{"x": 1}, 7)
	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"jsonrpc":"2.0"`)
	assert.Contains(t, string(data), `"id":7`)
	assert.NotContains(t, string(data), `"error"`)

	fail := Failure(MethodNotFound("x"), "abc")
	data, err = json.Marshal(fail)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"code":-32601`)
	assert.Contains(t, string(data), `"id":"abc"`)
}

func TestOutputFieldRequiredDefault(t *testing.T) {
	var f OutputField
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","field_type":{"type":"string"}}`), &f))
	assert.True(t, f.IsRequired())

	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","required":false,"field_type":{"type":"string"}}`), &f))
	assert.False(t, f.IsRequired())
}

func TestFieldTypeDecoding(t *testing.T) {
	var enum FieldType
	require.NoError(t, json.Unmarshal([]byte(`{"type":"enum","value":["a","b"]}`), &enum))
	values, err := enum.EnumValues()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, values)

	var list FieldType
	require.NoError(t, json.Unmarshal([]byte(`{"type":"list","value":{"type":"integer"}}`), &list))
	item, err := list.ItemType()
	require.NoError(t, err)
	assert.Equal(t, "integer", item.Type)

	var obj FieldType
	require.NoError(t, json.Unmarshal([]byte(`{"type":"object","value":[{"name":"n","field_type":{"type":"float"}}]}`), &obj))
	fields, err := obj.ObjectFields()
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "n", fields[0].Name)
	assert.Equal(t, "float", fields[0].FieldType.Type)
}

func TestExecuteRequestDefaults(t *testing.T) {
	var er ExecuteRequest
	require.NoError(t, json.Unmarshal([]byte(`{"code":"1 + 1"}`), &er))
	assert.Equal(t, "1 + 1", er.Code)
	assert.Zero(t, er.TimeoutMs)
	assert.Nil(t, er.CaptureOutput)
	assert.Equal(t, 30000, DefaultTimeoutMs)
}
