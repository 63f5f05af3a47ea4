// Package protocol defines the JSON-RPC 2.0 wire types for the replbox
// server. The host process speaks this protocol over the server's
// stdin/stdout, one JSON object per line.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version announced in the ready notification.
const Version = "0.1.0"

// JSON-RPC standard error codes, plus the replbox range (-32000 to -32099).
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeExecutionError   = -32000
	CodeTimeoutError     = -32001
	CodeSandboxViolation = -32002
	CodeResourceLimit    = -32003
)

// Request is a JSON-RPC 2.0 request. Params is kept raw so handlers can
// decode into their own shapes; unknown fields are ignored.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must not be answered.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
	ID      any       `json:"id,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Success builds a result response for the given request id.
func Success(result any, id any) *Response {
	return &Response{JSONRPC: "2.0", Result: result, ID: id}
}

// Failure builds an error response for the given request id.
func Failure(err *RPCError, id any) *Response {
	return &Response{JSONRPC: "2.0", Error: err, ID: id}
}

// ParseError reports unparseable input (-32700).
func ParseError(message string) *RPCError {
	if message == "" {
		message = "Parse error"
	}
	return &RPCError{Code: CodeParseError, Message: message}
}

// InvalidRequest reports a malformed envelope (-32600).
func InvalidRequest(message string) *RPCError {
	if message == "" {
		message = "Invalid request"
	}
	return &RPCError{Code: CodeInvalidRequest, Message: message}
}

// MethodNotFound reports an unknown method (-32601).
func MethodNotFound(method string) *RPCError {
	return &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
}

// InvalidParams reports malformed or missing parameters (-32602).
func InvalidParams(message string) *RPCError {
	return &RPCError{Code: CodeInvalidParams, Message: message}
}

// InternalError reports an unexpected server fault (-32603).
func InternalError(message string, data any) *RPCError {
	return &RPCError{Code: CodeInternalError, Message: message, Data: data}
}

// ExecutionError reports a failed handler operation (-32000).
func ExecutionError(message string, data any) *RPCError {
	return &RPCError{Code: CodeExecutionError, Message: message, Data: data}
}

// TimeoutError reports an enforced execution timeout (-32001). Timeouts are
// advisory in-process; the code exists for a future enforcer.
func TimeoutError(timeoutMs int) *RPCError {
	return &RPCError{Code: CodeTimeoutError, Message: fmt.Sprintf("Execution timed out after %dms", timeoutMs)}
}

// SandboxViolation reports a sandbox policy breach (-32002).
func SandboxViolation(message string) *RPCError {
	return &RPCError{Code: CodeSandboxViolation, Message: message}
}

// ResourceLimit reports an exceeded resource limit (-32003).
func ResourceLimit(resource, limit string) *RPCError {
	return &RPCError{Code: CodeResourceLimit, Message: fmt.Sprintf("Resource limit exceeded: %s (limit: %s)", resource, limit)}
}

// ExecuteRequest asks the server to run code in the sandbox. TimeoutMs is
// advisory: enforcement is the host's responsibility.
type ExecuteRequest struct {
	Code          string `json:"code"`
	TimeoutMs     int    `json:"timeout_ms"`
	CaptureOutput *bool  `json:"capture_output"`
}

// DefaultTimeoutMs is applied when an execute request omits timeout_ms.
const DefaultTimeoutMs = 30000

// ExecuteResponse is the result payload of an execute call.
type ExecuteResponse struct {
	Success           bool           `json:"success"`
	Result            any            `json:"result"`
	Stdout            string         `json:"stdout"`
	Stderr            string         `json:"stderr"`
	Error             *string        `json:"error"`
	ErrorType         *string        `json:"error_type"`
	ExecutionTimeMs   float64        `json:"execution_time_ms"`
	PendingOperations []string       `json:"pending_operations"`
	SubmitResult      map[string]any `json:"submit_result"`
}

// GetVariableRequest fetches a variable from the session namespace.
type GetVariableRequest struct {
	Name string `json:"name"`
}

// SetVariableRequest stores a variable in the session namespace.
type SetVariableRequest struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ResolveOperationRequest supplies the result for a pending deferred
// operation.
type ResolveOperationRequest struct {
	OperationID string          `json:"operation_id"`
	Result      json.RawMessage `json:"result"`
}

// FailOperationRequest marks a pending deferred operation as failed.
type FailOperationRequest struct {
	OperationID string `json:"operation_id"`
	Error       string `json:"error"`
}

// PendingOperation describes one unresolved deferred operation.
type PendingOperation struct {
	ID            string         `json:"id"`
	OperationType string         `json:"operation_type"`
	Params        map[string]any `json:"params"`
}

// RegisterSignatureRequest installs the output signature used by SUBMIT
// validation.
type RegisterSignatureRequest struct {
	OutputFields  []OutputField `json:"output_fields"`
	SignatureName string        `json:"signature_name"`
}

// OutputField is one field specification of a registered signature.
type OutputField struct {
	Name        string     `json:"name"`
	Required    *bool      `json:"required"`
	FieldType   *FieldType `json:"field_type"`
	Description string     `json:"description,omitempty"`
	Prefix      string     `json:"prefix,omitempty"`
	Default     any        `json:"default,omitempty"`
}

// IsRequired resolves the required flag; fields default to required.
func (f *OutputField) IsRequired() bool {
	return f.Required == nil || *f.Required
}

// FieldType is the discriminated field-type union. The Value payload depends
// on Type: enum carries the member list, list carries the item FieldType,
// object carries nested OutputFields, custom carries a label.
type FieldType struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// EnumValues decodes the member list of an enum field type.
func (t *FieldType) EnumValues() ([]string, error) {
	var values []string
	if len(t.Value) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(t.Value, &values); err != nil {
		return nil, fmt.Errorf("enum values: %w", err)
	}
	return values, nil
}

// ItemType decodes the element type of a list field type.
func (t *FieldType) ItemType() (*FieldType, error) {
	if len(t.Value) == 0 {
		return &FieldType{Type: "custom"}, nil
	}
	var item FieldType
	if err := json.Unmarshal(t.Value, &item); err != nil {
		return nil, fmt.Errorf("list item type: %w", err)
	}
	return &item, nil
}

// ObjectFields decodes the nested fields of an object field type.
func (t *FieldType) ObjectFields() ([]OutputField, error) {
	var fields []OutputField
	if len(t.Value) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(t.Value, &fields); err != nil {
		return nil, fmt.Errorf("object fields: %w", err)
	}
	return fields, nil
}

// VariablesResponse maps variable names to their type labels.
type VariablesResponse struct {
	Variables map[string]string `json:"variables"`
}

// StatusResponse reports server/session health.
type StatusResponse struct {
	Ready               bool `json:"ready"`
	PendingOperations   int  `json:"pending_operations"`
	VariablesCount      int  `json:"variables_count"`
	SignatureRegistered bool `json:"signature_registered"`
}
