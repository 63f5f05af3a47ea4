// Package server implements the line-delimited JSON-RPC loop that exposes
// the sandbox to a host process over stdin/stdout.
package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/replbox/internal/config"
	"github.com/ternarybob/replbox/internal/deferred"
	"github.com/ternarybob/replbox/internal/logger"
	"github.com/ternarybob/replbox/internal/sandbox"
	"github.com/ternarybob/replbox/internal/script"
	"github.com/ternarybob/replbox/pkg/protocol"
)

// Server reads one JSON object per line, dispatches it, and writes one
// response line for every non-notification request. It is single-threaded
// by design: exactly one request is in flight at a time.
type Server struct {
	cfg      *config.Config
	version  string
	in       io.Reader
	out      io.Writer
	registry *deferred.Registry
	session  *sandbox.Session
	running  bool
}

// New creates a server with a fresh registry and session.
func New(cfg *config.Config, version string, in io.Reader, out io.Writer) *Server {
	registry := deferred.NewRegistry()
	return &Server{
		cfg:      cfg,
		version:  version,
		in:       in,
		out:      out,
		registry: registry,
		session:  sandbox.NewSession(registry),
	}
}

// Stop makes the loop exit after the in-flight request completes.
func (s *Server) Stop() {
	s.running = false
}

// Run emits the ready notification, then serves until shutdown or EOF.
func (s *Server) Run() error {
	log := logger.GetLogger()
	s.running = true

	ready := map[string]any{
		"jsonrpc": "2.0",
		"method":  "ready",
		"params":  map[string]any{"version": s.version},
	}
	if err := s.writeLine(ready); err != nil {
		return fmt.Errorf("write ready: %w", err)
	}
	log.Info().Str("version", s.version).Msg("server ready")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), int(s.cfg.Service.MaxRequestSize))

	for s.running && scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(protocol.Failure(protocol.ParseError(err.Error()), nil))
			continue
		}
		if req.Method == "" {
			s.reply(protocol.Failure(protocol.InvalidRequest("missing method"), req.ID))
			continue
		}

		resp := s.dispatch(&req)
		if resp != nil && !req.IsNotification() {
			s.reply(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("stdin read failed")
		return fmt.Errorf("read: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func (s *Server) reply(resp *protocol.Response) {
	if err := s.writeLine(resp); err != nil {
		logger.GetLogger().Warn().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// dispatch routes one request. Handler panics become internal errors so a
// misbehaving evaluation cannot kill the loop.
func (s *Server) dispatch(req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Error().Str("method", req.Method).Str("panic", fmt.Sprintf("%v", r)).Msg("handler panic")
			resp = protocol.Failure(protocol.InternalError(fmt.Sprintf("Internal error: %v", r), nil), req.ID)
		}
	}()

	logger.GetLogger().Debug().Str("method", req.Method).Msg("request")

	// Every handler takes object-shaped params; list-shaped params are a
	// client error, not something to silently coerce.
	if isListParams(req.Params) {
		return protocol.Failure(protocol.InvalidParams("params must be an object"), req.ID)
	}

	switch req.Method {
	case "execute":
		return s.handleExecute(req)
	case "get_variable":
		return s.handleGetVariable(req)
	case "set_variable":
		return s.handleSetVariable(req)
	case "resolve_operation":
		return s.handleResolveOperation(req)
	case "fail_operation":
		return s.handleFailOperation(req)
	case "pending_operations":
		return s.handlePendingOperations(req)
	case "list_variables":
		return protocol.Success(protocol.VariablesResponse{Variables: s.session.ListVariables()}, req.ID)
	case "status":
		return protocol.Success(protocol.StatusResponse{
			Ready:               true,
			PendingOperations:   len(s.registry.PendingIDs()),
			VariablesCount:      len(s.session.ListVariables()),
			SignatureRegistered: s.session.SignatureRegistered(),
		}, req.ID)
	case "reset":
		s.registry = deferred.NewRegistry()
		s.session = sandbox.NewSession(s.registry)
		return protocol.Success(map[string]any{"success": true}, req.ID)
	case "register_signature":
		return s.handleRegisterSignature(req)
	case "clear_signature":
		cleared := s.session.ClearSignature()
		return protocol.Success(map[string]any{"success": true, "cleared": cleared}, req.ID)
	case "shutdown":
		s.running = false
		return protocol.Success(map[string]any{"shutdown": true}, req.ID)
	default:
		return protocol.Failure(protocol.MethodNotFound(req.Method), req.ID)
	}
}

func isListParams(params json.RawMessage) bool {
	for _, c := range params {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

// decodeParams unmarshals params into dst and reports which of the required
// top-level fields are present.
func decodeParams(params json.RawMessage, dst any, required ...string) *protocol.RPCError {
	raw := map[string]json.RawMessage{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return protocol.InvalidParams(err.Error())
		}
	}
	for _, field := range required {
		if _, ok := raw[field]; !ok {
			return protocol.InvalidParams(fmt.Sprintf("missing required parameter: %s", field))
		}
	}
	if dst != nil && len(params) > 0 {
		if err := json.Unmarshal(params, dst); err != nil {
			return protocol.InvalidParams(err.Error())
		}
	}
	return nil
}

func (s *Server) handleExecute(req *protocol.Request) *protocol.Response {
	var er protocol.ExecuteRequest
	if perr := decodeParams(req.Params, &er, "code"); perr != nil {
		return protocol.Failure(perr, req.ID)
	}
	if er.TimeoutMs == 0 {
		er.TimeoutMs = protocol.DefaultTimeoutMs
	}
	capture := s.cfg.Execute.CaptureOutput
	if er.CaptureOutput != nil {
		capture = *er.CaptureOutput
	}

	log := logger.GetLogger()
	log.Debug().Str("code_len", strconv.Itoa(len(er.Code))).Str("timeout_ms", strconv.Itoa(er.TimeoutMs)).Msg("execute")

	start := time.Now()
	outcome, err := s.session.Execute(er.Code, capture)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	resp := protocol.ExecuteResponse{
		Success:           true,
		Stdout:            outcome.Stdout,
		Stderr:            outcome.Stderr,
		ExecutionTimeMs:   elapsed,
		PendingOperations: s.registry.PendingIDs(),
	}

	if err != nil {
		resp.Success = false
		resp.Stdout = ""
		msg, errType, stderr := classifyExecError(err)
		resp.Error = &msg
		resp.ErrorType = &errType
		resp.Stderr = stderr
	} else {
		native, serr := script.ToNative(outcome.Value)
		if serr != nil {
			native = script.Str(outcome.Value)
		}
		resp.Result = native

		if sub := s.session.ConsumeSubmitResult(); sub != nil {
			resp.SubmitResult = sub
			if status, _ := sub["status"].(string); status == "validation_error" {
				resp.Success = false
				msg := summarizeSubmitErrors(sub["errors"])
				errType := "SubmitValidationError"
				resp.Error = &msg
				resp.ErrorType = &errType
			}
		}
	}

	return protocol.Success(&resp, req.ID)
}

// classifyExecError maps an execution failure onto the response error
// taxonomy. The returned stderr is non-empty only for plain script errors,
// where it carries the trace text.
func classifyExecError(err error) (msg, errType, stderr string) {
	if ce, ok := err.(*script.CompileError); ok {
		return ce.Error(), "CompilationError", ""
	}
	if r := script.AsRaised(err); r != nil {
		switch {
		case r.Class == script.ClassPendingOperation:
			opID, _ := r.Payload.(string)
			return fmt.Sprintf("Pending operation: %s", opID), "PendingOperationError", ""
		case r.Class.Isa(script.ClassSandboxError):
			return r.Message, "SandboxError", ""
		default:
			trace := fmt.Sprintf("Traceback (most recent call last):\n  File \"<repl>\"\n%s: %s\n", r.Class.Name, r.Message)
			return r.Message, r.Class.Name, trace
		}
	}
	return err.Error(), "ExecutionError", ""
}

// summarizeSubmitErrors synthesizes the human-readable error string from
// structured SUBMIT validation errors.
func summarizeSubmitErrors(errsAny any) string {
	errs, ok := errsAny.([]any)
	if !ok || len(errs) == 0 {
		return "SUBMIT validation failed"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		switch m["error_type"] {
		case "missing_field":
			parts = append(parts, fmt.Sprintf("Missing required field '%v'", m["field"]))
		case "type_mismatch":
			parts = append(parts, fmt.Sprintf("Field '%v' expected %s, got %v", m["field"], fieldTypeLabel(m["expected"]), m["got"]))
		case "enum_invalid":
			parts = append(parts, fmt.Sprintf("Field '%v' has invalid enum value '%v'", m["field"], m["value"]))
		case "multiple_submits":
			parts = append(parts, fmt.Sprintf("SUBMIT called %v times; expected exactly one", m["count"]))
		case "no_signature_registered":
			parts = append(parts, "No output signature registered")
		default:
			if reason, ok := m["reason"].(string); ok {
				parts = append(parts, fmt.Sprintf("Validation failed for field '%v': %s", m["field"], reason))
			} else {
				parts = append(parts, "SUBMIT validation failed")
			}
		}
	}
	return strings.Join(parts, "; ")
}

func fieldTypeLabel(expected any) string {
	if ft, ok := expected.(*protocol.FieldType); ok && ft != nil {
		return ft.Type
	}
	return fmt.Sprintf("%v", expected)
}

func (s *Server) handleGetVariable(req *protocol.Request) *protocol.Response {
	var gv protocol.GetVariableRequest
	if perr := decodeParams(req.Params, &gv, "name"); perr != nil {
		return protocol.Failure(perr, req.ID)
	}
	value, err := s.session.GetVariable(gv.Name)
	if err != nil {
		return protocol.Failure(handlerError(err), req.ID)
	}
	native, err := script.ToNative(value)
	if err != nil {
		native = script.Str(value)
	}
	return protocol.Success(native, req.ID)
}

func (s *Server) handleSetVariable(req *protocol.Request) *protocol.Response {
	var sv protocol.SetVariableRequest
	if perr := decodeParams(req.Params, &sv, "name", "value"); perr != nil {
		return protocol.Failure(perr, req.ID)
	}
	native, err := decodeAny(sv.Value)
	if err != nil {
		return protocol.Failure(protocol.InvalidParams(err.Error()), req.ID)
	}
	value, err := script.FromNative(native)
	if err != nil {
		return protocol.Failure(protocol.InvalidParams(err.Error()), req.ID)
	}
	if err := s.session.SetVariable(sv.Name, value); err != nil {
		return protocol.Failure(handlerError(err), req.ID)
	}
	return protocol.Success(map[string]any{"success": true}, req.ID)
}

func (s *Server) handleResolveOperation(req *protocol.Request) *protocol.Response {
	var ro protocol.ResolveOperationRequest
	if perr := decodeParams(req.Params, &ro, "operation_id", "result"); perr != nil {
		return protocol.Failure(perr, req.ID)
	}
	result, err := decodeAny(ro.Result)
	if err != nil {
		return protocol.Failure(protocol.InvalidParams(err.Error()), req.ID)
	}
	if err := s.registry.Resolve(ro.OperationID, result); err != nil {
		return protocol.Failure(handlerError(err), req.ID)
	}
	logger.GetLogger().Debug().Str("operation_id", ro.OperationID).Msg("operation resolved")
	return protocol.Success(map[string]any{"success": true}, req.ID)
}

func (s *Server) handleFailOperation(req *protocol.Request) *protocol.Response {
	var fo protocol.FailOperationRequest
	if perr := decodeParams(req.Params, &fo, "operation_id", "error"); perr != nil {
		return protocol.Failure(perr, req.ID)
	}
	if err := s.registry.Fail(fo.OperationID, fo.Error); err != nil {
		return protocol.Failure(handlerError(err), req.ID)
	}
	logger.GetLogger().Debug().Str("operation_id", fo.OperationID).Msg("operation failed by host")
	return protocol.Success(map[string]any{"success": true}, req.ID)
}

func (s *Server) handlePendingOperations(req *protocol.Request) *protocol.Response {
	ops := s.registry.PendingOperations()
	out := make([]protocol.PendingOperation, len(ops))
	for i, op := range ops {
		out[i] = protocol.PendingOperation{
			ID:            op.ID,
			OperationType: string(op.Kind),
			Params:        op.Params,
		}
	}
	return protocol.Success(out, req.ID)
}

func (s *Server) handleRegisterSignature(req *protocol.Request) *protocol.Response {
	var rs protocol.RegisterSignatureRequest
	if perr := decodeParams(req.Params, &rs, "output_fields"); perr != nil {
		return protocol.Failure(perr, req.ID)
	}
	replaced := s.session.RegisterSignature(rs.OutputFields, rs.SignatureName)
	logger.GetLogger().Debug().Str("signature", rs.SignatureName).Str("fields", strconv.Itoa(len(rs.OutputFields))).Msg("signature registered")
	return protocol.Success(map[string]any{
		"success":              true,
		"signature_registered": true,
		"replaced":             replaced,
	}, req.ID)
}

// handlerError maps non-execute handler failures onto the wire taxonomy.
func handlerError(err error) *protocol.RPCError {
	if r := script.AsRaised(err); r != nil {
		if r.Class.Isa(script.ClassSandboxError) {
			return protocol.SandboxViolation(r.Message)
		}
		return protocol.ExecutionError(r.Message, map[string]any{"type": r.Class.Name})
	}
	switch err.(type) {
	case *deferred.NotFoundError, *deferred.StateError:
		return protocol.ExecutionError(err.Error(), map[string]any{"type": fmt.Sprintf("%T", err)})
	default:
		return protocol.ExecutionError(err.Error(), nil)
	}
}

// decodeAny unmarshals raw JSON keeping integers integral.
func decodeAny(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

// normalizeNumbers converts json.Number into int64 or float64 so registry
// payloads round-trip cleanly.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	default:
		return v
	}
}
