package sandbox

import (
	"bytes"

	"github.com/ternarybob/replbox/internal/deferred"
	"github.com/ternarybob/replbox/internal/logger"
	"github.com/ternarybob/replbox/internal/script"
	"github.com/ternarybob/replbox/pkg/protocol"
)

// Session is one sandboxed execution environment: a persistent namespace, a
// deferred-operation registry binding, an optional output signature and the
// per-execute submit bundle.
type Session struct {
	interp   *script.Interp
	registry *deferred.Registry

	signature    *Signature
	submitCount  int
	submitResult map[string]any

	warned map[string]bool
	stderr *bytes.Buffer
}

// Signature is a registered output-shape description used by SUBMIT.
type Signature struct {
	Name   string
	Fields []protocol.OutputField
}

// NewSession creates a session bound to the given registry.
func NewSession(registry *deferred.Registry) *Session {
	s := &Session{
		registry: registry,
		warned:   make(map[string]bool),
	}
	s.setup()
	return s
}

// setup installs the guard environment, helper bindings and collector into a
// fresh interpreter.
func (s *Session) setup() {
	s.interp = script.New()
	s.stderr = &bytes.Buffer{}
	s.installHelpers()
	s.interp.Globals["print_collector"] = &collectorValue{session: s}
}

// Registry returns the deferred-operation registry this session mints into.
func (s *Session) Registry() *deferred.Registry {
	return s.registry
}

// Outcome carries what an execute call produced.
type Outcome struct {
	Value  script.Value
	Stdout string
	Stderr string
}

// Execute compiles and runs code over the session namespace. The returned
// error, when non-nil, is either a *script.CompileError or a *script.Raised
// classified by its class; a SUBMIT signal is treated as normal completion.
func (s *Session) Execute(code string, captureOutput bool) (*Outcome, error) {
	s.resetSubmitState()

	prog, err := script.Compile(code)
	if err != nil {
		return &Outcome{}, err
	}

	stdout := &bytes.Buffer{}
	s.stderr = &bytes.Buffer{}
	s.interp.Collector = script.NewPrintCollector(stdout)
	s.interp.Stderr = s.stderr

	// The last-expression value is per execute call.
	delete(s.interp.Locals, "_")

	runErr := s.interp.Run(prog)
	if r := script.AsRaised(runErr); r != nil && r.Class == script.ClassSubmitSignal {
		runErr = nil
	}

	out := &Outcome{}
	if captureOutput {
		out.Stdout = stdout.String()
		out.Stderr = s.stderr.String()
	}
	if runErr == nil {
		out.Value = s.interp.Locals["_"]
	}
	return out, runErr
}

// SetVariable stores a value in the session namespace. Underscore-prefixed
// names are reserved, `_` itself excepted.
func (s *Session) SetVariable(name string, v script.Value) error {
	if len(name) > 0 && name[0] == '_' && name != "_" {
		return script.Raise(script.ClassSandboxError, "Cannot set variable with name '%s'", name)
	}
	s.interp.Locals[name] = v
	s.interp.Globals[name] = v
	return nil
}

// GetVariable looks a name up in locals, then globals.
func (s *Session) GetVariable(name string) (script.Value, error) {
	if v, ok := s.interp.Locals[name]; ok {
		return v, nil
	}
	if v, ok := s.interp.Globals[name]; ok {
		return v, nil
	}
	return nil, script.Raise(script.ClassKeyError, "Variable '%s' not found", name)
}

// HasVariable reports whether a name exists in the namespace.
func (s *Session) HasVariable(name string) bool {
	if _, ok := s.interp.Locals[name]; ok {
		return true
	}
	_, ok := s.interp.Globals[name]
	return ok
}

// helperNames are the bindings installed by installHelpers, hidden from
// variable listings along with the rest of the infrastructure.
var helperNames = []string{
	"peek", "search", "find_relevant", "summarize", "llm", "llm_batch",
	"llm_query_batched", "map_reduce", "verify_claim", "audit_reasoning",
	"count_tokens", "truncate", "extract_code_blocks", "SUBMIT",
}

// ListVariables maps user variable names to their type labels, omitting
// infrastructure, helper bindings and underscore-prefixed names.
func (s *Session) ListVariables() map[string]string {
	skip := map[string]bool{
		"DeferredOperation": true,
		"print_collector":   true,
	}
	for _, name := range helperNames {
		skip[name] = true
	}

	variables := make(map[string]string)
	collect := func(m map[string]script.Value) {
		for name, value := range m {
			if skip[name] || (len(name) > 0 && name[0] == '_') {
				continue
			}
			variables[name] = script.TypeName(value)
		}
	}
	collect(s.interp.Globals)
	collect(s.interp.Locals)
	return variables
}

// Clear wipes user state and reinstalls the environment.
func (s *Session) Clear() {
	s.resetSubmitState()
	s.setup()
}

// RegisterSignature installs the output signature used by SUBMIT validation,
// reporting whether it replaced an earlier registration.
func (s *Session) RegisterSignature(fields []protocol.OutputField, name string) (replaced bool) {
	replaced = s.signature != nil
	s.signature = &Signature{Name: name, Fields: fields}
	return replaced
}

// ClearSignature removes the registration, reporting whether one existed.
func (s *Session) ClearSignature() (cleared bool) {
	cleared = s.signature != nil
	s.signature = nil
	return cleared
}

// SignatureRegistered reports whether a signature is installed.
func (s *Session) SignatureRegistered() bool {
	return s.signature != nil
}

// ConsumeSubmitResult returns and clears the submit bundle of the latest
// execute call.
func (s *Session) ConsumeSubmitResult() map[string]any {
	result := s.submitResult
	s.submitResult = nil
	return result
}

func (s *Session) resetSubmitState() {
	s.submitResult = nil
	s.submitCount = 0
}

// warnDeprecated emits a one-per-session deprecation diagnostic on the
// script's stderr stream and the service log.
func (s *Session) warnDeprecated(msg string) {
	if s.warned[msg] {
		return
	}
	s.warned[msg] = true
	s.stderr.WriteString("DeprecationWarning: " + msg + "\n")
	logger.GetLogger().Warn().Msg(msg)
}

// collectorValue exposes the print collector to scripts as print_collector.
type collectorValue struct {
	session *Session
}

func (c *collectorValue) TypeName() string { return "PrintCollector" }

func (c *collectorValue) Attr(name string) (script.Value, error) {
	if name == "printed" {
		return c.session.interp.Collector.Printed(), nil
	}
	return nil, script.Raise(script.ClassAttributeError, "'PrintCollector' object has no attribute '%s'", name)
}
