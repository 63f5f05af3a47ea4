// Package sandbox hosts the restricted script sessions: the helper library
// available to scripts, the SUBMIT protocol, and the session namespace the
// server drives between execute calls.
package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/replbox/internal/deferred"
	"github.com/ternarybob/replbox/internal/script"
)

// Peek returns a printable slice of data. Strings slice as line ranges;
// sequences of strings join by newline; anything else renders its debug
// form.
func Peek(data script.Value, start int64, end *int64) string {
	switch t := data.(type) {
	case string:
		lines := splitLines(t)
		return strings.Join(sliceStrings(lines, start, end), "\n")
	case *script.List:
		return peekSeq(t.Items, start, end)
	case *script.Tuple:
		return peekSeq(t.Items, start, end)
	default:
		return script.Repr(data)
	}
}

func peekSeq(items []script.Value, start int64, end *int64) string {
	sliced := sliceValues(items, start, end)
	allStrings := true
	for _, item := range sliced {
		if _, ok := item.(string); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		parts := make([]string, len(sliced))
		for i, item := range sliced {
			parts[i] = item.(string)
		}
		return strings.Join(parts, "\n")
	}
	return script.Repr(&script.List{Items: sliced})
}

func sliceStrings(items []string, start int64, end *int64) []string {
	lo, hi := clampRange(int64(len(items)), start, end)
	return items[lo:hi]
}

func sliceValues(items []script.Value, start int64, end *int64) []script.Value {
	lo, hi := clampRange(int64(len(items)), start, end)
	return items[lo:hi]
}

func clampRange(length, start int64, end *int64) (int64, int64) {
	lo := start
	if lo < 0 {
		lo += length
	}
	if lo < 0 {
		lo = 0
	}
	if lo > length {
		lo = length
	}
	hi := length
	if end != nil {
		hi = *end
		if hi < 0 {
			hi += length
		}
	}
	if hi < lo {
		hi = lo
	}
	if hi > length {
		hi = length
	}
	return lo, hi
}

// SearchHit is one search match.
type SearchHit struct {
	Index   int64
	Key     script.Value
	Content script.Value
	Context string
	IsKeyed bool
	HasCtx  bool
}

// Search finds pattern occurrences in data. Strings search line by line;
// sequences match stringified items; mappings match on key or value.
func Search(data script.Value, pattern string, regex, caseSensitive bool, contextLines int64) ([]SearchHit, error) {
	expr := pattern
	if !regex {
		expr = regexp.QuoteMeta(pattern)
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, script.Raise(script.ClassValueError, "invalid pattern: %s", err)
	}

	var hits []SearchHit
	switch t := data.(type) {
	case string:
		lines := splitLines(t)
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			hit := SearchHit{Index: int64(i), Content: line}
			if contextLines > 0 {
				lo := int64(i) - contextLines
				if lo < 0 {
					lo = 0
				}
				hi := int64(i) + contextLines + 1
				if hi > int64(len(lines)) {
					hi = int64(len(lines))
				}
				hit.Context = strings.Join(lines[lo:hi], "\n")
				hit.HasCtx = true
			}
			hits = append(hits, hit)
		}
	case *script.List:
		hits = searchSeq(re, t.Items)
	case *script.Tuple:
		hits = searchSeq(re, t.Items)
	case *script.Dict:
		for _, key := range t.Keys() {
			value, _, err := t.Get(key)
			if err != nil {
				return nil, err
			}
			if re.MatchString(script.Str(key)) || re.MatchString(script.Str(value)) {
				hits = append(hits, SearchHit{Key: key, Content: value, IsKeyed: true})
			}
		}
	}
	return hits, nil
}

func searchSeq(re *regexp.Regexp, items []script.Value) []SearchHit {
	var hits []SearchHit
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			str = script.Str(item)
		}
		if re.MatchString(str) {
			hits = append(hits, SearchHit{Index: int64(i), Content: item})
		}
	}
	return hits
}

// CountTokens approximates token count at four characters per token.
func CountTokens(text string) int64 {
	return int64(len(text)) / 4
}

// Truncate keeps roughly maxTokens worth of leading text.
func Truncate(text string, maxTokens int64) string {
	maxChars := maxTokens * 4
	if int64(len(text)) <= maxChars {
		return text
	}
	if maxChars < 3 {
		maxChars = 3
	}
	return text[:maxChars-3] + "..."
}

var codeBlockRe = regexp.MustCompile("(?s)```(\\w*)\n(.*?)```")

// CodeBlock is one fenced block extracted from markdown.
type CodeBlock struct {
	Language string
	Code     string
}

// ExtractCodeBlocks pulls every fenced code block out of markdown text.
func ExtractCodeBlocks(text string) []CodeBlock {
	matches := codeBlockRe.FindAllStringSubmatch(text, -1)
	blocks := make([]CodeBlock, 0, len(matches))
	for _, m := range matches {
		lang := m[1]
		if lang == "" {
			lang = "text"
		}
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.TrimSpace(m[2])})
	}
	return blocks
}

// ChunkText splits text into overlapping chunks on line boundaries. The
// overlap carries whole trailing lines worth up to overlap characters.
func ChunkText(text string, chunkSize, overlap int) []string {
	lines := splitLines(text)
	var chunks []string
	var current []string
	size := 0

	for _, line := range lines {
		lineSize := len(line)
		if size+lineSize > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			var kept []string
			keptSize := 0
			for i := len(current) - 1; i >= 0; i-- {
				if keptSize+len(current[i]) > overlap {
					break
				}
				kept = append([]string{current[i]}, kept...)
				keptSize += len(current[i])
			}
			current = kept
			size = keptSize
		}
		current = append(current, line)
		size += lineSize
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

// splitLines splits on newlines without a trailing empty line, the line
// semantics every helper shares.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Script bindings. Each helper validates its arguments the way its script
// signature reads, then either computes directly or mints a deferred
// operation through the session registry.

func typeErr(fn, msg string, args ...any) error {
	return script.Raise(script.ClassTypeError, fn+"() "+msg, args...)
}

// helperArgs resolves positional and keyword arguments against a parameter
// list with defaults, the way the helper signatures are documented.
func helperArgs(fn string, names []string, defaults map[string]script.Value, args []script.Value, kwargs map[string]script.Value) (map[string]script.Value, error) {
	if len(args) > len(names) {
		return nil, typeErr(fn, "takes at most %d arguments (%d given)", len(names), len(args))
	}
	out := make(map[string]script.Value, len(names))
	for i, a := range args {
		out[names[i]] = a
	}
	for k, v := range kwargs {
		known := false
		for _, n := range names {
			if n == k {
				known = true
				break
			}
		}
		if !known {
			return nil, typeErr(fn, "got an unexpected keyword argument '%s'", k)
		}
		if _, dup := out[k]; dup {
			return nil, typeErr(fn, "got multiple values for argument '%s'", k)
		}
		out[k] = v
	}
	for _, n := range names {
		if _, ok := out[n]; ok {
			continue
		}
		if d, ok := defaults[n]; ok {
			out[n] = d
			continue
		}
		return nil, typeErr(fn, "missing required argument: '%s'", n)
	}
	return out, nil
}

func intArgOr(v script.Value, def int64) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return int64(t)
	default:
		return def
	}
}

// installHelpers binds the helper library into the session globals.
func (s *Session) installHelpers() {
	g := s.interp.Globals

	bind := func(name string, fn func(it *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error)) {
		g[name] = &script.Builtin{Name: name, Fn: fn}
	}

	bind("peek", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("peek", []string{"data", "start", "end"}, map[string]script.Value{"start": int64(0), "end": nil}, args, kwargs)
		if err != nil {
			return nil, err
		}
		start := intArgOr(bound["start"], 0)
		var end *int64
		if bound["end"] != nil {
			e := intArgOr(bound["end"], 0)
			end = &e
		}
		return Peek(bound["data"], start, end), nil
	})

	bind("search", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("search",
			[]string{"data", "pattern", "regex", "case_sensitive", "context_lines"},
			map[string]script.Value{"regex": false, "case_sensitive": true, "context_lines": int64(0)},
			args, kwargs)
		if err != nil {
			return nil, err
		}
		pattern, ok := bound["pattern"].(string)
		if !ok {
			return nil, typeErr("search", "pattern must be str, not %s", script.TypeName(bound["pattern"]))
		}
		regex, err := script.Truth(bound["regex"])
		if err != nil {
			return nil, err
		}
		caseSensitive, err := script.Truth(bound["case_sensitive"])
		if err != nil {
			return nil, err
		}
		hits, err := Search(bound["data"], pattern, regex, caseSensitive, intArgOr(bound["context_lines"], 0))
		if err != nil {
			return nil, err
		}
		out := make([]script.Value, len(hits))
		for i, hit := range hits {
			d := script.NewDict()
			if hit.IsKeyed {
				d.Set("key", hit.Key)
				d.Set("content", hit.Content)
			} else {
				d.Set("index", hit.Index)
				d.Set("content", hit.Content)
				if hit.HasCtx {
					d.Set("context", hit.Context)
				}
			}
			out[i] = d
		}
		return &script.List{Items: out}, nil
	})

	bind("count_tokens", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("count_tokens", []string{"text"}, nil, args, kwargs)
		if err != nil {
			return nil, err
		}
		text, ok := bound["text"].(string)
		if !ok {
			return nil, typeErr("count_tokens", "text must be str, not %s", script.TypeName(bound["text"]))
		}
		return CountTokens(text), nil
	})

	bind("truncate", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("truncate", []string{"text", "max_tokens"}, map[string]script.Value{"max_tokens": int64(1000)}, args, kwargs)
		if err != nil {
			return nil, err
		}
		text, ok := bound["text"].(string)
		if !ok {
			return nil, typeErr("truncate", "text must be str, not %s", script.TypeName(bound["text"]))
		}
		return Truncate(text, intArgOr(bound["max_tokens"], 1000)), nil
	})

	bind("extract_code_blocks", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("extract_code_blocks", []string{"text"}, nil, args, kwargs)
		if err != nil {
			return nil, err
		}
		text, ok := bound["text"].(string)
		if !ok {
			return nil, typeErr("extract_code_blocks", "text must be str, not %s", script.TypeName(bound["text"]))
		}
		blocks := ExtractCodeBlocks(text)
		out := make([]script.Value, len(blocks))
		for i, b := range blocks {
			d := script.NewDict()
			d.Set("language", b.Language)
			d.Set("code", b.Code)
			out[i] = d
		}
		return &script.List{Items: out}, nil
	})

	bind("find_relevant", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("find_relevant", []string{"data", "query", "top_k"}, map[string]script.Value{"top_k": int64(5)}, args, kwargs)
		if err != nil {
			return nil, err
		}
		query, ok := bound["query"].(string)
		if !ok {
			return nil, typeErr("find_relevant", "query must be str, not %s", script.TypeName(bound["query"]))
		}
		var chunks []string
		switch t := bound["data"].(type) {
		case string:
			chunks = ChunkText(t, 500, 50)
		case *script.List:
			for _, item := range t.Items {
				chunks = append(chunks, script.Str(item))
			}
		default:
			chunks = []string{script.Str(bound["data"])}
		}
		chunkValues := make([]any, len(chunks))
		for i, c := range chunks {
			chunkValues[i] = c
		}
		return s.mint(deferred.KindEmbed, map[string]any{
			"query":  query,
			"chunks": chunkValues,
			"top_k":  intArgOr(bound["top_k"], 5),
		}), nil
	})

	bind("summarize", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("summarize", []string{"data", "max_tokens", "focus"}, map[string]script.Value{"max_tokens": int64(500), "focus": nil}, args, kwargs)
		if err != nil {
			return nil, err
		}
		content, ok := bound["data"].(string)
		if !ok {
			content = script.Str(bound["data"])
		}
		maxTokens := intArgOr(bound["max_tokens"], 500)
		prompt := fmt.Sprintf("Summarize the following in at most %d tokens", maxTokens)
		var focus any
		if f, ok := bound["focus"].(string); ok {
			prompt += fmt.Sprintf(", focusing on %s", f)
			focus = f
		}
		prompt += ":\n\n" + content
		return s.mint(deferred.KindSummarize, map[string]any{
			"content":    content,
			"max_tokens": maxTokens,
			"focus":      focus,
			"prompt":     prompt,
		}), nil
	})

	bind("llm", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("llm",
			[]string{"prompt", "context", "model", "max_tokens", "temperature"},
			map[string]script.Value{"context": nil, "model": nil, "max_tokens": int64(1024), "temperature": float64(0)},
			args, kwargs)
		if err != nil {
			return nil, err
		}
		prompt, ok := bound["prompt"].(string)
		if !ok {
			return nil, typeErr("llm", "prompt must be str, not %s", script.TypeName(bound["prompt"]))
		}
		params := map[string]any{
			"prompt":      prompt,
			"context":     nativeOrNil(bound["context"]),
			"model":       nativeOrNil(bound["model"]),
			"max_tokens":  intArgOr(bound["max_tokens"], 1024),
			"temperature": floatArg(bound["temperature"]),
		}
		return s.mint(deferred.KindLLMCall, params), nil
	})

	llmBatch := func(fnName string) func(it *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		return func(it *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
			bound, err := helperArgs(fnName,
				[]string{"prompts", "contexts", "max_parallel", "model", "max_tokens"},
				map[string]script.Value{"contexts": nil, "max_parallel": int64(5), "model": nil, "max_tokens": int64(1024)},
				args, kwargs)
			if err != nil {
				return nil, err
			}
			prompts, err := stringSeq(fnName, "prompts", bound["prompts"])
			if err != nil {
				return nil, err
			}
			var contexts []any
			if bound["contexts"] != nil {
				ctxStrings, err := stringSeq(fnName, "contexts", bound["contexts"])
				if err != nil {
					return nil, err
				}
				if len(ctxStrings) != len(prompts) {
					return nil, script.Raise(script.ClassValueError, "contexts must have same length as prompts")
				}
				contexts = make([]any, len(ctxStrings))
				for i, c := range ctxStrings {
					contexts[i] = c
				}
			}
			promptValues := make([]any, len(prompts))
			for i, p := range prompts {
				promptValues[i] = p
			}
			params := map[string]any{
				"prompts":      promptValues,
				"contexts":     contexts,
				"max_parallel": intArgOr(bound["max_parallel"], 5),
				"model":        nativeOrNil(bound["model"]),
				"max_tokens":   intArgOr(bound["max_tokens"], 1024),
			}
			if contexts == nil {
				params["contexts"] = nil
			}
			return s.mint(deferred.KindLLMBatch, params), nil
		}
	}

	bind("llm_batch", llmBatch("llm_batch"))

	forward := llmBatch("llm_query_batched")
	bind("llm_query_batched", func(it *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		s.warnDeprecated("llm_query_batched() is deprecated; use llm_batch() instead.")
		return forward(it, args, kwargs)
	})

	bind("map_reduce", func(it *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("map_reduce",
			[]string{"data", "map_prompt", "reduce_prompt", "chunk_size"},
			map[string]script.Value{"chunk_size": int64(10)},
			args, kwargs)
		if err != nil {
			return nil, err
		}
		items, err := script.Iterate(bound["data"])
		if err != nil {
			return nil, err
		}
		mapPrompt, ok := bound["map_prompt"].(string)
		if !ok {
			return nil, typeErr("map_reduce", "map_prompt must be str, not %s", script.TypeName(bound["map_prompt"]))
		}
		reducePrompt, ok := bound["reduce_prompt"].(string)
		if !ok {
			return nil, typeErr("map_reduce", "reduce_prompt must be str, not %s", script.TypeName(bound["reduce_prompt"]))
		}
		chunkSize := intArgOr(bound["chunk_size"], 10)
		if chunkSize < 1 {
			chunkSize = 1
		}
		var chunks []any
		for start := 0; start < len(items); start += int(chunkSize) {
			end := start + int(chunkSize)
			if end > len(items) {
				end = len(items)
			}
			chunk := make([]any, 0, end-start)
			for _, item := range items[start:end] {
				n, err := script.ToNative(item)
				if err != nil {
					return nil, err
				}
				chunk = append(chunk, n)
			}
			chunks = append(chunks, chunk)
		}
		return s.mint(deferred.KindMapReduce, map[string]any{
			"chunks":        chunks,
			"map_prompt":    mapPrompt,
			"reduce_prompt": reducePrompt,
		}), nil
	})

	bind("verify_claim", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("verify_claim",
			[]string{"claim", "evidence", "confidence"},
			map[string]script.Value{"confidence": float64(0.95)},
			args, kwargs)
		if err != nil {
			return nil, err
		}
		return s.mint(deferred.KindLLMCall, map[string]any{
			"type":              "verify_claim",
			"claim":             nativeOrNil(bound["claim"]),
			"evidence":          nativeOrNil(bound["evidence"]),
			"target_confidence": floatArg(bound["confidence"]),
		}), nil
	})

	bind("audit_reasoning", func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		bound, err := helperArgs("audit_reasoning",
			[]string{"steps", "sources"},
			map[string]script.Value{"sources": nil},
			args, kwargs)
		if err != nil {
			return nil, err
		}
		steps, err := stringSeq("audit_reasoning", "steps", bound["steps"])
		if err != nil {
			return nil, err
		}
		stepValues := make([]any, len(steps))
		for i, st := range steps {
			stepValues[i] = st
		}
		var sources any
		if bound["sources"] != nil {
			src, err := stringSeq("audit_reasoning", "sources", bound["sources"])
			if err != nil {
				return nil, err
			}
			srcValues := make([]any, len(src))
			for i, sv := range src {
				srcValues[i] = sv
			}
			sources = srcValues
		}
		return s.mint(deferred.KindLLMCall, map[string]any{
			"type":    "audit_reasoning",
			"steps":   stepValues,
			"sources": sources,
		}), nil
	})

	g["SUBMIT"] = &script.Builtin{Name: "SUBMIT", Fn: func(_ *script.Interp, args []script.Value, kwargs map[string]script.Value) (script.Value, error) {
		if len(args) != 1 {
			return nil, typeErr("SUBMIT", "takes exactly one argument (%d given)", len(args))
		}
		return nil, s.submit(args[0])
	}}

	g["DeferredOperation"] = ClassDeferredOperation
}

// mint creates a deferred operation and wraps it for the script.
func (s *Session) mint(kind deferred.Kind, params map[string]any) script.Value {
	op := s.registry.Create(kind, params)
	return &opValue{op: op}
}

func nativeOrNil(v script.Value) any {
	if v == nil {
		return nil
	}
	n, err := script.ToNative(v)
	if err != nil {
		return script.Str(v)
	}
	return n
}

func floatArg(v script.Value) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func stringSeq(fn, arg string, v script.Value) ([]string, error) {
	items, err := script.Iterate(v)
	if err != nil {
		return nil, typeErr(fn, "%s must be a sequence of strings", arg)
	}
	out := make([]string, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			str = script.Str(item)
		}
		out[i] = str
	}
	return out, nil
}
