package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templateContext is what {{...}} expressions resolve against:
// payload is the triggering event's payload, steps is the ordered
// results of already-executed steps in this run.
type templateContext struct {
	payload map[string]any
	steps   []stepResultView
}

type stepResultView struct {
	result any
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// resolveArguments walks args and resolves every string value (and
// every string nested inside a map or slice) against ctx.
func resolveArguments(args map[string]any, ctx templateContext) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = resolveValue(v, ctx)
	}
	return out
}

func resolveValue(v any, ctx templateContext) any {
	switch t := v.(type) {
	case string:
		return resolveString(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = resolveValue(vv, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = resolveValue(vv, ctx)
		}
		return out
	default:
		return v
	}
}

// resolveString resolves the template tokens in s. If s is, in its
// entirety, a single {{expr}} token, the resolved value's original
// type is preserved (so a number or nested object doesn't get
// stringified). Otherwise every token in s is resolved and
// stringified in place. A token whose path cannot be resolved is left
// as the literal "{{expr}}" text, so a typo is visible in the output
// rather than silently vanishing.
func resolveString(s string, ctx templateContext) any {
	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		if v, ok := lookupPath(expr, ctx); ok {
			return v
		}
		return s
	}

	return tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		expr := strings.TrimSpace(tok[2 : len(tok)-2])
		v, ok := lookupPath(expr, ctx)
		if !ok {
			return tok
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// lookupPath resolves a dotted/bracketed path such as "payload.id" or
// "steps[0].result.name" against ctx.
func lookupPath(expr string, ctx templateContext) (any, bool) {
	segments, ok := splitPath(expr)
	if !ok || len(segments) == 0 {
		return nil, false
	}

	switch segments[0] {
	case "payload":
		return walk(ctx.payload, segments[1:])
	case "steps":
		return walkSteps(ctx.steps, segments[1:])
	default:
		return nil, false
	}
}

// pathSegment is either a field name or an integer index (for
// steps[N]).
type pathSegment struct {
	field string
	index int
	isIdx bool
}

func splitPath(expr string) ([]pathSegment, bool) {
	var segs []pathSegment
	for _, part := range strings.Split(expr, ".") {
		for part != "" {
			if i := strings.IndexByte(part, '['); i >= 0 {
				if i > 0 {
					segs = append(segs, pathSegment{field: part[:i]})
				}
				j := strings.IndexByte(part, ']')
				if j < i {
					return nil, false
				}
				n, err := strconv.Atoi(part[i+1 : j])
				if err != nil {
					return nil, false
				}
				segs = append(segs, pathSegment{index: n, isIdx: true})
				part = part[j+1:]
				continue
			}
			segs = append(segs, pathSegment{field: part})
			part = ""
		}
	}
	return segs, true
}

func walk(v any, segments []pathSegment) (any, bool) {
	cur := v
	for _, seg := range segments {
		if seg.isIdx {
			slice, ok := cur.([]any)
			if !ok || seg.index < 0 || seg.index >= len(slice) {
				return nil, false
			}
			cur = slice[seg.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, present := m[seg.field]
		if !present {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func walkSteps(steps []stepResultView, segments []pathSegment) (any, bool) {
	if len(segments) == 0 || !segments[0].isIdx {
		return nil, false
	}
	idx := segments[0].index
	if idx < 0 || idx >= len(steps) {
		return nil, false
	}
	rest := segments[1:]
	if len(rest) == 0 {
		return steps[idx].result, true
	}
	if rest[0].field != "result" {
		return nil, false
	}
	return walk(steps[idx].result, rest[1:])
}
