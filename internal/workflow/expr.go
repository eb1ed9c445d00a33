package workflow

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/gval"
)

// contextBuiltins adds a handful of workflow-local helpers to gval's
// default arithmetic/logic/string dialect. They read the shared context but
// never mutate it — mutation only ever happens through a step's ResultVar
// assignment, so the runner is always the single writer of context state.
func contextBuiltins() []gval.Language {
	return []gval.Language{
		gval.Function("has", hasFunc),
		gval.Function("contains", containsFunc),
		gval.Function("coalesce", coalesceFunc),
	}
}

// hasFunc reports whether root (the self-reference injected by Eval under
// selfKey) contains key. Usage in an expression: has(_ctx, "some_field").
func hasFunc(root any, key string) (any, error) {
	m, ok := root.(map[string]any)
	if !ok {
		return false, nil
	}
	_, found := m[key]
	return found, nil
}

func containsFunc(haystack, needle string) (any, error) {
	return strings.Contains(haystack, needle), nil
}

func coalesceFunc(args ...any) (any, error) {
	for _, a := range args {
		if a != nil {
			if s, ok := a.(string); ok && s == "" {
				continue
			}
			return a, nil
		}
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("coalesce: requires at least one argument")
	}
	return nil, nil
}
