// Package template implements the pipeline-scope variable expansion of
// spec.md §4.1: textual, left-to-right, non-recursive substitution of a
// fixed set of ${VAR} references inside task descriptor strings.
package template

import "strings"

// Variables holds the values substituted for each recognized ${...}
// reference. Zero-value (empty string) fields simply expand to "".
type Variables struct {
	RootPath string
	WorkPath string
	RunPath  string
	TaskID   string
	TaskName string
	PipeID   string
}

// replacer builds a strings.Replacer performing the substitution exactly
// once, left-to-right, per occurrence: strings.Replacer itself guarantees
// no re-scan of already-substituted output, which gives expansion its
// required non-recursive property for free.
func (v Variables) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"${ROOT_PATH}", v.RootPath,
		"${WORK_PATH}", v.WorkPath,
		"${RUN_PATH}", v.RunPath,
		"${TASK_ID}", v.TaskID,
		"${TASK_NAME}", v.TaskName,
		"${PIPE_ID}", v.PipeID,
	)
}

// Expand substitutes every recognized variable in s. Unknown ${...}
// references pass through unchanged (spec.md §4.1).
func Expand(v Variables, s string) string {
	return v.replacer().Replace(s)
}

// ExpandAll expands every string in ss, preserving order.
func ExpandAll(v Variables, ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	r := v.replacer()
	for i, s := range ss {
		out[i] = r.Replace(s)
	}
	return out
}
