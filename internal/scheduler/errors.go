package scheduler

import (
	"fmt"
	"strings"

	"github.com/vk/buildgridgo/internal/fingerprint"
)

// RuleError wraps a failure from inside a rule body with the identity and
// input fingerprint of the invocation that produced it.
type RuleError struct {
	Rule        string
	Fingerprint fingerprint.Fingerprint
	Err         error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s(%s): %v", e.Rule, e.Fingerprint.Short(), e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// CycleError reports a wait-for cycle among in-flight rule invocations:
// resolving the first entry's inputs requires its own output, directly or
// transitively. Detected before deadlock, never allowed to hang.
type CycleError struct {
	// Path lists the invocations on the cycle, rendered rule(fingerprint);
	// the first and last entries are the same invocation.
	Path []string
}

func (e *CycleError) Error() string {
	return "rule request cycle detected:\n\t" + strings.Join(e.Path, " ->\n\t")
}

// UnknownRuleError reports a request for a rule name that was never
// registered.
type UnknownRuleError struct {
	Rule string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("no rule registered under %q", e.Rule)
}
