package addr

import "fmt"

// InvalidSpecPathError reports a malformed path component in a target spec.
// It is always a hard user-facing error and is never retried.
type InvalidSpecPathError struct {
	Spec   string
	Reason string
}

func (e *InvalidSpecPathError) Error() string {
	return fmt.Sprintf("invalid spec path in %q: %s", e.Spec, e.Reason)
}

// InvalidTargetNameError reports a malformed name component in a target spec.
type InvalidTargetNameError struct {
	Spec   string
	Name   string
	Reason string
}

func (e *InvalidTargetNameError) Error() string {
	return fmt.Sprintf("invalid target name %q in %q: %s", e.Name, e.Spec, e.Reason)
}
