package addr

// Address is the unique identity of a target: a normalized spec path relative
// to the build root, plus a target name. The zero value is not a valid
// address; construct one with New or Parse.
//
// Address is comparable and usable as a map key. Two addresses are equal iff
// both fields match.
type Address struct {
	// SpecPath is the normalized build-root-relative directory of the target.
	// Empty for targets declared at the root.
	SpecPath string

	// TargetName is the target's name, unique within its spec path.
	TargetName string
}

// New validates the two components and returns the resulting Address.
func New(specPath, targetName string) (Address, error) {
	if err := validateSpecPath(specPath, specPath+":"+targetName); err != nil {
		return Address{}, err
	}
	if err := validateTargetName(targetName, specPath+":"+targetName); err != nil {
		return Address{}, err
	}
	return Address{SpecPath: specPath, TargetName: targetName}, nil
}

// Spec renders the address in canonical spec notation. Root-level targets are
// prefixed with `//` to disambiguate them from relative notation.
func (a Address) Spec() string {
	if a.SpecPath == "" {
		return "//:" + a.TargetName
	}
	return a.SpecPath + ":" + a.TargetName
}

// RelativeSpec renders only the `:name` component, for use alongside other
// targets at the same spec path.
func (a Address) RelativeSpec() string {
	return ":" + a.TargetName
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Spec()
}

// Less orders addresses by (SpecPath, TargetName).
func (a Address) Less(other Address) bool {
	if a.SpecPath != other.SpecPath {
		return a.SpecPath < other.SpecPath
	}
	return a.TargetName < other.TargetName
}
