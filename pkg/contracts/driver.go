package contracts

// DriverBlock is a policy-authored text block constraining assistant
// output. The Definition carries a "Validators:" section parsed by the
// post-output linter.
type DriverBlock struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Definition string `json:"definition"`
}

// DriverBlockBundle is the on-disk bundle of driver blocks.
type DriverBlockBundle struct {
	FormatVersion string        `json:"format_version"`
	Blocks        []DriverBlock `json:"blocks"`
}

// EnforcementMode controls how linter violations are treated.
type EnforcementMode string

const (
	EnforceStrict EnforcementMode = "strict"
	EnforceWarn   EnforcementMode = "warn"
	EnforceOff    EnforcementMode = "off"
)
