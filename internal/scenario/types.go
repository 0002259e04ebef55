package scenario

// Case is one assertion: a call and the verdict it must get.
type Case struct {
	Tool string         `yaml:"tool"`
	Args map[string]any `yaml:"args,omitempty"`
	// Role overrides the scenario role for this case.
	Role string `yaml:"role,omitempty"`
	// Expect is ALLOWED or BLOCKED. allow/block and lower case are accepted.
	Expect string `yaml:"expect"`
	// Rule, when set, must equal the blocking rule name.
	Rule string `yaml:"rule,omitempty"`
}

// Scenario is a named collection of firewall assertions.
type Scenario struct {
	Name  string `yaml:"name"`
	Role  string `yaml:"role,omitempty"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index        int    `json:"index"`
	Passed       bool   `json:"passed"`
	Tool         string `json:"tool"`
	Subject      string `json:"subject"`
	Role         string `json:"role"`
	Expected     string `json:"expected"`
	Actual       string `json:"actual"`
	ExpectedRule string `json:"expected_rule,omitempty"`
	Rule         string `json:"rule,omitempty"`
	Error        string `json:"error,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
