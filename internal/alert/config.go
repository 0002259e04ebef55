package alert

// Config defines a webhook alert destination.
type Config struct {
	URL    string `yaml:"url"     json:"url"`
	Format string `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	// Outcomes selects which call outcomes are sent ("blocked", "error",
	// "ok"). Empty means blocked only.
	Outcomes []string          `yaml:"outcomes" json:"outcomes"`
	Headers  map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string  `json:"timestamp"`
	Tool       string  `json:"tool"`
	Role       string  `json:"role,omitempty"`
	Outcome    string  `json:"outcome"`
	Rule       string  `json:"rule,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	PolicyHash string  `json:"policy_hash,omitempty"`
}
