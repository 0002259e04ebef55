package toolwarden

import "github.com/ppiankov/toolwarden/internal/ledger"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	rulesPath string
	rulesYAML []byte
	strict    bool
	role      string
	recorders []ledger.Recorder
}

// WithRulesFile loads rules from a YAML file.
func WithRulesFile(path string) Option {
	return func(c *clientConfig) { c.rulesPath = path }
}

// WithRules compiles rules from YAML held in memory. It wins over
// WithRulesFile.
func WithRules(data []byte) Option {
	return func(c *clientConfig) { c.rulesYAML = data }
}

// WithStrict makes New fail when the rules file is missing or unparsable
// instead of allowing every call.
func WithStrict() Option {
	return func(c *clientConfig) { c.strict = true }
}

// WithRole sets the caller role used for every call.
func WithRole(role string) Option {
	return func(c *clientConfig) { c.role = role }
}

// WithRecorder adds a recorder that sees every wrapped call, such as an
// audit log or a shared ledger.
func WithRecorder(r ledger.Recorder) Option {
	return func(c *clientConfig) { c.recorders = append(c.recorders, r) }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	role string
}

// WrapWithRole overrides the client-level role for this wrap.
func WrapWithRole(role string) WrapOption {
	return func(w *wrapConfig) { w.role = role }
}
