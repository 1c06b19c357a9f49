package filtering

import "github.com/google/cel-go/cel"

// Rule is one configured filter expression, compiled at startup.
type Rule struct {
	Name       string
	Expression string
	program    cel.Program
}

// Verdict is the outcome of running a message through the filter.
// Reason is set only when the message was rejected.
type Verdict struct {
	Accepted     bool
	Reason       string
	RulesApplied []string
}

// Rejection reasons for the built-in gate.
const (
	ReasonNotGroup         = "not_group"
	ReasonNotText          = "not_text"
	ReasonOutgoing         = "outgoing"
	ReasonUnmonitoredGroup = "unmonitored_group"
	ReasonEmptyContent     = "empty_content"
	ReasonRuleRejected     = "rule_rejected"
	ReasonFallbackDeny     = "fallback_deny"
)
