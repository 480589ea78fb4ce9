// Package guard implements the layered checks that sit between untrusted
// chat input and the tool-calling LLM: a heuristic deny-list filter, an
// external injection classifier, and an LLM-backed semantic validator.
package guard

import "strings"

// Chat message roles shared across the guard and chat packages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FilterResult is the verdict of the heuristic prompt filter.
type FilterResult struct {
	// Allowed is false when a deny-list rule matched.
	Allowed bool
	// Reply is the canned assistant response for the matched rule.
	Reply string
	// Rule names the rule that fired, for logs and metrics.
	Rule string
}

// filterRule pairs a match predicate with its canned refusal.
type filterRule struct {
	name  string
	match func(raw, upper string) bool
	reply string
}

// The deny list is deliberately crude: it is a cheap first pass that drains
// obvious SQL-shaped or off-topic noise before the classifier and validator
// are paid for. A determined caller can phrase around it; the later stages
// exist for that. Rules run in order and the first match wins.
var filterRules = []filterRule{
	{
		name: "select_keyword",
		match: func(raw, upper string) bool {
			return strings.Contains(upper, " SELECT ") || strings.HasPrefix(upper, "SELECT ")
		},
		reply: "Nice Try ;) You'll find I am a bit more SELECT-ive than that!",
	},
	{
		name: "wildcard",
		match: func(raw, upper string) bool {
			return strings.Contains(upper, "*")
		},
		reply: "Hey I just really don't like that character, can we not use '*'?",
	},
	{
		name: "sql_keyword",
		match: func(raw, upper string) bool {
			return strings.Contains(upper, "SQL")
		},
		reply: "What is SQL? I only know healthcare records!",
	},
	{
		name: "identifier",
		match: func(raw, upper string) bool {
			// The bare "ID" and " id " probes are case-sensitive on purpose:
			// matching every "id" substring would swallow words like "said".
			return strings.Contains(upper, "PATIENT_ID") ||
				strings.Contains(raw, "ID") ||
				strings.Contains(raw, " id ")
		},
		reply: "ID? More like ID rather not! haha....",
	},
	{
		name: "table_keyword",
		match: func(raw, upper string) bool {
			return strings.Contains(upper, " TABLE ")
		},
		reply: "Tables? what is this? an IKEA?",
	},
	{
		name: "query_keyword",
		match: func(raw, upper string) bool {
			return strings.Contains(upper, "QUERY")
		},
		reply: "I'm sorry, I don't know what you mean by 'query'. Perhaps you meant to ask about your medical records?",
	},
	{
		name: "topic_drift",
		match: func(raw, upper string) bool {
			return strings.Contains(upper, "POEM")
		},
		reply: "Hey I'm a healthcare chatbot, not shakespeare, alright?",
	},
}

// CheckMessage scans inbound user text against the deny list. It is pure and
// performs no I/O; the caller surfaces Reply as an assistant turn without
// forwarding the original text anywhere else.
func CheckMessage(text string) FilterResult {
	upper := strings.ToUpper(text)
	for _, rule := range filterRules {
		if rule.match(text, upper) {
			return FilterResult{Allowed: false, Reply: rule.reply, Rule: rule.name}
		}
	}
	return FilterResult{Allowed: true}
}
