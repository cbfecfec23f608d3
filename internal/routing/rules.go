package routing

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"qms-workers/internal/common/config"
)

// ValueTerm maps a keyword to the value it selects, e.g. "reject" to the
// "Rejected" status.
type ValueTerm struct {
	Term  string
	Value string
}

// Rules holds every keyword table used by the classifier, the resolver and
// the dispatcher. Build it once with DefaultRules or RulesFromConfig and pass
// it by value; nothing mutates it afterwards.
type Rules struct {
	KnowledgeKeywords []string

	ChangeRequestCreate    []string
	ChangeRequestUpdate    []string
	CorrectiveActionCreate []string
	CorrectiveActionUpdate []string

	StatusTerms   []string
	ListingVerbs  []string
	OverdueTerms  []string
	ApprovalTerms []string
	PendingTerms  []string
	DraftTerms    []string

	ChangeRequestTokens    []string
	CorrectiveActionTokens []string
	GenericEntityTokens    []string

	ChangeRequestTransitions    []ValueTerm
	CorrectiveActionTransitions []ValueTerm
	ChangeRequestDefaultStatus  string
	CorrectiveActionOpenStatus  string
	CorrectiveActionDefaultNext string

	PriorityTerms []ValueTerm
	SeverityTerms []ValueTerm
}

// DefaultRules returns the built-in tables.
func DefaultRules() Rules {
	return Rules{
		KnowledgeKeywords: []string{
			"procedure", "requirement", "regulation", "standard", "clause", "sop",
			"process", "policy", "control", "risk", "document", "definition",
			"explain", "what is", "how to", "why", "guidance",
		},

		ChangeRequestCreate: []string{
			"create dcr", "new dcr", "submit dcr", "initiate dcr",
			"create a dcr", "submit a dcr", "raise a dcr",
			"create change request", "new change request", "submit change request", "initiate change request",
			"create a change request", "submit a change request", "raise a change request",
		},
		ChangeRequestUpdate: []string{
			"update dcr", "change dcr", "dcr status", "dcr approval", "approve dcr", "reject dcr", "implement dcr",
			"update change request", "change request approval",
			"approve change request", "reject change request",
		},
		CorrectiveActionCreate: []string{
			"create capa", "new capa", "file capa",
			"create a capa", "open a capa", "file a capa", "raise a capa",
			"open capa for", "open new capa", "open a new capa",
			"create corrective action", "new corrective action", "file corrective action",
			"create a corrective action", "open a corrective action", "raise a corrective action",
			"open corrective action for",
		},
		CorrectiveActionUpdate: []string{
			"update capa", "capa action", "close capa", "capa approval", "verify capa",
			"update corrective action", "close corrective action", "corrective action approval",
		},

		StatusTerms:   []string{"status", "pending", "approved", "rejected", "open", "closed", "awaiting"},
		ListingVerbs:  []string{"list", "show", "get", "find", "which", "who", "where", "count"},
		OverdueTerms:  []string{"overdue", "due", "deadline", "late"},
		ApprovalTerms: []string{"approval", "sign"},
		PendingTerms:  []string{"pending", "awaiting", "approval"},
		DraftTerms:    []string{"draft", "response"},

		ChangeRequestTokens:    []string{"dcr", "change request"},
		CorrectiveActionTokens: []string{"capa", "corrective action"},
		GenericEntityTokens:    []string{"approval", "action"},

		ChangeRequestTransitions: []ValueTerm{
			{Term: "approve", Value: "Approved"},
			{Term: "reject", Value: "Rejected"},
			{Term: "implement", Value: "Implemented"},
		},
		CorrectiveActionTransitions: []ValueTerm{
			{Term: "close", Value: "Closed"},
			{Term: "verif", Value: "Awaiting Verification"},
		},
		ChangeRequestDefaultStatus:  "In Review",
		CorrectiveActionOpenStatus:  "Open",
		CorrectiveActionDefaultNext: "In Progress",

		PriorityTerms: []ValueTerm{
			{Term: "urgent", Value: "High"},
			{Term: "high priority", Value: "High"},
			{Term: "low priority", Value: "Low"},
		},
		SeverityTerms: []ValueTerm{
			{Term: "critical", Value: "Critical"},
			{Term: "minor", Value: "Minor"},
			{Term: "major", Value: "Major"},
		},
	}
}

// RulesFromConfig starts from DefaultRules and replaces every table the
// configuration provides.
func RulesFromConfig(cfg config.RoutingConfig) Rules {
	r := DefaultRules()
	override(&r.KnowledgeKeywords, cfg.KnowledgeKeywords)
	override(&r.ChangeRequestCreate, cfg.ChangeRequestCreate)
	override(&r.ChangeRequestUpdate, cfg.ChangeRequestUpdate)
	override(&r.CorrectiveActionCreate, cfg.CorrectiveActionCreate)
	override(&r.CorrectiveActionUpdate, cfg.CorrectiveActionUpdate)
	override(&r.StatusTerms, cfg.StatusTerms)
	override(&r.ListingVerbs, cfg.ListingVerbs)
	override(&r.OverdueTerms, cfg.OverdueTerms)
	override(&r.ApprovalTerms, cfg.ApprovalTerms)
	override(&r.DraftTerms, cfg.DraftTerms)
	return r
}

func override(dst *[]string, src []string) {
	if len(src) == 0 {
		return
	}
	out := make([]string, 0, len(src))
	for _, s := range src {
		if s = normalize(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

// normalize lower-cases and trims text before matching.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ContainsTerm reports whether term occurs in text starting at a word
// boundary. The end of the term is left open so plurals and inflections
// ("dcrs", "approved") still match, while "due" does not match inside
// "residue". Both arguments must already be normalized.
func ContainsTerm(text, term string) bool {
	return termIndex(text, term) >= 0
}

func termIndex(text, term string) int {
	if term == "" {
		return -1
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return -1
		}
		start := offset + i
		if start == 0 {
			return 0
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return start
		}
		offset = start + 1
	}
	return -1
}

// ContainsAny reports whether any of terms occurs in text.
func ContainsAny(text string, terms []string) bool {
	for _, term := range terms {
		if ContainsTerm(text, term) {
			return true
		}
	}
	return false
}

// FirstValue returns the value of the first term found in text, or fallback.
func FirstValue(text string, terms []ValueTerm, fallback string) string {
	for _, vt := range terms {
		if ContainsTerm(text, vt.Term) {
			return vt.Value
		}
	}
	return fallback
}

// firstIndex returns the earliest word-boundary position of any term, or -1.
func firstIndex(text string, terms []string) int {
	best := -1
	for _, term := range terms {
		if i := termIndex(text, term); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// ChangeRequestStatus derives the target status of a change request update.
func (r Rules) ChangeRequestStatus(text string) string {
	return FirstValue(normalize(text), r.ChangeRequestTransitions, r.ChangeRequestDefaultStatus)
}

// CorrectiveActionStatus derives the target status of a corrective action
// update.
func (r Rules) CorrectiveActionStatus(text string) string {
	return FirstValue(normalize(text), r.CorrectiveActionTransitions, r.CorrectiveActionDefaultNext)
}

func (r Rules) Priority(text, fallback string) string {
	return FirstValue(normalize(text), r.PriorityTerms, fallback)
}

func (r Rules) Severity(text, fallback string) string {
	return FirstValue(normalize(text), r.SeverityTerms, fallback)
}
