package routing

import "qms-workers/internal/models"

// Rule is one entry of the classification decision list.
type Rule struct {
	Name    string
	Match   func(text string) bool
	Outcome models.QueryType
}

// Classifier assigns a QueryType by trying its rules in order. The first
// matching rule wins, so the order of the list is the tie-break policy
// between overlapping keyword tables.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds the decision list from the keyword tables.
func NewClassifier(r Rules) *Classifier {
	approval := func(text string) bool { return ContainsAny(text, r.ApprovalTerms) }
	anyEntity := func(text string) bool {
		return ContainsAny(text, r.ChangeRequestTokens) || ContainsAny(text, r.CorrectiveActionTokens)
	}

	return &Classifier{rules: []Rule{
		{
			Name:    "change_request_create",
			Match:   func(text string) bool { return ContainsAny(text, r.ChangeRequestCreate) },
			Outcome: models.QueryTypeWorkflowWrite,
		},
		{
			Name: "change_request_approval",
			Match: func(text string) bool {
				return ContainsAny(text, r.ChangeRequestUpdate) && approval(text)
			},
			Outcome: models.QueryTypeWorkflowRead,
		},
		{
			Name:    "change_request_update",
			Match:   func(text string) bool { return ContainsAny(text, r.ChangeRequestUpdate) },
			Outcome: models.QueryTypeWorkflowWrite,
		},
		{
			Name:    "corrective_action_create",
			Match:   func(text string) bool { return ContainsAny(text, r.CorrectiveActionCreate) },
			Outcome: models.QueryTypeWorkflowWrite,
		},
		{
			Name: "corrective_action_approval",
			Match: func(text string) bool {
				return ContainsAny(text, r.CorrectiveActionUpdate) && approval(text)
			},
			Outcome: models.QueryTypeWorkflowRead,
		},
		{
			Name:    "corrective_action_update",
			Match:   func(text string) bool { return ContainsAny(text, r.CorrectiveActionUpdate) },
			Outcome: models.QueryTypeWorkflowWrite,
		},
		{
			Name: "listing_with_status",
			Match: func(text string) bool {
				return ContainsAny(text, r.ListingVerbs) && ContainsAny(text, r.StatusTerms)
			},
			Outcome: models.QueryTypeWorkflowRead,
		},
		{
			Name:    "overdue",
			Match:   func(text string) bool { return ContainsAny(text, r.OverdueTerms) },
			Outcome: models.QueryTypeWorkflowRead,
		},
		{
			Name: "draft_response",
			Match: func(text string) bool {
				return ContainsAny(text, r.DraftTerms) && anyEntity(text)
			},
			Outcome: models.QueryTypeHybrid,
		},
		{
			Name:    "knowledge_keyword",
			Match:   func(text string) bool { return ContainsAny(text, r.KnowledgeKeywords) },
			Outcome: models.QueryTypeKnowledgeBase,
		},
		{
			Name: "workflow_mention",
			Match: func(text string) bool {
				return anyEntity(text) || ContainsAny(text, r.GenericEntityTokens)
			},
			Outcome: models.QueryTypeWorkflowRead,
		},
	}}
}

// Classify returns the intent of text. It never returns an empty QueryType.
func (c *Classifier) Classify(text string) models.QueryType {
	qt, _ := c.Explain(text)
	return qt
}

// Explain is Classify plus the name of the rule that decided, or "default"
// when no rule matched.
func (c *Classifier) Explain(text string) (models.QueryType, string) {
	normalized := normalize(text)
	for _, rule := range c.rules {
		if rule.Match(normalized) {
			return rule.Outcome, rule.Name
		}
	}
	return models.QueryTypeKnowledgeBase, "default"
}

// Rules returns the rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, rule := range c.rules {
		names[i] = rule.Name
	}
	return names
}
