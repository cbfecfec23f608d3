package routing

import "qms-workers/internal/models"

// Resolver turns request text into an ActionDescriptor. Its checks run in
// the same order as the classifier's so that a write intent never resolves
// to a read action and the reverse.
type Resolver struct {
	rules Rules
}

func NewResolver(r Rules) *Resolver {
	return &Resolver{rules: r}
}

// Resolve selects the action, the target entity and the identifiers found
// in text. Action is ActionNone when no action keyword matched; EntityType
// is still filled in when the text names a workflow.
func (r *Resolver) Resolve(text string) models.ActionDescriptor {
	desc := models.ActionDescriptor{
		Emails:   ExtractEmails(text),
		RawQuery: text,
	}
	normalized := normalize(text)
	rules := r.rules

	switch {
	case ContainsAny(normalized, rules.ChangeRequestCreate):
		desc.Action = models.ActionCreateChangeRequest
		desc.EntityType = models.EntityChangeRequest
		return desc

	case ContainsAny(normalized, rules.ChangeRequestUpdate):
		desc.EntityType = models.EntityChangeRequest
		desc.EntityID = ExtractChangeRequestID(text)
		switch {
		case !ContainsAny(normalized, rules.ApprovalTerms):
			desc.Action = models.ActionUpdateChangeRequest
		case desc.EntityID != "":
			desc.Action = models.ActionGetChangeRequestStatus
		default:
			desc.Action = models.ActionListChangeRequestsPending
		}
		return desc

	case ContainsAny(normalized, rules.CorrectiveActionCreate):
		desc.Action = models.ActionCreateCorrectiveAction
		desc.EntityType = models.EntityCorrectiveAction
		return desc

	case ContainsAny(normalized, rules.CorrectiveActionUpdate):
		desc.EntityType = models.EntityCorrectiveAction
		desc.EntityID = ExtractCorrectiveActionID(text)
		switch {
		case !ContainsAny(normalized, rules.ApprovalTerms):
			desc.Action = models.ActionUpdateCorrectiveAction
		case desc.EntityID != "":
			desc.Action = models.ActionGetCorrectiveActionStatus
		default:
			desc.Action = models.ActionListCorrectiveActionsOpen
		}
		return desc
	}

	desc.EntityType, desc.EntityID = r.detectEntity(text, normalized)

	switch {
	case ContainsAny(normalized, rules.ListingVerbs) && ContainsAny(normalized, rules.StatusTerms):
		desc.Action = r.readAction(normalized, desc.EntityType, desc.EntityID)

	case ContainsAny(normalized, rules.OverdueTerms):
		if desc.EntityType == models.EntityChangeRequest {
			desc.Action = r.readAction(normalized, desc.EntityType, desc.EntityID)
		} else {
			desc.Action = models.ActionListCorrectiveActionsOverdue
			desc.EntityType = models.EntityCorrectiveAction
		}

	case ContainsAny(normalized, rules.DraftTerms):
		switch desc.EntityType {
		case models.EntityChangeRequest:
			desc.Action = models.ActionDraftChangeRequestResponse
		case models.EntityCorrectiveAction:
			desc.Action = models.ActionDraftCorrectiveActionResponse
		}

	case ContainsTerm(normalized, "status") || ContainsAny(normalized, rules.PendingTerms),
		ContainsAny(normalized, rules.ListingVerbs),
		desc.EntityID != "":
		desc.Action = r.readAction(normalized, desc.EntityType, desc.EntityID)
	}

	return desc
}

// readAction picks the storage read for an entity: a status lookup when an
// identifier is present, otherwise the most specific listing.
func (r *Resolver) readAction(normalized string, entity models.EntityType, id string) models.Action {
	switch entity {
	case models.EntityChangeRequest:
		switch {
		case id != "":
			return models.ActionGetChangeRequestStatus
		case ContainsAny(normalized, r.rules.PendingTerms):
			return models.ActionListChangeRequestsPending
		default:
			return models.ActionListChangeRequests
		}
	case models.EntityCorrectiveAction:
		switch {
		case id != "":
			return models.ActionGetCorrectiveActionStatus
		case ContainsAny(normalized, r.rules.OverdueTerms):
			return models.ActionListCorrectiveActionsOverdue
		case ContainsTerm(normalized, "open") || ContainsTerm(normalized, "pending"):
			return models.ActionListCorrectiveActionsOpen
		default:
			return models.ActionListCorrectiveActions
		}
	}
	return models.ActionNone
}

// detectEntity picks the workflow named earliest in the text. Identifiers
// start with their workflow token, so "CAPA-..." counts as a corrective
// action mention.
func (r *Resolver) detectEntity(text, normalized string) (models.EntityType, string) {
	cr := firstIndex(normalized, r.rules.ChangeRequestTokens)
	ca := firstIndex(normalized, r.rules.CorrectiveActionTokens)

	switch {
	case cr < 0 && ca < 0:
		return models.EntityNone, ""
	case ca < 0 || (cr >= 0 && cr < ca):
		return models.EntityChangeRequest, ExtractChangeRequestID(text)
	default:
		return models.EntityCorrectiveAction, ExtractCorrectiveActionID(text)
	}
}
