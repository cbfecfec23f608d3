package workflow

import (
	"context"
	"fmt"
	"strings"

	"qms-workers/internal/common/errors"
	"qms-workers/internal/models"
	"qms-workers/internal/notify"
	"qms-workers/internal/workflow/storage"
)

// hybrid drafts a response from the knowledge base and then writes it:
// into the referenced record when the text carries an id, otherwise into a
// new record of the mentioned workflow. Nothing is written unless the answer
// cites at least one document.
func (d *Dispatcher) hybrid(ctx context.Context, desc models.ActionDescriptor, actor string) *models.WorkflowResult {
	action := desc.Action
	if action != models.ActionDraftChangeRequestResponse && action != models.ActionDraftCorrectiveActionResponse {
		return d.unresolved(desc, models.QueryTypeHybrid)
	}

	ans, err := d.ask(ctx, desc.RawQuery)
	if err != nil {
		return d.knowledgeFailure(action, err)
	}
	if !ans.Grounded() {
		return d.fail(action, "No supporting documentation was found, so nothing was drafted",
			errors.NewResourceNotFoundError("knowledge base", "answer has no citations"))
	}

	// Stored ids are canonical upper case.
	id := strings.ToUpper(desc.EntityID)
	outcome := models.DraftOutcome{Answer: ans.Text, Citations: ans.Citations}
	ev := notify.Event{Action: action, Actor: actor}
	var message string

	switch {
	case action == models.ActionDraftChangeRequestResponse && id != "":
		if err := d.changes.UpdateReason(ctx, id, ans.Text); err != nil {
			return d.storageFailure(action, "draft_change_request_reason", err)
		}
		outcome.Record = models.UpdatedRecord{ID: id, EntityType: models.EntityChangeRequest, Field: "reason"}
		message = fmt.Sprintf("Drafted response into DCR %s", id)
		ev.Type, ev.EntityType, ev.EntityID = notify.EventUpdated, models.EntityChangeRequest, id

	case action == models.ActionDraftChangeRequestResponse:
		cr := d.newChangeRequest(desc.RawQuery, actor)
		cr.Reason = ans.Text
		if err := d.changes.Create(ctx, cr); err != nil {
			return d.storageFailure(action, "draft_change_request_create", err)
		}
		outcome.Record = models.CreatedRecord{ID: cr.ID, EntityType: models.EntityChangeRequest, Status: cr.Status}
		message = fmt.Sprintf("Drafted response and created DCR: %s", cr.ID)
		ev.Type, ev.EntityType, ev.EntityID, ev.Status = notify.EventCreated, models.EntityChangeRequest, cr.ID, cr.Status
		ev.Recipients = desc.Emails

	case id != "":
		if err := d.capas.UpdateAnalysis(ctx, id, storage.Analysis{CorrectiveAction: ans.Text}); err != nil {
			return d.storageFailure(action, "draft_corrective_action_analysis", err)
		}
		outcome.Record = models.UpdatedRecord{ID: id, EntityType: models.EntityCorrectiveAction, Field: "corrective_action"}
		message = fmt.Sprintf("Drafted response into CAPA %s", id)
		ev.Type, ev.EntityType, ev.EntityID = notify.EventUpdated, models.EntityCorrectiveAction, id

	default:
		ca := d.newCorrectiveAction(desc.RawQuery, actor)
		ca.CorrectiveAction = ans.Text
		if err := d.capas.Create(ctx, ca); err != nil {
			return d.storageFailure(action, "draft_corrective_action_create", err)
		}
		outcome.Record = models.CreatedRecord{ID: ca.ID, EntityType: models.EntityCorrectiveAction, Status: ca.Status}
		message = fmt.Sprintf("Drafted response and created CAPA: %s", ca.ID)
		ev.Type, ev.EntityType, ev.EntityID, ev.Status = notify.EventCreated, models.EntityCorrectiveAction, ca.ID, ca.Status
		ev.Recipients = desc.Emails
	}

	ev.Summary = message
	d.publish(ctx, ev)
	return models.Succeeded(action, outcome, message)
}
