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

// write performs exactly one durable write for a write action.
func (d *Dispatcher) write(ctx context.Context, desc models.ActionDescriptor, actor string) *models.WorkflowResult {
	action := desc.Action
	if !action.IsWrite() {
		return d.unresolved(desc, models.QueryTypeWorkflowWrite)
	}

	// Stored ids are canonical upper case.
	id := strings.ToUpper(desc.EntityID)
	if action.RequiresID() && id == "" {
		return d.fail(action, fmt.Sprintf("Please include the %s id, e.g. %s",
			action.Entity().Label(), exampleID(action.Entity())),
			errors.NewMissingIdentifierError(action.Entity().Label()))
	}

	switch action {
	case models.ActionCreateChangeRequest:
		cr := d.newChangeRequest(desc.RawQuery, actor)
		if err := d.changes.Create(ctx, cr); err != nil {
			return d.storageFailure(action, "create_change_request", err)
		}
		message := fmt.Sprintf("Created DCR: %s. Next: Add documents and route for approval.", cr.ID)
		d.publish(ctx, notify.Event{
			Type: notify.EventCreated, Action: action, EntityType: models.EntityChangeRequest,
			EntityID: cr.ID, Status: cr.Status, Actor: actor, Recipients: desc.Emails, Summary: message,
		})
		return models.Succeeded(action, models.CreatedRecord{
			ID:         cr.ID,
			EntityType: models.EntityChangeRequest,
			Status:     cr.Status,
		}, message)

	case models.ActionUpdateChangeRequest:
		status := d.rules.ChangeRequestStatus(desc.RawQuery)
		if err := d.changes.UpdateStatus(ctx, id, status); err != nil {
			return d.storageFailure(action, "update_change_request", err)
		}
		message := fmt.Sprintf("Updated DCR %s status to '%s'", id, status)
		d.publish(ctx, notify.Event{
			Type: notify.EventUpdated, Action: action, EntityType: models.EntityChangeRequest,
			EntityID: id, Status: status, Actor: actor, Summary: message,
		})
		return models.Succeeded(action, models.UpdatedRecord{
			ID:         id,
			EntityType: models.EntityChangeRequest,
			Status:     status,
		}, message)

	case models.ActionCreateCorrectiveAction:
		ca := d.newCorrectiveAction(desc.RawQuery, actor)
		if err := d.capas.Create(ctx, ca); err != nil {
			return d.storageFailure(action, "create_corrective_action", err)
		}
		message := fmt.Sprintf("Created CAPA: %s. Next: Add root cause analysis and actions.", ca.ID)
		d.publish(ctx, notify.Event{
			Type: notify.EventCreated, Action: action, EntityType: models.EntityCorrectiveAction,
			EntityID: ca.ID, Status: ca.Status, Actor: actor, Recipients: desc.Emails, Summary: message,
		})
		return models.Succeeded(action, models.CreatedRecord{
			ID:         ca.ID,
			EntityType: models.EntityCorrectiveAction,
			Status:     ca.Status,
		}, message)

	case models.ActionUpdateCorrectiveAction:
		status := d.rules.CorrectiveActionStatus(desc.RawQuery)
		if err := d.capas.UpdateStatus(ctx, id, status); err != nil {
			return d.storageFailure(action, "update_corrective_action", err)
		}
		message := fmt.Sprintf("Updated CAPA %s status to '%s'", id, status)
		d.publish(ctx, notify.Event{
			Type: notify.EventUpdated, Action: action, EntityType: models.EntityCorrectiveAction,
			EntityID: id, Status: status, Actor: actor, Summary: message,
		})
		return models.Succeeded(action, models.UpdatedRecord{
			ID:         id,
			EntityType: models.EntityCorrectiveAction,
			Status:     status,
		}, message)
	}

	return d.unresolved(desc, models.QueryTypeWorkflowWrite)
}

// newChangeRequest synthesises a draft change request. The request text is
// kept verbatim as the description.
func (d *Dispatcher) newChangeRequest(text, actor string) storage.ChangeRequest {
	return storage.ChangeRequest{
		ID:              d.ids.New(storage.ChangeRequestPrefix),
		RequestDate:     d.now(),
		Requester:       actor,
		Department:      d.defaults.Department,
		ChangeType:      d.defaults.ChangeType,
		Reason:          d.defaults.Reason,
		Description:     text,
		AffectedProcess: d.defaults.AffectedProcess,
		Priority:        d.rules.Priority(text, d.defaults.Priority),
		Status:          storage.ChangeRequestStatusDraft,
	}
}

// newCorrectiveAction synthesises an open case due DueDays from today.
func (d *Dispatcher) newCorrectiveAction(text, actor string) storage.CorrectiveAction {
	now := d.now()
	ca := storage.CorrectiveAction{
		ID:               d.ids.New(storage.CorrectiveActionPrefix),
		IssueDate:        now,
		ReportedBy:       actor,
		Department:       d.defaults.Department,
		IssueDescription: text,
		Severity:         d.rules.Severity(text, d.defaults.Severity),
		Status:           storage.CorrectiveActionStatusOpen,
	}
	if d.defaults.DueDays > 0 {
		due := now.AddDate(0, 0, d.defaults.DueDays)
		ca.DueDate = &due
	}
	return ca
}
