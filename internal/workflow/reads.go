package workflow

import (
	"context"
	"fmt"
	"strings"

	"qms-workers/internal/common/errors"
	"qms-workers/internal/models"
	"qms-workers/internal/workflow/storage"
)

// read performs exactly one storage query for a read action.
func (d *Dispatcher) read(ctx context.Context, desc models.ActionDescriptor) *models.WorkflowResult {
	action := desc.Action
	if !action.IsRead() {
		return d.unresolved(desc, models.QueryTypeWorkflowRead)
	}

	// Stored ids are canonical upper case.
	id := strings.ToUpper(desc.EntityID)
	if action.RequiresID() && id == "" {
		return d.fail(action, fmt.Sprintf("Please include the %s id, e.g. %s",
			action.Entity().Label(), exampleID(action.Entity())),
			errors.NewMissingIdentifierError(action.Entity().Label()))
	}

	switch action {
	case models.ActionGetChangeRequestStatus:
		rec, err := d.changes.Get(ctx, id)
		if err != nil {
			return d.storageFailure(action, "get_change_request", err)
		}
		if rec == nil {
			return models.Succeeded(action, models.Record{}, fmt.Sprintf("%s %s not found", storage.ChangeRequestPrefix, id))
		}
		return models.Succeeded(action, rec, fmt.Sprintf("%s %s status: %v", storage.ChangeRequestPrefix, id, rec["status"]))

	case models.ActionListChangeRequestsPending:
		return d.list(action, "list_change_requests_pending", "%d DCRs awaiting approval")(d.changes.ListPendingApproval(ctx))

	case models.ActionListChangeRequests:
		return d.list(action, "list_change_requests", "%d DCRs")(d.changes.List(ctx))

	case models.ActionGetCorrectiveActionStatus:
		rec, err := d.capas.Get(ctx, id)
		if err != nil {
			return d.storageFailure(action, "get_corrective_action", err)
		}
		if rec == nil {
			return models.Succeeded(action, models.Record{}, fmt.Sprintf("%s %s not found", storage.CorrectiveActionPrefix, id))
		}
		var status interface{}
		if c, ok := rec["case"].(models.Record); ok {
			status = c["status"]
		}
		actions, _ := rec["actions"].([]models.Record)
		return models.Succeeded(action, rec, fmt.Sprintf("%s %s: %v (%d actions)",
			storage.CorrectiveActionPrefix, id, status, len(actions)))

	case models.ActionListCorrectiveActionsOverdue:
		return d.list(action, "list_corrective_actions_overdue", "%d overdue CAPA items")(d.capas.ListOverdue(ctx))

	case models.ActionListCorrectiveActionsOpen:
		return d.list(action, "list_corrective_actions_open", "%d open CAPAs")(d.capas.ListOpen(ctx))

	case models.ActionListCorrectiveActions:
		return d.list(action, "list_corrective_actions", "%d CAPAs")(d.capas.List(ctx))
	}

	return d.unresolved(desc, models.QueryTypeWorkflowRead)
}

// list wraps a listing result, so each case above stays a single call.
func (d *Dispatcher) list(action models.Action, operation, format string) func([]models.Record, error) *models.WorkflowResult {
	return func(rows []models.Record, err error) *models.WorkflowResult {
		if err != nil {
			return d.storageFailure(action, operation, err)
		}
		if rows == nil {
			rows = []models.Record{}
		}
		return models.Succeeded(action, models.RecordList{Items: rows, Count: len(rows)},
			"Found "+fmt.Sprintf(format, len(rows)))
	}
}

func exampleID(entity models.EntityType) string {
	if entity == models.EntityCorrectiveAction {
		return storage.CorrectiveActionPrefix + "-20250101-1A2B3C4D"
	}
	return storage.ChangeRequestPrefix + "-20250101-1A2B3C4D"
}
