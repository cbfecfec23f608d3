package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qms-workers/internal/common/errors"
	"qms-workers/internal/models"
)

const (
	ChangeRequestStatusDraft    = "Draft"
	ChangeRequestStatusInReview = "In Review"
)

// ChangeRequest is a new row of dcr_requests.
type ChangeRequest struct {
	ID                   string
	RequestDate          time.Time
	Requester            string
	Department           string
	ChangeType           string
	Reason               string
	Description          string
	AffectedProcess      string
	Priority             string
	Status               string
	TargetCompletionDate *time.Time
}

// Record maps the change request onto dcr_requests columns.
func (c ChangeRequest) Record() models.Record {
	var target interface{}
	if c.TargetCompletionDate != nil {
		target = c.TargetCompletionDate.Format("2006-01-02")
	}
	status := c.Status
	if status == "" {
		status = ChangeRequestStatusDraft
	}
	return models.Record{
		"dcr_id":                 c.ID,
		"request_date":           c.RequestDate.Format("2006-01-02"),
		"requester":              c.Requester,
		"department":             c.Department,
		"change_type":            c.ChangeType,
		"reason":                 c.Reason,
		"description":            c.Description,
		"affected_process":       c.AffectedProcess,
		"priority":               c.Priority,
		"status":                 status,
		"target_completion_date": target,
	}
}

// ChangeRequests is the dcr_requests repository.
type ChangeRequests struct {
	wh     Warehouse
	schema string
	limit  int
}

// NewChangeRequests binds the repository to a warehouse schema. limit caps
// every listing.
func NewChangeRequests(wh Warehouse, schema string, limit int) *ChangeRequests {
	return &ChangeRequests{wh: wh, schema: schema, limit: limit}
}

func (r *ChangeRequests) Create(ctx context.Context, cr ChangeRequest) error {
	return r.wh.Insert(ctx, TableChangeRequests, []models.Record{cr.Record()})
}

// UpdateStatus sets the workflow status of one change request.
func (r *ChangeRequests) UpdateStatus(ctx context.Context, id, status string) error {
	return r.updateColumn(ctx, id, "status", status)
}

// UpdateReason replaces the justification text of one change request.
func (r *ChangeRequests) UpdateReason(ctx context.Context, id, reason string) error {
	return r.updateColumn(ctx, id, "reason", reason)
}

func (r *ChangeRequests) updateColumn(ctx context.Context, id, column, value string) error {
	table, err := qualify(r.schema, TableChangeRequests)
	if err != nil {
		return err
	}
	n, err := r.wh.Exec(ctx, Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET %s = $1, updated_at = now() WHERE dcr_id = $2", table, column),
		Args: []interface{}{value, id},
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewRecordNotFoundError("change request", id)
	}
	return nil
}

// Get returns the change request with its approvals, or nil when no row
// matches.
func (r *ChangeRequests) Get(ctx context.Context, id string) (models.Record, error) {
	requests, err := qualify(r.schema, TableChangeRequests)
	if err != nil {
		return nil, err
	}
	approvals, err := qualify(r.schema, TableChangeApprovals)
	if err != nil {
		return nil, err
	}

	rows, err := r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT d.*,
		       COALESCE((SELECT json_agg(a ORDER BY a.approval_id)
		                 FROM %s a WHERE a.dcr_id = d.dcr_id), '[]') AS approvals
		FROM %s d
		WHERE d.dcr_id = $1
		LIMIT 1`, approvals, requests),
		Args: []interface{}{id},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0]
	rec["approvals"] = decodeRecords(rec["approvals"])
	return rec, nil
}

// ListPendingApproval returns drafts and change requests in review, newest
// identifier first, with approval counts.
func (r *ChangeRequests) ListPendingApproval(ctx context.Context) ([]models.Record, error) {
	requests, err := qualify(r.schema, TableChangeRequests)
	if err != nil {
		return nil, err
	}
	approvals, err := qualify(r.schema, TableChangeApprovals)
	if err != nil {
		return nil, err
	}

	return r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT d.dcr_id, d.status, d.priority, d.requester,
		       COUNT(a.approval_id) AS total_approvals,
		       COALESCE(SUM(CASE WHEN a.approval_status = 'Pending' THEN 1 ELSE 0 END), 0) AS pending_approvals
		FROM %s d
		LEFT JOIN %s a ON a.dcr_id = d.dcr_id
		WHERE d.status IN ($1, $2)
		GROUP BY d.dcr_id, d.status, d.priority, d.requester
		ORDER BY d.dcr_id DESC
		LIMIT $3`, requests, approvals),
		Args: []interface{}{ChangeRequestStatusInReview, ChangeRequestStatusDraft, r.limit},
	})
}

// List returns the most recently created change requests.
func (r *ChangeRequests) List(ctx context.Context) ([]models.Record, error) {
	requests, err := qualify(r.schema, TableChangeRequests)
	if err != nil {
		return nil, err
	}
	return r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT dcr_id, request_date, requester, department, priority, status
		FROM %s
		ORDER BY created_at DESC, dcr_id DESC
		LIMIT $1`, requests),
		Args: []interface{}{r.limit},
	})
}

// decodeRecords turns a json_agg column into records. Anything that is not a
// JSON array of objects yields an empty slice.
func decodeRecords(v interface{}) []models.Record {
	out := make([]models.Record, 0)
	var raw []byte
	switch val := v.(type) {
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	case []models.Record:
		return val
	default:
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return make([]models.Record, 0)
	}
	return out
}
