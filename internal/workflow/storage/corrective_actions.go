package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qms-workers/internal/common/errors"
	"qms-workers/internal/models"
)

const (
	CorrectiveActionStatusOpen   = "Open"
	CorrectiveActionStatusClosed = "Closed"
)

// CorrectiveAction is a new row of capa_cases.
type CorrectiveAction struct {
	ID               string
	IssueDate        time.Time
	ReportedBy       string
	Department       string
	IssueDescription string
	CorrectiveAction string
	Severity         string
	Status           string
	DueDate          *time.Time
}

// Record maps the case onto capa_cases columns. Analysis fields start empty.
func (c CorrectiveAction) Record() models.Record {
	var due interface{}
	if c.DueDate != nil {
		due = c.DueDate.Format("2006-01-02")
	}
	var action interface{}
	if c.CorrectiveAction != "" {
		action = c.CorrectiveAction
	}
	status := c.Status
	if status == "" {
		status = CorrectiveActionStatusOpen
	}
	return models.Record{
		"capa_id":             c.ID,
		"issue_date":          c.IssueDate.Format("2006-01-02"),
		"reported_by":         c.ReportedBy,
		"department":          c.Department,
		"issue_description":   c.IssueDescription,
		"root_cause":          nil,
		"correction":          nil,
		"corrective_action":   action,
		"preventive_action":   nil,
		"effectiveness_check": nil,
		"due_date":            due,
		"status":              status,
		"severity":            c.Severity,
	}
}

// Analysis holds the root cause fields of a case. Empty fields are left
// unchanged on update.
type Analysis struct {
	RootCause        string
	Correction       string
	CorrectiveAction string
	PreventiveAction string
}

// CorrectiveActions is the capa_cases repository.
type CorrectiveActions struct {
	wh     Warehouse
	schema string
	limit  int
}

func NewCorrectiveActions(wh Warehouse, schema string, limit int) *CorrectiveActions {
	return &CorrectiveActions{wh: wh, schema: schema, limit: limit}
}

func (r *CorrectiveActions) Create(ctx context.Context, ca CorrectiveAction) error {
	return r.wh.Insert(ctx, TableCorrectiveActions, []models.Record{ca.Record()})
}

// UpdateStatus sets the status of one case.
func (r *CorrectiveActions) UpdateStatus(ctx context.Context, id, status string) error {
	table, err := qualify(r.schema, TableCorrectiveActions)
	if err != nil {
		return err
	}
	return r.exec(ctx, id, Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET status = $1, updated_at = now() WHERE capa_id = $2", table),
		Args: []interface{}{status, id},
	})
}

// UpdateAnalysis writes the non-empty analysis fields of one case.
func (r *CorrectiveActions) UpdateAnalysis(ctx context.Context, id string, a Analysis) error {
	table, err := qualify(r.schema, TableCorrectiveActions)
	if err != nil {
		return err
	}

	var sets []string
	var args []interface{}
	for _, f := range []struct {
		column string
		value  string
	}{
		{"root_cause", a.RootCause},
		{"correction", a.Correction},
		{"corrective_action", a.CorrectiveAction},
		{"preventive_action", a.PreventiveAction},
	} {
		if f.value == "" {
			continue
		}
		args = append(args, f.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", f.column, len(args)))
	}
	if len(sets) == 0 {
		return errors.NewInvalidInputError("no analysis fields to update")
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = now() WHERE capa_id = $%d",
		table, strings.Join(sets, ", "), len(args))
	return r.exec(ctx, id, Statement{SQL: query, Args: args})
}

func (r *CorrectiveActions) exec(ctx context.Context, id string, stmt Statement) error {
	n, err := r.wh.Exec(ctx, stmt)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewRecordNotFoundError("corrective action", id)
	}
	return nil
}

// Get returns the case with its actions and approvals in a single query,
// shaped as {case, actions, approvals}. It returns nil when no case matches.
func (r *CorrectiveActions) Get(ctx context.Context, id string) (models.Record, error) {
	cases, err := qualify(r.schema, TableCorrectiveActions)
	if err != nil {
		return nil, err
	}
	actions, err := qualify(r.schema, TableCapaActions)
	if err != nil {
		return nil, err
	}
	approvals, err := qualify(r.schema, TableCapaApprovals)
	if err != nil {
		return nil, err
	}

	rows, err := r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT c.*,
		       COALESCE((SELECT json_agg(a ORDER BY a.due_date NULLS LAST, a.action_id)
		                 FROM %s a WHERE a.capa_id = c.capa_id), '[]') AS actions,
		       COALESCE((SELECT json_agg(p ORDER BY p.approval_id)
		                 FROM %s p WHERE p.capa_id = c.capa_id), '[]') AS approvals
		FROM %s c
		WHERE c.capa_id = $1
		LIMIT 1`, actions, approvals, cases),
		Args: []interface{}{id},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	actionList := decodeRecords(row["actions"])
	approvalList := decodeRecords(row["approvals"])
	delete(row, "actions")
	delete(row, "approvals")

	return models.Record{
		"case":      row,
		"actions":   actionList,
		"approvals": approvalList,
	}, nil
}

// ListOverdue returns unclosed cases past their due date, earliest first,
// with action counts.
func (r *CorrectiveActions) ListOverdue(ctx context.Context) ([]models.Record, error) {
	cases, err := qualify(r.schema, TableCorrectiveActions)
	if err != nil {
		return nil, err
	}
	actions, err := qualify(r.schema, TableCapaActions)
	if err != nil {
		return nil, err
	}

	return r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT c.capa_id, c.status, c.severity, c.due_date,
		       COUNT(a.action_id) AS total_actions,
		       COALESCE(SUM(CASE WHEN a.status = 'Overdue' THEN 1 ELSE 0 END), 0) AS overdue_actions
		FROM %s c
		LEFT JOIN %s a ON a.capa_id = c.capa_id
		WHERE c.status != $1 AND c.due_date < CURRENT_DATE
		GROUP BY c.capa_id, c.status, c.severity, c.due_date
		ORDER BY c.due_date ASC
		LIMIT $2`, cases, actions),
		Args: []interface{}{CorrectiveActionStatusClosed, r.limit},
	})
}

// ListOpen returns unclosed cases by due date.
func (r *CorrectiveActions) ListOpen(ctx context.Context) ([]models.Record, error) {
	cases, err := qualify(r.schema, TableCorrectiveActions)
	if err != nil {
		return nil, err
	}
	return r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT capa_id, issue_date, reported_by, severity, status, due_date
		FROM %s
		WHERE status != $1
		ORDER BY due_date ASC NULLS LAST, capa_id
		LIMIT $2`, cases),
		Args: []interface{}{CorrectiveActionStatusClosed, r.limit},
	})
}

// List returns the most recently created cases.
func (r *CorrectiveActions) List(ctx context.Context) ([]models.Record, error) {
	cases, err := qualify(r.schema, TableCorrectiveActions)
	if err != nil {
		return nil, err
	}
	return r.wh.Query(ctx, Statement{
		SQL: fmt.Sprintf(`
		SELECT capa_id, issue_date, reported_by, severity, status, due_date
		FROM %s
		ORDER BY created_at DESC, capa_id DESC
		LIMIT $1`, cases),
		Args: []interface{}{r.limit},
	})
}
