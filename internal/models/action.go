package models

// EntityType names the workflow a request targets.
type EntityType string

const (
	EntityNone             EntityType = ""
	EntityChangeRequest    EntityType = "change_request"
	EntityCorrectiveAction EntityType = "corrective_action"
)

// Label is the human readable name used in messages.
func (e EntityType) Label() string {
	switch e {
	case EntityChangeRequest:
		return "change request"
	case EntityCorrectiveAction:
		return "corrective action"
	}
	return "record"
}

// Action is a concrete workflow operation. The empty Action means the text
// could not be resolved.
type Action string

const (
	ActionNone Action = ""

	ActionCreateChangeRequest          Action = "create_change_request"
	ActionUpdateChangeRequest          Action = "update_change_request"
	ActionGetChangeRequestStatus       Action = "get_change_request_status"
	ActionListChangeRequestsPending    Action = "list_change_requests_pending_approval"
	ActionListChangeRequests           Action = "list_change_requests"
	ActionCreateCorrectiveAction       Action = "create_corrective_action"
	ActionUpdateCorrectiveAction       Action = "update_corrective_action"
	ActionGetCorrectiveActionStatus    Action = "get_corrective_action_status"
	ActionListCorrectiveActionsOverdue Action = "list_corrective_actions_overdue"
	ActionListCorrectiveActionsOpen    Action = "list_corrective_actions_open"
	ActionListCorrectiveActions        Action = "list_corrective_actions"

	ActionAnswerKnowledgeQuery          Action = "answer_knowledge_query"
	ActionDraftChangeRequestResponse    Action = "draft_change_request_response"
	ActionDraftCorrectiveActionResponse Action = "draft_corrective_action_response"
)

type actionInfo struct {
	entity EntityType
	write  bool
	needID bool
}

var workflowActions = map[Action]actionInfo{
	ActionCreateChangeRequest:          {EntityChangeRequest, true, false},
	ActionUpdateChangeRequest:          {EntityChangeRequest, true, true},
	ActionGetChangeRequestStatus:       {EntityChangeRequest, false, true},
	ActionListChangeRequestsPending:    {EntityChangeRequest, false, false},
	ActionListChangeRequests:           {EntityChangeRequest, false, false},
	ActionCreateCorrectiveAction:       {EntityCorrectiveAction, true, false},
	ActionUpdateCorrectiveAction:       {EntityCorrectiveAction, true, true},
	ActionGetCorrectiveActionStatus:    {EntityCorrectiveAction, false, true},
	ActionListCorrectiveActionsOverdue: {EntityCorrectiveAction, false, false},
	ActionListCorrectiveActionsOpen:    {EntityCorrectiveAction, false, false},
	ActionListCorrectiveActions:        {EntityCorrectiveAction, false, false},
}

// IsWorkflow reports whether a is one of the storage-backed actions.
func (a Action) IsWorkflow() bool {
	_, ok := workflowActions[a]
	return ok
}

// IsWrite reports whether a performs a durable write.
func (a Action) IsWrite() bool {
	return workflowActions[a].write
}

// IsRead reports whether a is a storage read.
func (a Action) IsRead() bool {
	info, ok := workflowActions[a]
	return ok && !info.write
}

// RequiresID reports whether a targets a single existing record.
func (a Action) RequiresID() bool {
	return workflowActions[a].needID
}

// Entity returns the workflow a belongs to.
func (a Action) Entity() EntityType {
	return workflowActions[a].entity
}

// ActionDescriptor is the resolved operation plus the identifiers extracted
// from the text. EntityID keeps the casing used in the text.
type ActionDescriptor struct {
	Action     Action     `json:"action"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId,omitempty"`
	Emails     []string   `json:"emails"`
	RawQuery   string     `json:"rawQuery"`
}

// Resolved reports whether an action was found.
func (d ActionDescriptor) Resolved() bool {
	return d.Action != ActionNone
}
