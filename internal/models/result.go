package models

// Record is a row returned by the warehouse, keyed by column name.
type Record map[string]interface{}

// WorkflowResult is the envelope every dispatched request produces.
type WorkflowResult struct {
	Success bool        `json:"success"`
	Action  Action      `json:"action,omitempty"`
	Result  interface{} `json:"result"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// Succeeded builds a success envelope.
func Succeeded(action Action, result interface{}, message string) *WorkflowResult {
	return &WorkflowResult{Success: true, Action: action, Result: result, Message: message}
}

// Failed builds a failure envelope with an empty result. errMsg must already
// be safe to show.
func Failed(action Action, message, errMsg string) *WorkflowResult {
	return &WorkflowResult{Success: false, Action: action, Result: Record{}, Message: message, Error: errMsg}
}

// CreatedRecord is the result of a create action.
type CreatedRecord struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entityType"`
	Status     string     `json:"status"`
}

// UpdatedRecord is the result of an update action.
type UpdatedRecord struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entityType"`
	Status     string     `json:"status,omitempty"`
	Field      string     `json:"field,omitempty"`
}

// RecordList is the result of a listing action.
type RecordList struct {
	Items []Record `json:"items"`
	Count int      `json:"count"`
}

// Citation points at a source document behind an answer.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Page  *int   `json:"page"`
}

// KnowledgeAnswer is the result of a knowledge query.
type KnowledgeAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// DraftOutcome is the result of a hybrid request: the grounded answer and the
// record it was written to.
type DraftOutcome struct {
	Answer    string      `json:"answer"`
	Citations []Citation  `json:"citations"`
	Record    interface{} `json:"record"`
}
