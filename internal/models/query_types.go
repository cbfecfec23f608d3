package models

// QueryType is the coarse intent of a request.
type QueryType string

const (
	QueryTypeKnowledgeBase QueryType = "knowledge_base"
	QueryTypeWorkflowRead  QueryType = "workflow_read"
	QueryTypeWorkflowWrite QueryType = "workflow_write"
	QueryTypeHybrid        QueryType = "hybrid"
)

// Valid reports whether q is one of the four known intents.
func (q QueryType) Valid() bool {
	switch q {
	case QueryTypeKnowledgeBase, QueryTypeWorkflowRead, QueryTypeWorkflowWrite, QueryTypeHybrid:
		return true
	}
	return false
}

func (q QueryType) String() string {
	return string(q)
}
