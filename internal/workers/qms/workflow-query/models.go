package workflowquery

import "qms-workers/internal/models"

type Input struct {
	Query     string `json:"query"`
	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Output is the workflow envelope as process variables.
type Output struct {
	Success   bool          `json:"success"`
	Action    models.Action `json:"action,omitempty"`
	Result    interface{}   `json:"result"`
	Message   string        `json:"message"`
	Error     string        `json:"error,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

func outputFrom(res *models.WorkflowResult, requestID string) *Output {
	return &Output{
		Success:   res.Success,
		Action:    res.Action,
		Result:    res.Result,
		Message:   res.Message,
		Error:     res.Error,
		RequestID: requestID,
	}
}
