package knowledgequery

import "qms-workers/internal/models"

type Input struct {
	Question string `json:"question"`
}

type Output struct {
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
	Grounded  bool              `json:"grounded"`
}
