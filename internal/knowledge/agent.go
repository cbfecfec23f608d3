// Package knowledge answers regulatory and procedural questions from the QMS
// document index.
package knowledge

import (
	"context"
	"strings"

	"qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/metrics"
	"qms-workers/internal/models"
)

// NotFoundAnswer is returned, with no citations, when retrieval finds nothing.
const NotFoundAnswer = "I could not find any relevant procedures or documents in the QMS knowledge base for this query."

// Agent runs retrieval then reasoning, with an optional answer cache.
type Agent struct {
	searcher Searcher
	reasoner Reasoner
	cache    *Cache
	logger   logger.Logger
}

// NewAgent wires the agent. cache may be nil.
func NewAgent(searcher Searcher, reasoner Reasoner, cache *Cache, log logger.Logger) *Agent {
	return &Agent{
		searcher: searcher,
		reasoner: reasoner,
		cache:    cache,
		logger:   log.WithFields(map[string]interface{}{"component": "knowledge"}),
	}
}

// Answer retrieves supporting passages for question and asks the reasoner
// to answer from them. An empty retrieval is not an error: it yields
// NotFoundAnswer and no citations.
func (a *Agent) Answer(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewInvalidInputError("question is required")
	}

	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, question)
		switch {
		case err != nil:
			metrics.KnowledgeCache.WithLabelValues("error").Inc()
			a.logger.Warn("answer cache read failed", map[string]interface{}{"error": err})
		case ok:
			metrics.KnowledgeCache.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.KnowledgeCache.WithLabelValues("miss").Inc()
		}
	}

	chunks, err := a.searcher.Search(ctx, question)
	if err != nil {
		return nil, errors.NewKnowledgeRetrievalFailedError(err)
	}
	if len(chunks) == 0 {
		a.logger.Info("no documents matched", map[string]interface{}{
			"question": logger.Truncate(question, 120),
		})
		return &Answer{Text: NotFoundAnswer, Citations: []models.Citation{}}, nil
	}

	ans, err := a.reasoner.Reason(ctx, question, chunks)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = errors.NewReasoningFailedError(err)
		}
		return nil, err
	}

	a.logger.Info("answer generated", map[string]interface{}{
		"sources":   len(chunks),
		"citations": len(ans.Citations),
	})

	if a.cache != nil {
		if err := a.cache.Set(ctx, question, ans); err != nil {
			a.logger.Warn("answer cache write failed", map[string]interface{}{"error": err})
		}
	}
	return ans, nil
}
