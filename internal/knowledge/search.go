package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"qms-workers/internal/common/logger"
)

var ErrEmptyQuery = errors.New("query cannot be empty")

const snippetRunes = 500

// Chunk is one retrieved passage of a QMS document.
type Chunk struct {
	Title   string
	URL     string
	Page    *int
	Snippet string
	Score   float64
}

// Searcher retrieves passages relevant to a question, best match first.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Chunk, error)
}

// ElasticSearcher searches a document index with a weighted multi_match.
type ElasticSearcher struct {
	client *elasticsearch.Client
	index  string
	size   int
}

func NewElasticSearcher(client *elasticsearch.Client, index string, size int) *ElasticSearcher {
	if size <= 0 {
		size = 5
	}
	return &ElasticSearcher{client: client, index: index, size: size}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Page    *int   `json:"page"`
				Content string `json:"content"`
			} `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticSearcher) Search(ctx context.Context, query string) ([]Chunk, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "content"},
				"type":   "best_fields",
			},
		},
		"_source": []string{"title", "url", "page", "content"},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"content": map[string]interface{}{
					"fragment_size":       300,
					"number_of_fragments": 1,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	size := s.size
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s failed: %s", s.index, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	chunks := make([]Chunk, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		snippet := logger.Truncate(hit.Source.Content, snippetRunes)
		if frags := hit.Highlight["content"]; len(frags) > 0 {
			snippet = frags[0]
		}
		chunks = append(chunks, Chunk{
			Title:   hit.Source.Title,
			URL:     hit.Source.URL,
			Page:    hit.Source.Page,
			Snippet: snippet,
			Score:   hit.Score,
		})
	}
	return chunks, nil
}
