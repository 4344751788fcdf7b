package loginlog

import (
	"context"
	"fmt"
	"strconv"

	"mycore-gateway/internal/client"
	"mycore-gateway/internal/config"
	"mycore-gateway/internal/model"
)

// Indexer mirrors login records into Elasticsearch so the admin panel can
// search them by email, IP, or user id.
type Indexer struct {
	es    *client.ESClient
	index string
}

var _ model.LoginIndexer = (*Indexer)(nil)

func NewIndexer(es *client.ESClient, cfg *config.ElasticsearchConfig) *Indexer {
	return &Indexer{es: es, index: cfg.LoginIndex}
}

func (i *Indexer) Index(ctx context.Context, entry *model.LoginLog) error {
	res, err := i.es.IndexDocument(ctx, i.index, entry.ID,
		strconv.Itoa(entry.UserBucket), entry)
	if err != nil {
		return fmt.Errorf("failed to index login log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index login log: %s", res.Status())
	}
	return nil
}

// esSearchResult is the slice of the ES response we care about.
type esSearchResult struct {
	Hits struct {
		Hits []struct {
			Source model.LoginLog `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (i *Indexer) Search(ctx context.Context, query string, limit int) ([]model.LoginLog, error) {
	if limit <= 0 {
		limit = 50
	}

	body := map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"createdAt": map[string]string{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"userId", "email", "ipAddress", "deviceType"},
			},
		},
	}

	res, err := i.es.Search(ctx, i.index, body)
	if err != nil {
		return nil, fmt.Errorf("failed to search login logs: %w", err)
	}

	var result esSearchResult
	if err := i.es.ParseResponse(res, &result); err != nil {
		return nil, err
	}

	logs := make([]model.LoginLog, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		logs = append(logs, hit.Source)
	}
	return logs, nil
}
