// Package events publishes control-plane and login events to Kafka. Messages
// are keyed by user bucket so one user's events land on one partition.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"mycore-gateway/internal/bucketing"
	"mycore-gateway/internal/client"
	"mycore-gateway/internal/config"
	"mycore-gateway/internal/model"
)

type Publisher struct {
	producer *client.KafkaProducer
	buckets  *bucketing.BucketingManager
	cfg      *config.KafkaConfig
}

var _ model.EventPublisher = (*Publisher)(nil)

func NewPublisher(producer *client.KafkaProducer, buckets *bucketing.BucketingManager, cfg *config.KafkaConfig) *Publisher {
	return &Publisher{
		producer: producer,
		buckets:  buckets,
		cfg:      cfg,
	}
}

// PublishAdminEvent emits one audit record per control-plane mutation.
// Without a producer (broker unavailable at startup) events are dropped.
func (p *Publisher) PublishAdminEvent(ctx context.Context, event *model.AdminEvent) error {
	if p.producer == nil {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal admin event: %w", err)
	}

	key := bucketKey(p.buckets.GetEventBucket(event.Action))
	if event.UserID != "" {
		key = bucketKey(p.buckets.GetUserBucket(event.UserID))
	}

	return p.producer.ProduceMessage(ctx, p.cfg.AuditTopic, key, value, map[string]string{
		"action": event.Action,
		"date":   p.buckets.GetDateBucket(),
	})
}

// PublishLogin emits one event per recorded login.
func (p *Publisher) PublishLogin(ctx context.Context, entry *model.LoginLog) error {
	if p.producer == nil {
		return nil
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal login event: %w", err)
	}

	// The date header lets consumers route records into daily archives
	// without parsing the payload.
	return p.producer.ProduceMessage(ctx, p.cfg.LoginTopic,
		bucketKey(entry.UserBucket), value, map[string]string{
			"date": p.buckets.GetDateBucket(),
		})
}

func bucketKey(bucket int) []byte {
	return []byte(strconv.Itoa(bucket))
}
