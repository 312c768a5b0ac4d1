package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisKeyPrefix prefixes the keys RedisSender writes.
const RedisKeyPrefix = "mockemail:"

// MockEmailTTL is how long a captured message stays in Redis.
const MockEmailTTL = 5 * time.Minute

// RedisSender stores messages in Redis instead of delivering them, so
// end-to-end tests can read what would have been sent. Enabled with
// MOCK_SERVICES=true.
type RedisSender struct {
	client *redis.Client
	from   string
	logger *zap.Logger
}

// StoredEmail is the JSON value RedisSender writes.
type StoredEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Kind    string `json:"kind"`
	SentAt  string `json:"sent_at"`
}

// NewRedisSender creates a RedisSender.
func NewRedisSender(client *redis.Client, from string, logger *zap.Logger) *RedisSender {
	return &RedisSender{client: client, from: from, logger: logger}
}

// MessageKind classifies a message by its subject.
func MessageKind(subject string) string {
	if strings.HasPrefix(subject, "Interés en tu anuncio") {
		return "interes"
	}
	return "general"
}

// RedisKey is the key a message to recipient of the given kind is stored at.
func RedisKey(recipient, kind string) string {
	return RedisKeyPrefix + strings.ToLower(recipient) + ":" + kind
}

func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	primaryTo := ""
	if len(msg.To) > 0 {
		primaryTo = msg.To[0]
	}
	kind := MessageKind(msg.Subject)

	data, err := json.Marshal(StoredEmail{
		To:      strings.Join(msg.To, ", "),
		From:    s.from,
		Subject: msg.Subject,
		Body:    msg.Body,
		Kind:    kind,
		SentAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := RedisKey(primaryTo, kind)
	if err := s.client.Set(ctx, key, data, MockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}
	s.logger.Info("Mock email stored in Redis", zap.String("key", key), zap.String("subject", msg.Subject))
	return nil
}
