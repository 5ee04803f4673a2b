package redis

import (
	"context"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/usecase"
)

// Publisher fans payloads out through Redis PUBLISH. Delivery is best effort:
// subscribers that are not connected miss the message.
type Publisher struct {
	client  *goRedis.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewPublisher(client *goRedis.Client, timeout time.Duration, logger *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, timeout: timeout, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return err
	}
	p.logger.Debug("published", zap.String("channel", channel), zap.Int64("receivers", receivers))
	return nil
}

var _ usecase.Publisher = (*Publisher)(nil)
