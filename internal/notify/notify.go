package notify

import (
	"context"
	"encoding/json"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/okarpov/imgpress/internal/config"
	"github.com/okarpov/imgpress/internal/model"
)

// Event is published once per item that reaches a terminal status.
type Event struct {
	ID         string       `json:"id"`
	Filename   string       `json:"filename"`
	Status     model.Status `json:"status"`
	ResultSize int64        `json:"result_size,omitempty"`
	FailReason string       `json:"fail_reason,omitempty"`
}

// Kafka publishes per-item completion events to a Kafka topic.
// Publish failures are logged and swallowed: eventing must never leak
// into the conversion outcome of an item.
type Kafka struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
}

// NewKafka creates a producer for the configured brokers and topic.
func NewKafka(cfg *config.Kafka, s retry.Strategy) *Kafka {
	return &Kafka{
		Client:   wbfkafka.NewProducer(cfg.Brokers, cfg.Topic),
		strategy: s,
	}
}

// ItemFinished serializes the item's terminal state and sends it with
// retries. The item ID is used as the message key for partitioning.
func (k *Kafka) ItemFinished(ctx context.Context, item model.Item) {
	data, err := json.Marshal(Event{
		ID:         item.ID.String(),
		Filename:   item.Filename,
		Status:     item.Status,
		ResultSize: item.ResultSize,
		FailReason: item.FailReason,
	})
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to marshal completion event")
		return
	}

	key := []byte(item.ID.String())

	if err := k.Client.SendWithRetry(ctx, k.strategy, key, data); err != nil {
		zlog.Logger.Err(err).
			Str("item", item.ID.String()).
			Msg("failed to publish completion event")
	}
}

// Close releases the underlying Kafka client.
func (k *Kafka) Close() error {
	return k.Client.Close()
}

// Nop is the notifier used when eventing is disabled.
type Nop struct{}

// ItemFinished does nothing.
func (Nop) ItemFinished(context.Context, model.Item) {}
