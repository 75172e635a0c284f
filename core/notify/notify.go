/*Package notify provides resource lifecycle notifiers.

A notifier receives one event per successful create, update or delete,
carrying the resource pathname, the operation and the record's fields as
JSON. Notification delivery is fire-and-forget; it never affects the
outcome of the request that triggered it.
*/
package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cantal-tech/jsonapi/core"
	"github.com/cantal-tech/jsonapi/core/logger"
)

// LogNotifier writes notifications to the default logger. Useful for
// development and as the fallback when no broker is configured.
type LogNotifier struct{}

// Notify implements core.Notifier.
func (LogNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	logger.Default().WithField("resource", resource).
		WithField("operation", string(operation)).
		Infoln("notification:", string(payload))
}

// KafkaNotifier publishes notifications to a kafka topic. The message key
// is "<resource> <operation>", so consumers can filter and partitioning
// keeps per-resource ordering.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier publishing to the given brokers and
// topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Notify implements core.Notifier. Delivery failures are logged and
// dropped.
func (n *KafkaNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(resource + " " + string(operation)),
		Value: payload,
	})
	if err != nil {
		logger.Default().WithError(err).Errorln("notification lost:", resource, operation)
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
