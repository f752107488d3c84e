package audit

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	sdk "github.com/segmentio/kafka-go"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// KafkaSinkParams configures a KafkaSink.
type KafkaSinkParams struct {
	// Required
	Brokers []string
	Topic   string
}

// ValidateKafkaParams ensures the required params are set.
func ValidateKafkaParams(p KafkaSinkParams) error {
	if len(p.Brokers) == 0 {
		return fmt.Errorf("%w: kafka brokers are required", types.ErrInvalidData)
	}
	if p.Topic == "" {
		return fmt.Errorf("%w: kafka topic is required", types.ErrInvalidData)
	}
	return nil
}

// KafkaSink delivers audit records to a Kafka topic, keyed by record ID so
// redelivered records stay deduplicatable downstream.
type KafkaSink struct {
	writer *sdk.Writer
}

var _ types.AuditSink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(params KafkaSinkParams) (*KafkaSink, error) {
	if err := ValidateKafkaParams(params); err != nil {
		return nil, err
	}
	writer := &sdk.Writer{
		Addr:         sdk.TCP(params.Brokers...),
		Topic:        params.Topic,
		RequiredAcks: sdk.RequireAll,
		Balancer:     &sdk.LeastBytes{},
	}
	return &KafkaSink{writer: writer}, nil
}

// Emit serializes the record and writes one message.
func (s *KafkaSink) Emit(ctx context.Context, rec types.AuditRecord) error {
	serialized, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, sdk.Message{
		Key:   []byte(rec.AuditID),
		Value: serialized,
	}); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
