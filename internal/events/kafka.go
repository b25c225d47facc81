package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror forwards events to a Kafka topic as JSON keyed by event name.
type KafkaMirror struct {
	writer  messageWriter
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewKafkaMirror(brokers []string, topic string, logger logrus.FieldLogger) (*KafkaMirror, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka mirror: brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaMirror(w, logger), nil
}

func newKafkaMirror(w messageWriter, logger logrus.FieldLogger) *KafkaMirror {
	if logger == nil {
		logger = logrus.WithField("component", "kafka")
	}
	return &KafkaMirror{writer: w, timeout: 10 * time.Second, log: logger}
}

func (m *KafkaMirror) Forward(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Name, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(ev.Name), Value: value, Time: time.Now()}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Name, err)
	}
	m.log.WithField("event", ev.Name).Debug("Kafka: event mirrored")
	return nil
}

func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
