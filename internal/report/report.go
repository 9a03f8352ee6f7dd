package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"gfimx/internal/logging"
	"gfimx/internal/scan"
)

// LogReporter writes every change to a logger at info level.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter returns a reporter logging through logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogReporter{logger: logging.NewComponentLogger(logger, "report")}
}

func (r *LogReporter) Report(_ context.Context, c scan.Change) error {
	attrs := []logging.Attr{
		logging.String("kind", string(c.Kind)),
		logging.Path(c.Identity),
		logging.String("hash", c.New.Hash),
		logging.ScanID(c.ScanID),
		logging.Target(c.Target),
		logging.String(logging.FieldEventType, "file_"+string(c.Kind)),
	}
	if c.Old != nil {
		attrs = append(attrs, logging.String("previous_hash", c.Old.Hash))
		if c.Old.Perms != c.New.Perms {
			attrs = append(attrs, logging.String("perms", fmt.Sprintf("%04o -> %04o", c.Old.Perms, c.New.Perms)))
		}
		if c.Old.UID != c.New.UID || c.Old.GID != c.New.GID {
			attrs = append(attrs, logging.String("owner",
				fmt.Sprintf("%d:%d -> %d:%d", c.Old.UID, c.Old.GID, c.New.UID, c.New.GID)))
		}
	}
	r.logger.Info("file "+string(c.Kind), logging.Args(attrs...)...)
	return nil
}

// DetailsSink stores per-path details in the broker.
type DetailsSink interface {
	LogDetails(ctx context.Context, key, value string) error
}

// BrokerReporter records each change in the agent's details hash, keyed by
// path, with the change encoded as JSON.
type BrokerReporter struct {
	sink DetailsSink
}

// NewBrokerReporter returns a reporter writing to sink.
func NewBrokerReporter(sink DetailsSink) *BrokerReporter {
	return &BrokerReporter{sink: sink}
}

func (r *BrokerReporter) Report(ctx context.Context, c scan.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	return r.sink.LogDetails(ctx, c.Identity, string(payload))
}

// KafkaWriter is the subset of *kafka.Writer used for publishing. Tests
// substitute an in-memory writer.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter produces each change as a JSON message keyed by path, so
// every change to one file lands on the same partition.
type KafkaReporter struct {
	writer  KafkaWriter
	agent   string
	timeout time.Duration
}

// NewKafkaWriter builds a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewKafkaReporter wraps writer. agent is stamped into a message header.
func NewKafkaReporter(writer KafkaWriter, agent string) *KafkaReporter {
	return &KafkaReporter{writer: writer, agent: agent, timeout: 10 * time.Second}
}

func (r *KafkaReporter) Report(ctx context.Context, c scan.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(c.Identity),
		Value: payload,
		Time:  c.Detected,
		Headers: []kafka.Header{
			{Key: "agent", Value: []byte(r.agent)},
			{Key: "kind", Value: []byte(c.Kind)},
		},
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce change for %s: %w", c.Identity, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (r *KafkaReporter) Close() error {
	return r.writer.Close()
}

// Multi fans a change out to every reporter. All reporters are attempted;
// their errors are joined.
type Multi []scan.Reporter

func (m Multi) Report(ctx context.Context, c scan.Change) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
