package eventstream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ramiqadoumi/go-durable-orchestrator/internal/domain"
	"github.com/ramiqadoumi/go-durable-orchestrator/internal/kafka"
)

// bufferedStream is a Kafka-backed Stream, built on internal/kafka.Producer:
// Publish enqueues onto a bounded channel drained by a single background
// goroutine; a full buffer drops the snapshot rather than applying
// backpressure to the caller, matching the "drops allowed" posture of the
// event stream.
type bufferedStream struct {
	producer kafka.Producer
	topic    string
	log      *slog.Logger
	buf      chan publishRequest
	done     chan struct{}
}

type publishRequest struct {
	ctx  context.Context
	key  string
	snap json.RawMessage
}

// NewKafkaStream returns a Stream that publishes to topic on brokers,
// buffering up to bufferSize pending snapshots before dropping. Each
// snapshot is keyed by job id so a job's updates land on one partition and
// are observed by consumers in order.
func NewKafkaStream(brokers []string, topic string, bufferSize int, log *slog.Logger) Stream {
	if log == nil {
		log = slog.Default()
	}
	s := &bufferedStream{
		producer: kafka.NewProducer(brokers),
		topic:    topic,
		log:      log,
		buf:      make(chan publishRequest, bufferSize),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish marshals snap and enqueues it for background delivery. If the
// buffer is full the snapshot is dropped and logged at debug level.
func (s *bufferedStream) Publish(ctx context.Context, snap domain.Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn("eventstream marshal failed", "job_id", snap.ID, "error", err)
		return
	}
	select {
	case s.buf <- publishRequest{ctx: ctx, key: snap.ID, snap: raw}:
	default:
		s.log.Debug("eventstream buffer full, dropping snapshot", "job_id", snap.ID)
	}
}

func (s *bufferedStream) run() {
	for {
		select {
		case req, ok := <-s.buf:
			if !ok {
				return
			}
			s.write(req)
		case <-s.done:
			return
		}
	}
}

func (s *bufferedStream) write(req publishRequest) {
	if err := s.producer.Publish(req.ctx, s.topic, req.key, req.snap); err != nil {
		s.log.Warn("eventstream publish failed", "topic", s.topic, "error", err)
	}
}

func (s *bufferedStream) Close() error {
	close(s.done)
	return s.producer.Close()
}
