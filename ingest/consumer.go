package ingest

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/wyfcoding/segtree/config"
	"github.com/wyfcoding/segtree/contextx"
	"github.com/wyfcoding/segtree/logging"
	"github.com/wyfcoding/segtree/metrics"
	"github.com/wyfcoding/segtree/retry"
	"github.com/wyfcoding/segtree/tracing"
	"github.com/wyfcoding/segtree/xerrors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	fetchBackoff = 200 * time.Millisecond
	laneBuffer   = 16
)

// Handler 处理一条消息体。返回 4xx 类错误的消息视为被拒绝，转入死信后提交位点；
// 5xx 类错误先原地重试，耗尽后同样转入死信并提交。
type Handler func(ctx context.Context, data []byte) error

// Reader 是 *kafkago.Reader 中消费者用到的部分。
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer 是 *kafkago.Writer 中死信投递用到的部分。
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer 单循环拉取消息，按分区分发给固定的 worker。
// 同一分区的消息由同一个 worker 串行处理，应用与提交都保持位点顺序。
type Consumer struct {
	reader  Reader
	dlq     Writer
	breaker *gobreaker.CircuitBreaker // 保护死信写入，Broker 故障时快速失败
	handler Handler
	topic   string
	workers int
	logger  *logging.Logger
	metrics *metrics.IngestMetrics
	commit  retry.Policy
	handle  retry.Policy // 内部错误时原地重试 handler
}

// ConsumerOption 消费者配置项。
type ConsumerOption func(*Consumer)

func WithWorkers(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCommitRetry 设置提交位点的重试策略。
func WithCommitRetry(p retry.Policy) ConsumerOption {
	return func(c *Consumer) { c.commit = p }
}

// WithHandlerRetry 设置 handler 返回内部错误时的重试策略。
// Retryable 为空时只重试 5xx 类错误。
func WithHandlerRetry(p retry.Policy) ConsumerOption {
	return func(c *Consumer) { c.handle = p }
}

func WithDeadLetter(w Writer) ConsumerOption {
	return func(c *Consumer) { c.dlq = w }
}

func WithLogger(l *logging.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = l }
}

func WithMetrics(m *metrics.IngestMetrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

// NewConsumer 按配置创建基于 kafka-go Reader 的消费者。
// 配置了 DeadLetterTopic 时被拒绝的消息会原样写入该主题。
func NewConsumer(cfg config.KafkaConfig, h Handler, opts ...ConsumerOption) *Consumer {
	rc := kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		CommitInterval: cfg.CommitInterval,
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = 1
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = 10e6
	}
	if rc.MaxWait <= 0 {
		rc.MaxWait = time.Second
	}

	base := []ConsumerOption{WithWorkers(cfg.Workers)}
	if cfg.DeadLetterTopic != "" {
		base = append(base, WithDeadLetter(&kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.DeadLetterTopic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
		}))
	}
	return NewConsumerWithReader(kafkago.NewReader(rc), cfg.Topic, h, append(base, opts...)...)
}

// NewConsumerWithReader 使用已有的 Reader 创建消费者。
func NewConsumerWithReader(r Reader, topic string, h Handler, opts ...ConsumerOption) *Consumer {
	commit := retry.Default()
	commit.Retryable = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, io.ErrClosedPipe)
	}
	c := &Consumer{reader: r, handler: h, topic: topic, workers: 1, commit: commit, handle: retry.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.handle.Retryable == nil {
		c.handle.Retryable = isInternal
	}
	if c.logger == nil {
		c.logger = logging.Default().WithModule("ingest")
	}
	if c.dlq != nil {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "ingest-dlq",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// Start 启动拉取循环与 worker 并阻塞，ctx 取消或 Reader 关闭后返回 nil。
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "update consumer started", "topic", c.topic, "workers", c.workers)
	g, gctx := errgroup.WithContext(ctx)

	lanes := make([]chan kafkago.Message, c.workers)
	for i := range lanes {
		lane := make(chan kafkago.Message, laneBuffer)
		lanes[i] = lane
		g.Go(func() error {
			for m := range lane {
				// 关闭时丢弃未处理的消息，它们没有提交，重启后会重新投递。
				if gctx.Err() != nil {
					continue
				}
				c.process(gctx, m)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			for _, lane := range lanes {
				close(lane)
			}
		}()
		return c.fetch(gctx, lanes)
	})

	err := g.Wait()
	c.logger.InfoContext(ctx, "update consumer stopped", "topic", c.topic)
	return err
}

// Stop 关闭 Reader 与死信 Writer。
func (c *Consumer) Stop(context.Context) error {
	err := c.reader.Close()
	if c.dlq != nil {
		if dlqErr := c.dlq.Close(); dlqErr != nil && err == nil {
			err = dlqErr
		}
	}
	return err
}

func (c *Consumer) fetch(ctx context.Context, lanes []chan kafkago.Message) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", "topic", c.topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}
		select {
		case lanes[laneOf(m.Partition, len(lanes))] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func laneOf(partition, n int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % n
}

func isInternal(err error) bool {
	return xerrors.HTTPStatusOf(err) >= 500
}

func (c *Consumer) process(ctx context.Context, m kafkago.Message) {
	carrier := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		carrier[h.Key] = string(h.Value)
	}
	msgCtx := tracing.ExtractContext(ctx, carrier)
	msgCtx, span := tracing.StartSpan(msgCtx, "ingest.Consume", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	msgCtx = contextx.WithSource(msgCtx, "kafka")
	msgCtx = contextx.WithRequestID(msgCtx, m.Topic+"/"+strconv.Itoa(m.Partition)+"/"+strconv.FormatInt(m.Offset, 10))
	tracing.AddTag(msgCtx, "partition", m.Partition)
	tracing.AddTag(msgCtx, "offset", m.Offset)

	start := time.Now()
	err := c.handle.Do(msgCtx, func(ctx context.Context) error {
		return c.handler(ctx, m.Value)
	})
	if err != nil && ctx.Err() != nil {
		return
	}

	status := metrics.StatusOK
	switch {
	case err == nil:
	case !isInternal(err):
		status = metrics.StatusRejected
		c.logger.WarnContext(msgCtx, "update command rejected", "offset", m.Offset, "error", err)
		c.deadLetter(msgCtx, m, err)
	default:
		// 重试耗尽后转入死信并提交，避免阻塞整个分区。
		status = metrics.StatusError
		tracing.SetError(msgCtx, err)
		c.logger.ErrorContext(msgCtx, "update command failed", "offset", m.Offset, "error", err)
		c.deadLetter(msgCtx, m, err)
	}
	c.metrics.Observe(c.topic, status, start)

	err = c.commit.Do(ctx, func(ctx context.Context) error {
		return c.reader.CommitMessages(ctx, m)
	})
	if err != nil {
		c.logger.ErrorContext(msgCtx, "failed to commit offset", "offset", m.Offset, "error", err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, m kafkago.Message, cause error) {
	if c.dlq == nil {
		return
	}
	carrier := tracing.InjectContext(ctx)
	headers := make([]kafkago.Header, 0, len(m.Headers)+len(carrier)+1)
	for _, h := range m.Headers {
		if _, ok := carrier[h.Key]; !ok {
			headers = append(headers, h)
		}
	}
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers, kafkago.Header{Key: "x-reject-reason", Value: []byte(cause.Error())})
	msg := kafkago.Message{Key: m.Key, Value: m.Value, Headers: headers, Time: time.Now()}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.dlq.WriteMessages(ctx, msg)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to write to DLQ", "offset", m.Offset, "error", err)
	}
}
