package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/segtree/catalog"
	"github.com/wyfcoding/segtree/contextx"
	"github.com/wyfcoding/segtree/logging"
	"github.com/wyfcoding/segtree/metrics"
	"github.com/wyfcoding/segtree/retry"
	"github.com/wyfcoding/segtree/tracing"
	"github.com/wyfcoding/segtree/xerrors"
)

func testLogger() *logging.Logger {
	return logging.NewFromConfig(logging.Config{Service: "test", Module: "ingest", Level: "error", Output: &bytes.Buffer{}})
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New(catalog.WithLogger(testLogger()))
	_, err := c.Create(context.Background(), catalog.Spec{Name: "sum", Aggregation: "sum", Mode: "increment", Values: []int64{1, 2, 3, 4}})
	require.NoError(t, err)
	_, err = c.Create(context.Background(), catalog.Spec{Name: "max", Aggregation: "max", Mode: "assign", Values: []int64{1, 2, 3, 4}})
	require.NoError(t, err)
	return c
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"point", `{"tree":"a","op":"point","index":1,"value":5}`, true},
		{"range", `{"tree":"a","op":"range","lo":0,"hi":2,"value":-1}`, true},
		{"zero value", `{"tree":"a","op":"point","index":0,"value":0}`, true},
		{"not json", `tree=a`, false},
		{"unknown field", `{"tree":"a","op":"point","index":1,"value":5,"x":1}`, false},
		{"missing tree", `{"op":"point","index":1,"value":5}`, false},
		{"missing value", `{"tree":"a","op":"point","index":1}`, false},
		{"point without index", `{"tree":"a","op":"point","value":5}`, false},
		{"range without hi", `{"tree":"a","op":"range","lo":0,"value":5}`, false},
		{"unknown op", `{"tree":"a","op":"delete","value":5}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, xerrors.ErrInvalidCommand)
		})
	}
}

func TestApplier(t *testing.T) {
	c := newCatalog(t)
	a := NewApplier(c, testLogger())
	ctx := context.Background()

	require.NoError(t, a.Handle(ctx, []byte(`{"tree":"sum","op":"range","lo":1,"hi":3,"value":10}`)))
	require.NoError(t, a.Handle(ctx, []byte(`{"tree":"sum","op":"point","index":0,"value":5}`)))
	vals, err := c.Values("sum")
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 12, 13, 4}, vals)

	require.NoError(t, a.Handle(ctx, []byte(`{"tree":"max","op":"range","lo":0,"hi":2,"value":9}`)))
	got, err := c.Query(ctx, "max", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got)

	assert.ErrorIs(t, a.Handle(ctx, []byte(`{"tree":"nope","op":"point","index":0,"value":1}`)), xerrors.ErrTreeNotFound)
	assert.ErrorIs(t, a.Handle(ctx, []byte(`{"tree":"sum","op":"point","index":9,"value":1}`)), xerrors.ErrOutOfRange)
	assert.ErrorIs(t, a.Handle(ctx, []byte(`{`)), xerrors.ErrInvalidCommand)
}

type fakeReader struct {
	mu          sync.Mutex
	msgs        []kafkago.Message
	committed   []int64
	byPartition map[int][]int64
	closed      bool
	fetchErrs   int
	commitErrs  int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafkago.Message{}, errors.New("broker unavailable")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErrs > 0 {
		r.commitErrs--
		return errors.New("coordinator not available")
	}
	if r.byPartition == nil {
		r.byPartition = make(map[int][]int64)
	}
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
		r.byPartition[m.Partition] = append(r.byPartition[m.Partition], m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *fakeReader) partitionCommits(p int) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.byPartition[p]...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafkago.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafkago.Message(nil), w.msgs...)
}

func msg(offset int64, body string) kafkago.Message {
	return msgAt(0, offset, body)
}

func msgAt(partition int, offset int64, body string) kafkago.Message {
	return kafkago.Message{Topic: "updates", Partition: partition, Offset: offset, Value: []byte(body)}
}

func startConsumer(t *testing.T, consumer *Consumer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestConsumer(t *testing.T) {
	c := newCatalog(t)
	m := metrics.NewMetrics("test")
	internal := xerrors.New(xerrors.ErrInternal, 500000, "boom", "", nil)

	var explodes atomic.Int32
	applier := NewApplier(c, testLogger())
	handler := func(ctx context.Context, data []byte) error {
		assert.Equal(t, "kafka", contextx.GetSource(ctx))
		if string(data) == "explode" {
			explodes.Add(1)
			return internal
		}
		return applier.Handle(ctx, data)
	}

	reader := &fakeReader{
		fetchErrs: 1,
		msgs: []kafkago.Message{
			msg(1, `{"tree":"sum","op":"point","index":0,"value":1}`),
			msg(2, `garbage`),
			msg(3, `explode`),
			msg(4, `{"tree":"missing","op":"point","index":0,"value":1}`),
			msg(5, `{"tree":"sum","op":"range","lo":0,"hi":4,"value":1}`),
		},
	}
	dlq := &fakeWriter{}
	consumer := NewConsumerWithReader(reader, "updates", handler,
		WithLogger(testLogger()), WithMetrics(m.Ingest), WithDeadLetter(dlq),
		WithHandlerRetry(retry.Policy{MaxRetries: 2, InitialBackoff: time.Millisecond}))

	stop := startConsumer(t, consumer)
	require.Eventually(t, func() bool { return len(reader.commits()) == 5 }, 2*time.Second, 10*time.Millisecond)
	stop()

	// 内部错误重试耗尽后转入死信，位点照常推进。
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.commits())
	assert.Equal(t, int32(3), explodes.Load())

	vals, err := c.Values("sum")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 3, 4, 5}, vals)

	written := dlq.written()
	require.Len(t, written, 3)
	assert.Equal(t, "garbage", string(written[0].Value))
	assert.Equal(t, "explode", string(written[1].Value))
	last := written[1].Headers[len(written[1].Headers)-1]
	assert.Equal(t, "x-reject-reason", last.Key)
	assert.Contains(t, string(last.Value), "after 3 attempts")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ingest.MessagesTotal.WithLabelValues("updates", metrics.StatusOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ingest.MessagesTotal.WithLabelValues("updates", metrics.StatusRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ingest.MessagesTotal.WithLabelValues("updates", metrics.StatusError)))

	require.NoError(t, consumer.Stop(context.Background()))
	assert.True(t, reader.closed)
}

func TestConsumerRetriesInternalErrors(t *testing.T) {
	c := newCatalog(t)
	applier := NewApplier(c, testLogger())
	var calls atomic.Int32
	handler := func(ctx context.Context, data []byte) error {
		if calls.Add(1) <= 2 {
			return xerrors.New(xerrors.ErrInternal, 500000, "catalog busy", "", nil)
		}
		return applier.Handle(ctx, data)
	}
	reader := &fakeReader{msgs: []kafkago.Message{msg(1, `{"tree":"sum","op":"point","index":0,"value":10}`)}}
	dlq := &fakeWriter{}
	consumer := NewConsumerWithReader(reader, "updates", handler,
		WithLogger(testLogger()), WithDeadLetter(dlq),
		WithHandlerRetry(retry.Policy{MaxRetries: 3, InitialBackoff: time.Millisecond}))

	stop := startConsumer(t, consumer)
	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, dlq.written())
	vals, err := c.Values("sum")
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 2, 3, 4}, vals)
}

func TestConsumerKeepsPartitionOrder(t *testing.T) {
	c := catalog.New(catalog.WithLogger(testLogger()))
	_, err := c.Create(context.Background(), catalog.Spec{Name: "latest", Aggregation: "sum", Mode: "assign", Values: []int64{0, 0, 0}})
	require.NoError(t, err)

	const perPartition = 20
	reader := &fakeReader{}
	for i := 1; i <= perPartition; i++ {
		for p := range 3 {
			body := fmt.Sprintf(`{"tree":"latest","op":"point","index":%d,"value":%d}`, p, i)
			reader.msgs = append(reader.msgs, msgAt(p, int64(i), body))
		}
	}

	applier := NewApplier(c, testLogger())
	var mu sync.Mutex
	applied := make(map[int][]int64)
	handler := func(ctx context.Context, data []byte) error {
		time.Sleep(time.Duration(rand.IntN(2000)) * time.Microsecond)
		cmd, err := Decode(data)
		if err != nil {
			return err
		}
		mu.Lock()
		applied[*cmd.Index] = append(applied[*cmd.Index], *cmd.Value)
		mu.Unlock()
		return applier.Apply(ctx, cmd)
	}
	consumer := NewConsumerWithReader(reader, "updates", handler, WithLogger(testLogger()), WithWorkers(2))

	stop := startConsumer(t, consumer)
	require.Eventually(t, func() bool { return len(reader.commits()) == 3*perPartition }, 5*time.Second, 10*time.Millisecond)
	stop()

	want := make([]int64, perPartition)
	for i := range want {
		want[i] = int64(i + 1)
	}
	for p := range 3 {
		mu.Lock()
		assert.Equal(t, want, applied[p], "apply order of partition %d", p)
		mu.Unlock()
		assert.Equal(t, want, reader.partitionCommits(p), "commit order of partition %d", p)
	}

	// assign 模式下最后一条指令生效。
	vals, err := c.Values("latest")
	require.NoError(t, err)
	assert.Equal(t, []int64{perPartition, perPartition, perPartition}, vals)
}

func TestConsumerDeadLetterCarriesTrace(t *testing.T) {
	tracing.SetupPropagator()
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	in := msg(1, `garbage`)
	in.Headers = []kafkago.Header{
		{Key: "traceparent", Value: []byte("00-" + traceID + "-00f067aa0ba902b7-01")},
		{Key: "origin", Value: []byte("billing")},
	}
	reader := &fakeReader{msgs: []kafkago.Message{in}}
	dlq := &fakeWriter{}
	consumer := NewConsumerWithReader(reader, "updates", NewApplier(newCatalog(t), testLogger()).Handle,
		WithLogger(testLogger()), WithDeadLetter(dlq))

	stop := startConsumer(t, consumer)
	require.Eventually(t, func() bool { return len(dlq.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	var parents []string
	var origin string
	for _, h := range dlq.written()[0].Headers {
		switch h.Key {
		case "traceparent":
			parents = append(parents, string(h.Value))
		case "origin":
			origin = string(h.Value)
		}
	}
	require.Len(t, parents, 1)
	assert.Contains(t, parents[0], traceID)
	assert.Equal(t, "billing", origin)
}

func TestConsumerWorkers(t *testing.T) {
	c := newCatalog(t)
	reader := &fakeReader{}
	for i := range 50 {
		reader.msgs = append(reader.msgs, msg(int64(i), `{"tree":"sum","op":"point","index":3,"value":1}`))
	}
	consumer := NewConsumerWithReader(reader, "updates", NewApplier(c, testLogger()).Handle,
		WithLogger(testLogger()), WithWorkers(4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 50 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got, err := c.Query(context.Background(), "sum", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(54), got)
}

type failingWriter struct {
	mu    sync.Mutex
	calls int
}

func (w *failingWriter) WriteMessages(context.Context, ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return errors.New("dlq down")
}

func (w *failingWriter) Close() error { return nil }

func TestConsumerDeadLetterBreaker(t *testing.T) {
	reader := &fakeReader{}
	for i := range 8 {
		reader.msgs = append(reader.msgs, msg(int64(i), `garbage`))
	}
	dlq := &failingWriter{}
	consumer := NewConsumerWithReader(reader, "updates", NewApplier(newCatalog(t), testLogger()).Handle,
		WithLogger(testLogger()), WithDeadLetter(dlq))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	// 死信写入失败不阻塞提交。
	require.Eventually(t, func() bool { return len(reader.commits()) == 8 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	assert.Equal(t, 5, dlq.calls)
}

func TestConsumerCommitRetry(t *testing.T) {
	reader := &fakeReader{commitErrs: 2, msgs: []kafkago.Message{msg(7, `{"tree":"sum","op":"point","index":0,"value":1}`)}}
	consumer := NewConsumerWithReader(reader, "updates", NewApplier(newCatalog(t), testLogger()).Handle,
		WithLogger(testLogger()),
		WithCommitRetry(retry.Policy{MaxRetries: 3, InitialBackoff: time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{7}, reader.commits())
}
