package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/sigil/types"
)

type fakeProducer struct {
	produced []*kafka.Message
	failWith error
	hold     bool
	flushed  bool
	closed   bool
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.produced = append(p.produced, msg)
	if p.hold {
		return nil
	}
	report := *msg
	report.TopicPartition.Error = p.failWith
	deliveryChan <- &report
	return nil
}

func (p *fakeProducer) Flush(int) int { p.flushed = true; return 0 }
func (p *fakeProducer) Close()        { p.closed = true }

func TestKafkaSinkDeliver(t *testing.T) {
	p := &fakeProducer{}
	s := NewKafkaSink(p, "settlements")
	n := testNotice("tok1", true)

	require.NoError(t, s.Deliver(context.Background(), n))
	require.Len(t, p.produced, 1)

	msg := p.produced[0]
	assert.Equal(t, "settlements", *msg.TopicPartition.Topic)
	assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
	assert.Equal(t, []byte("tok1"), msg.Key)

	var decoded Notice
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, n.ID.String(), decoded.ID.String())
	assert.True(t, decoded.Priority)
	assert.Equal(t, types.SOL(70_000_000), decoded.Paid)
	assert.Contains(t, string(msg.Value), `"display":"0.070000000 SOL"`)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "true", headers["priority"])
	assert.Equal(t, DefaultEndpoint, headers["endpoint"])

	s.Close(100)
	assert.True(t, p.flushed)
	assert.True(t, p.closed)
}

func TestKafkaSinkDeliveryError(t *testing.T) {
	brokerErr := errors.New("broker down")
	s := NewKafkaSink(&fakeProducer{failWith: brokerErr}, "settlements")
	assert.ErrorIs(t, s.Deliver(context.Background(), testNotice("tok1", false)), brokerErr)
}

func TestKafkaSinkContextCancel(t *testing.T) {
	s := NewKafkaSink(&fakeProducer{hold: true}, "settlements")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Deliver(ctx, testNotice("tok1", false)), context.DeadlineExceeded)
}

func TestJournalSink(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	n := testNotice("tok1", true)
	require.NoError(t, j.Deliver(ctx, n))
	// redelivery of the same notice is ignored
	require.NoError(t, j.Deliver(ctx, n))
	require.NoError(t, j.Deliver(ctx, testNotice("tok2", false)))

	count, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := j.ByToken(ctx, "tok1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, n.ID.String(), got[0].ID.String())
	assert.Equal(t, n.Tier, got[0].Tier)
	assert.True(t, got[0].Priority)
	assert.Equal(t, n.Paid, got[0].Paid)
	assert.Equal(t, n.Timestamp.UnixMilli(), got[0].Timestamp.UnixMilli())
}

func TestJournalSinkInMemory(t *testing.T) {
	j, err := OpenJournal(":memory:")
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Deliver(context.Background(), testNotice("tok1", false)))
	count, err := j.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpenJournalRequiresPath(t *testing.T) {
	_, err := OpenJournal("  ")
	assert.Error(t, err)
}
