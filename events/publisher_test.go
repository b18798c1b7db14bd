package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBurstOfTestCaseEventsIsRateLimited(t *testing.T) {
	p := NewPublisher([]byte("topic-secret"))
	id, ch := p.SubscribeSubmission(42)
	defer p.UnsubscribeSubmission(42, id)

	for i := 0; i < 20; i++ {
		p.Publish(42, "test-case", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	batch, err := Poll(ctx, ch, &PollConfig{MaxSize: -1, MinSize: -1, PartialTimeout: 250 * time.Millisecond})
	require.NoError(t, err)
	assert.Len(t, batch, 5, "only UPDATE_RATE_LIMIT of the burst should have passed the limiter")
}

func TestPublishTerminalEventIsNeverDropped(t *testing.T) {
	p := NewPublisher([]byte("topic-secret"))
	id, ch := p.SubscribeSubmission(7)
	defer p.UnsubscribeSubmission(7, id)

	// Saturate the subscriber's buffer with coarse (non-rate-limited,
	// non-terminal) events first.
	for i := 0; i < subscriberBuffer+10; i++ {
		p.Publish(7, "compile-message", i)
	}
	p.Publish(7, "grading-end", "final")

	var last Event
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	assert.Equal(t, "grading-end", last.Name, "the terminal event must survive buffer overflow")
}

func TestPublishNonTestCaseEventReachesGlobalTopic(t *testing.T) {
	p := NewPublisher([]byte("topic-secret"))
	gid, gch := p.SubscribeGlobal()
	defer p.UnsubscribeGlobal(gid)

	p.Publish(1, "grading-begin", nil)
	select {
	case ev := <-gch:
		assert.Equal(t, int64(1), ev.SubmissionID)
		assert.Equal(t, "grading-begin", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("expected grading-begin on the global topic")
	}
}

func TestPublishTestCaseEventDoesNotReachGlobalTopic(t *testing.T) {
	p := NewPublisher([]byte("topic-secret"))
	gid, gch := p.SubscribeGlobal()
	defer p.UnsubscribeGlobal(gid)

	p.Publish(1, "test-case", nil)
	select {
	case ev := <-gch:
		t.Fatalf("test-case events must not appear on the global topic, got %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubmissionTopicNameIsStableAndUnguessable(t *testing.T) {
	p := NewPublisher([]byte("topic-secret"))
	q := NewPublisher([]byte("different-secret"))

	a1 := p.SubmissionTopicName(100)
	a2 := p.SubmissionTopicName(100)
	assert.Equal(t, a1, a2, "topic name must be deterministic for the same submission id")
	assert.Contains(t, a1, "00000064") // 100 in 8 hex digits

	b1 := q.SubmissionTopicName(100)
	assert.NotEqual(t, a1, b1, "different secrets must derive different topic names")
}

func TestPublishContestTopic(t *testing.T) {
	p := NewPublisher([]byte("topic-secret"))
	id, ch := p.SubscribeContest("contest-9")
	defer p.UnsubscribeContest("contest-9", id)

	p.PublishContest("contest-9", 5, "grading-end", nil)
	select {
	case ev := <-ch:
		assert.Equal(t, int64(5), ev.SubmissionID)
	case <-time.After(time.Second):
		t.Fatal("expected event on contest topic")
	}
}
