package events

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
	log "github.com/sirupsen/logrus"
)

const (
	globalTopicName = "submissions"

	updateRateWindow = 500 * time.Millisecond
	updateRateLimit  = 5

	testCaseEventName = "test-case"
)

// terminalEventNames never have their events dropped, at either the rate
// limiter or the topic-buffer level (spec §4.5, §7: exactly one terminal
// event per submission reaches every subscriber).
var terminalEventNames = map[string]struct{}{
	"grading-end":           {},
	"compile-error":         {},
	"internal-error":        {},
	"submission-terminated": {},
}

// Publisher is the bridge's event fan-out, implementing session.Publisher.
// It derives an unguessable per-submission topic name from an HMAC secret,
// rate-limits testcase-progress events per submission, and never drops a
// terminal event.
type Publisher struct {
	secret  []byte
	limiter *catrate.Limiter

	mu     sync.Mutex
	topics map[string]*Topic
}

// NewPublisher builds a Publisher using the spec's default rate limit
// (5 events per 500ms per submission). secret is an operator-provided HMAC
// key used only to derive per-submission topic names; it is not a
// credential shared with workers.
func NewPublisher(secret []byte) *Publisher {
	return NewPublisherWithRate(secret, updateRateWindow, updateRateLimit)
}

// NewPublisherWithRate builds a Publisher with an operator-overridden
// testcase-update rate limit, for cmd/judge-bridge's
// --events.update-rate-limit/--events.update-rate-window flags.
func NewPublisherWithRate(secret []byte, window time.Duration, limit int) *Publisher {
	return &Publisher{
		secret:  secret,
		limiter: catrate.NewLimiter(map[time.Duration]int{window: limit}),
		topics:  make(map[string]*Topic),
	}
}

// SubmissionTopicName derives the per-submission topic name: a 16-hex HMAC
// prefix followed by the submission id in 8 hex digits, per spec §4.5.
func (p *Publisher) SubmissionTopicName(submissionID int64) string {
	mac := hmac.New(sha512.New, p.secret)
	fmt.Fprintf(mac, "%d", submissionID)
	sum := mac.Sum(nil)
	return fmt.Sprintf("sub_%s%08x", hex.EncodeToString(sum[:8]), submissionID)
}

func contestTopicName(contestID string) string {
	return "contest_" + contestID
}

func (p *Publisher) topic(name string) *Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = newTopic()
		p.topics[name] = t
	}
	return t
}

// Publish implements session.Publisher. Every event reaches the
// submission's own topic; non-testcase events additionally reach the
// global submissions topic, since that topic carries only coarse state
// transitions (spec §4.5). testCaseEventName is rate-limited per
// submission and silently dropped on overflow; every other event name is
// treated as a coarse state change and never rate-limited.
func (p *Publisher) Publish(submissionID int64, eventName string, payload interface{}) {
	if eventName == testCaseEventName {
		if _, ok := p.limiter.Allow(submissionID); !ok {
			return
		}
	}

	_, terminal := terminalEventNames[eventName]
	ev := Event{SubmissionID: submissionID, Name: eventName, Payload: payload, Time: time.Now()}

	p.topic(p.SubmissionTopicName(submissionID)).publish(ev, terminal)
	if eventName != testCaseEventName {
		p.topic(globalTopicName).publish(ev, terminal)
	}

	log.WithFields(log.Fields{"submission_id": submissionID, "event": eventName}).Debug("events: published")
}

// PublishContest broadcasts an event on a contest's topic. The full
// contest domain lives outside this module; callers (the submission-closed
// hook, SPEC_FULL §6) supply the contest id they already hold.
func (p *Publisher) PublishContest(contestID string, submissionID int64, eventName string, payload interface{}) {
	ev := Event{SubmissionID: submissionID, Name: eventName, Payload: payload, Time: time.Now()}
	p.topic(contestTopicName(contestID)).publish(ev, false)
}

// SubscribeSubmission registers a feed on a submission's topic.
func (p *Publisher) SubscribeSubmission(submissionID int64) (int, <-chan Event) {
	return p.topic(p.SubmissionTopicName(submissionID)).Subscribe()
}

// UnsubscribeSubmission removes a feed registered by SubscribeSubmission.
func (p *Publisher) UnsubscribeSubmission(submissionID int64, id int) {
	p.topic(p.SubmissionTopicName(submissionID)).Unsubscribe(id)
}

// SubscribeGlobal registers a feed on the global submissions topic.
func (p *Publisher) SubscribeGlobal() (int, <-chan Event) {
	return p.topic(globalTopicName).Subscribe()
}

// UnsubscribeGlobal removes a feed registered by SubscribeGlobal.
func (p *Publisher) UnsubscribeGlobal(id int) {
	p.topic(globalTopicName).Unsubscribe(id)
}

// SubscribeContest registers a feed on a contest's topic.
func (p *Publisher) SubscribeContest(contestID string) (int, <-chan Event) {
	return p.topic(contestTopicName(contestID)).Subscribe()
}

// UnsubscribeContest removes a feed registered by SubscribeContest.
func (p *Publisher) UnsubscribeContest(contestID string, id int) {
	p.topic(contestTopicName(contestID)).Unsubscribe(id)
}
