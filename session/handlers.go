package session

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tranngoclamm/oj-bridge/model"
	"github.com/tranngoclamm/oj-bridge/protocol"
	"github.com/tranngoclamm/oj-bridge/registry"
)

// packetHandlers is an explicit name -> handler registration table, not
// reflection-based dispatch, per SPEC_FULL §9 Design Notes.
var packetHandlers = map[string]func(*Session, interface{}){
	protocol.NameSubmissionAcknowledged: (*Session).handleAck,
	protocol.NameGradingBegin:           (*Session).handleGradingBegin,
	protocol.NameCompileMessage:         (*Session).handleCompileMessage,
	protocol.NameCompileError:           (*Session).handleCompileError,
	protocol.NameBatchBegin:             (*Session).handleBatchBegin,
	protocol.NameBatchEnd:               (*Session).handleBatchEnd,
	protocol.NameTestCaseStatus:         (*Session).handleTestCaseStatus,
	protocol.NameGradingEnd:             (*Session).handleGradingEnd,
	protocol.NameInternalError:          (*Session).handleInternalError,
	protocol.NameSubmissionTerminated:   (*Session).handleSubmissionTerminated,
	protocol.NamePingResponse:           (*Session).handlePingResponse,
	protocol.NameSupportedProblems:      (*Session).handleSupportedProblems,
	protocol.NameExecutors:              (*Session).handleExecutors,
	protocol.NameTestCaseIDE:            (*Session).handleTestCaseIDE,
}

func (s *Session) handleAck(v interface{}) {
	var ack = v.(protocol.SubmissionAcknowledged)

	s.mu.Lock()
	if s.state != StateDispatched || s.current == nil {
		s.mu.Unlock()
		return
	}
	if ack.SubmissionID != s.current.ID {
		var cur = s.current
		s.mu.Unlock()

		log.WithFields(log.Fields{
			"worker": s.Name(), "dispatched": cur.ID, "acked": ack.SubmissionID,
		}).Error("session: ack id mismatch, failing both submissions and closing")

		if err := s.store.FailInternal(cur.ID, ""); err != nil {
			log.WithField("error", err).Error("session: failed to mark ack-mismatch submission IE")
		}
		if err := s.store.FailInternal(ack.SubmissionID, ""); err != nil {
			log.WithField("error", err).Error("session: failed to mark wrongly acknowledged submission IE")
		}
		s.pub.Publish(cur.ID, "internal-error", protocol.InternalError{
			Name:         protocol.NameInternalError,
			SubmissionID: cur.ID,
		})
		// Clear the in-flight slot so teardown's disconnect-handling path
		// doesn't report the same submission IE a second time.
		s.mu.Lock()
		s.current = nil
		s.state = StateClosed
		s.mu.Unlock()
		s.Close()
		return
	}
	s.state = StateAcknowledged
	var cur = s.current
	s.mu.Unlock()

	s.cancelAckWatchdog()
	if err := s.store.MarkProcessing(cur.ID, s.Name()); err != nil {
		log.WithField("error", err).Error("session: failed to mark submission processing")
	}
	s.pub.Publish(cur.ID, "processing", nil)
}

func (s *Session) handleGradingBegin(v interface{}) {
	var gb = v.(protocol.GradingBegin)
	var cur = s.currentFor(gb.SubmissionID)
	if cur == nil {
		return
	}

	s.mu.Lock()
	s.state = StateGrading
	cur.Status = model.StatusGrading
	cur.CurrentTestCase = 1
	cur.Batched = false
	cur.JudgedDate = time.Now()
	s.currentAgg = model.NewAggregate()
	s.inBatch = false
	s.currentBatch = nil
	s.mu.Unlock()

	if err := s.store.ReplaceTestCases(cur.ID); err != nil {
		log.WithField("error", err).Error("session: failed to clear testcase rows for grading-begin")
	}
	s.pub.Publish(cur.ID, "grading-begin", gb)
}

func (s *Session) handleCompileMessage(v interface{}) {
	var cm = v.(protocol.CompileMessage)
	var cur = s.currentFor(cm.SubmissionID)
	if cur == nil {
		return
	}
	s.mu.Lock()
	cur.Error = cm.Log
	s.mu.Unlock()
	s.pub.Publish(cur.ID, "compile-message", cm)
}

func (s *Session) handleCompileError(v interface{}) {
	var ce = v.(protocol.CompileError)
	var cur = s.currentFor(ce.SubmissionID)
	if cur == nil {
		return
	}
	if err := s.store.FailCompile(cur.ID, ce.Log); err != nil {
		log.WithField("error", err).Error("session: failed to persist compile-error")
	}
	s.pub.Publish(cur.ID, "compile-error", ce)
	// ide-compile-error is the raw passthrough, per spec §4.3.
	s.pub.Publish(cur.ID, "ide-compile-error", ce)
	s.freeSession()
}

func (s *Session) handleBatchBegin(v interface{}) {
	var bb = v.(protocol.BatchBegin)
	var cur = s.currentFor(bb.SubmissionID)
	if cur == nil {
		return
	}

	s.mu.Lock()
	s.inBatch = true
	var id = s.batchSeq
	s.batchSeq++
	s.currentBatch = &id
	cur.Batched = true
	cur.BatchID = id
	s.mu.Unlock()
}

func (s *Session) handleBatchEnd(v interface{}) {
	var be = v.(protocol.BatchEnd)
	if s.currentFor(be.SubmissionID) == nil {
		return
	}
	s.mu.Lock()
	s.inBatch = false
	s.currentBatch = nil
	s.mu.Unlock()
}

func (s *Session) handleTestCaseStatus(v interface{}) {
	var tcs = v.(protocol.TestCaseStatus)
	var cur = s.currentFor(tcs.SubmissionID)
	if cur == nil {
		return
	}

	s.mu.Lock()
	var batchID = s.currentBatch
	var inBatch = s.inBatch
	var agg = s.currentAgg
	s.mu.Unlock()

	var rows = make([]model.TestCase, 0, len(tcs.Cases))
	var maxPosition = cur.CurrentTestCase - 1
	for _, c := range tcs.Cases {
		var tc = model.TestCase{
			SubmissionID:     cur.ID,
			Position:         c.Position,
			Status:           model.DecodeWorkerStatus(c.Status),
			Time:             c.Time,
			Memory:           c.Memory,
			Points:           c.Points,
			Total:            c.TotalPoints,
			Feedback:         model.TruncateFeedback(c.Feedback),
			ExtendedFeedback: c.ExtendedFeedback,
			Output:           c.Output,
		}
		if inBatch {
			var id = *batchID
			tc.BatchID = &id
		}
		rows = append(rows, tc)
		agg.Add(tc)
		if c.Position > maxPosition {
			maxPosition = c.Position
		}
	}

	s.mu.Lock()
	cur.CurrentTestCase = maxPosition + 1
	s.mu.Unlock()

	if err := s.store.InsertTestCases(cur.ID, rows); err != nil {
		log.WithField("error", err).Error("session: failed to persist testcase rows")
	}

	var problem, err = s.store.Problem(cur.ProblemID)
	var suppressed = err == nil && problem.TestCaseVisibility != model.VisibilityAll
	if !suppressed {
		s.pub.Publish(cur.ID, "test-case", tcs)
	}
}

func (s *Session) handleGradingEnd(v interface{}) {
	var ge = v.(protocol.GradingEnd)
	var cur = s.currentFor(ge.SubmissionID)
	if cur == nil {
		return
	}

	s.mu.Lock()
	var agg = s.currentAgg
	s.mu.Unlock()

	casePoints, caseTotal, maxTime, maxMemory, result := agg.Finish()

	var problem, err = s.store.Problem(cur.ProblemID)
	if err != nil {
		log.WithField("error", err).Error("session: failed to load problem for points computation")
	}
	var points = model.ComputePoints(casePoints, caseTotal, problem)

	cur.Status = model.StatusDone
	cur.Result = result
	cur.CasePoints = casePoints
	cur.CaseTotal = caseTotal
	cur.Points = points
	cur.Time = maxTime
	cur.Memory = maxMemory

	if err := s.store.FinishGrading(cur.ID, result, casePoints, caseTotal, points, maxTime, maxMemory); err != nil {
		log.WithField("error", err).Error("session: failed to persist grading-end")
	}
	s.pub.Publish(cur.ID, "grading-end", ge)
	s.freeSession()
}

func (s *Session) handleInternalError(v interface{}) {
	var ie = v.(protocol.InternalError)
	var cur = s.currentFor(ie.SubmissionID)
	if cur == nil {
		return
	}
	if err := s.store.FailInternal(cur.ID, ie.Message); err != nil {
		log.WithField("error", err).Error("session: failed to persist internal-error")
	}
	s.pub.Publish(cur.ID, "internal-error", ie)
	s.freeSession()
}

func (s *Session) handleSubmissionTerminated(v interface{}) {
	var st = v.(protocol.SubmissionTerminated)
	var cur = s.currentFor(st.SubmissionID)
	if cur == nil {
		return
	}
	if err := s.store.Terminate(cur.ID); err != nil {
		log.WithField("error", err).Error("session: failed to persist submission-terminated")
	}
	s.pub.Publish(cur.ID, "submission-terminated", st)
	s.freeSession()
}

func (s *Session) handleSupportedProblems(v interface{}) {
	var sp = v.(protocol.SupportedProblems)
	if s.cfg.IgnoreProblemsPacket {
		return
	}
	s.mu.Lock()
	s.problems = toSet(sp.Problems)
	var info = registry.WorkerInfo{
		Tier: s.tier, Disabled: s.disabled,
		Problems: s.problems, Executors: toLangSet(s.executors),
	}
	s.mu.Unlock()

	if s.handle != nil {
		s.handle.UpdateCapabilities(info)
	}
}

func (s *Session) handleExecutors(v interface{}) {
	var ex = v.(protocol.Executors)
	s.mu.Lock()
	s.executors = toRuntimeMap(ex.Executors)
	var info = registry.WorkerInfo{
		Tier: s.tier, Disabled: s.disabled,
		Problems: s.problems, Executors: toLangSet(s.executors),
	}
	s.mu.Unlock()

	if s.handle != nil {
		s.handle.UpdateCapabilities(info)
	}
}

func (s *Session) handleTestCaseIDE(v interface{}) {
	var ide = v.(protocol.TestCaseIDE)
	// Keyed by the nested identity, not the session's current submission
	// -- preserved per spec §9 Open Questions.
	s.pub.Publish(ide.Result.CurrentSubmissionID, "testcase-ide", ide)
}
