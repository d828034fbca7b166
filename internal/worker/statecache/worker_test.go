// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statecache

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/core/logger"
	"github.com/turnwatch/turnwatch/internal/testhelpers"
)

type workerSuite struct {
	recipients *MockRecipientRegistry
	turns      *MockTurnRecorder

	hub     *pubsub.SimpleHub
	results chan game.PollResult
	diffs   chan game.DiffResult
}

var _ = gc.Suite(&workerSuite{})

func (s *workerSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.recipients = NewMockRecipientRegistry(ctrl)
	s.turns = NewMockTurnRecorder(ctrl)
	s.hub = pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
		Logger: loggo.GetLogger("turnwatch.test.hub"),
	})
	s.results = make(chan game.PollResult, 10)
	s.diffs = make(chan game.DiffResult, 10)
	return ctrl
}

func (s *workerSuite) config() Config {
	return Config{
		Results:    s.results,
		Diffs:      s.diffs,
		Recipients: s.recipients,
		Turns:      s.turns,
		Hub:        s.hub,
		Logger:     logger.GetLogger("test.statecache"),
	}
}

func (s *workerSuite) newWorker(c *gc.C) *Worker {
	w, err := NewWorker(s.config())
	c.Assert(err, jc.ErrorIsNil)
	return w
}

func (s *workerSuite) expectLastTurns(turns map[string]int) {
	s.turns.EXPECT().LastTurns(gomock.Any()).Return(turns, nil)
}

func (s *workerSuite) expectRecordTurn(label string, turn int) {
	s.turns.EXPECT().RecordTurn(gomock.Any(), label, turn).Return(nil)
}

func (s *workerSuite) expectRecipients(label string, id int, names ...string) {
	var recipients []game.Recipient
	for _, name := range names {
		recipients = append(recipients, game.Recipient{ID: "id-" + name, DisplayName: name})
	}
	s.recipients.EXPECT().Recipients(gomock.Any(), label, id).Return(recipients, nil)
}

func (s *workerSuite) send(c *gc.C, result game.PollResult) {
	select {
	case s.results <- result:
	case <-time.After(testhelpers.LongWait):
		c.Fatalf("timed out sending poll result")
	}
}

func (s *workerSuite) receiveDiff(c *gc.C) game.DiffResult {
	select {
	case diff := <-s.diffs:
		return diff
	case <-time.After(testhelpers.LongWait):
		c.Fatalf("timed out waiting for diff")
	}
	return game.DiffResult{}
}

func (s *workerSuite) assertNoDiff(c *gc.C) {
	select {
	case diff := <-s.diffs:
		c.Fatalf("unexpected diff %+v", diff)
	case <-time.After(testhelpers.ShortWait):
	}
}

// waitForEntry waits until the cache holds an entry for label issued at
// issuedAt.
func (s *workerSuite) waitForEntry(c *gc.C, w *Worker, label string, issuedAt time.Time) (game.Entry, game.Lookup) {
	timeout := time.After(testhelpers.LongWait)
	for {
		entry, lookup := w.Entry(label)
		if lookup != game.NeverPolled && entry.IssuedAt.Equal(issuedAt) {
			return entry, lookup
		}
		select {
		case <-timeout:
			c.Fatalf("timed out waiting for %s entry issued at %v", label, issuedAt)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *workerSuite) TestValidate(c *gc.C) {
	defer s.setupMocks(c).Finish()

	cfg := s.config()
	c.Check(cfg.Validate(), jc.ErrorIsNil)

	for _, test := range []struct {
		mutate func(*Config)
		msg    string
	}{
		{func(c *Config) { c.Results = nil }, "nil Results not valid"},
		{func(c *Config) { c.Diffs = nil }, "nil Diffs not valid"},
		{func(c *Config) { c.Recipients = nil }, "nil Recipients not valid"},
		{func(c *Config) { c.Turns = nil }, "nil Turns not valid"},
		{func(c *Config) { c.Hub = nil }, "nil Hub not valid"},
		{func(c *Config) { c.Logger = nil }, "nil Logger not valid"},
	} {
		cfg := s.config()
		test.mutate(&cfg)
		err := cfg.Validate()
		c.Check(err, jc.ErrorIs, errors.NotValid)
		c.Check(err, gc.ErrorMatches, test.msg)
	}
}

func (s *workerSuite) TestNeverPolled(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	_, lookup := w.Entry("ermor")
	c.Check(lookup, gc.Equals, game.NeverPolled)
	c.Check(lookup.String(), gc.Equals, "never yet polled")
	c.Check(w.Snapshot(), gc.HasLen, 0)
}

func (s *workerSuite) TestFirstPollEmitsObligations(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1, "alice", "bob")
	s.expectRecipients("ermor", 3, "carol")
	s.expectRecordTurn("ermor", 12)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	state := gameState("ermor", 12, time.Hour,
		human(1, game.NotSubmitted),
		human(2, game.Submitted),
		participant(3, game.StatusDefeatedThisTurn, game.NotSubmitted),
		ai(4),
	)
	s.send(c, game.Succeeded(epoch, state, nil))

	diff := s.receiveDiff(c)
	c.Check(diff.Label, gc.Equals, "ermor")
	c.Check(diff.Turn, gc.Equals, 12)
	c.Check(diff.Defeated, jc.DeepEquals, []int{3})
	c.Check(diff.AI, gc.HasLen, 0)
	c.Check(diff.PossibleStalls, gc.HasLen, 0)
	c.Check(diff.Obligations, jc.DeepEquals, []game.Obligation{
		{Recipient: game.Recipient{ID: "id-alice", DisplayName: "alice"}, ParticipantID: 1, Reason: game.ReasonTurnPending},
		{Recipient: game.Recipient{ID: "id-bob", DisplayName: "bob"}, ParticipantID: 1, Reason: game.ReasonTurnPending},
		{Recipient: game.Recipient{ID: "id-carol", DisplayName: "carol"}, ParticipantID: 3, Reason: game.ReasonDefeated},
	})

	entry, lookup := w.Entry("ermor")
	c.Check(lookup, gc.Equals, game.Available)
	c.Check(entry.State.Turn(), gc.Equals, 12)
}

func (s *workerSuite) TestSameTurnDoesNotDiff(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 12)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 12, time.Hour, human(1, game.NotSubmitted)), nil))
	s.receiveDiff(c)

	later := epoch.Add(time.Minute)
	s.send(c, game.Succeeded(later, gameState("ermor", 12, time.Hour-time.Minute, human(1, game.Submitted)), nil))
	entry, lookup := s.waitForEntry(c, w, "ermor", later)
	c.Check(lookup, gc.Equals, game.Available)
	p, ok := entry.State.Participant(1)
	c.Assert(ok, jc.IsTrue)
	c.Check(p.Submission.State, gc.Equals, game.Submitted)
	s.assertNoDiff(c)
}

func (s *workerSuite) TestTurnChange(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	// Partially submitted orders owe nothing, so 3 is never looked up.
	s.expectRecipients("ermor", 1, "alice")
	s.expectRecordTurn("ermor", 12)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 12, 30*time.Second,
		human(1, game.NotSubmitted),
		ai(2),
		human(3, game.PartiallySubmitted),
		human(4, game.Submitted),
	), nil))
	first := s.receiveDiff(c)
	c.Check(first.Obligations, jc.DeepEquals, []game.Obligation{
		{Recipient: game.Recipient{ID: "id-alice", DisplayName: "alice"}, ParticipantID: 1, Reason: game.ReasonTurnPending},
	})

	s.expectRecipients("ermor", 1, "alice")
	s.expectRecipients("ermor", 4, "dave")
	s.expectRecordTurn("ermor", 13)

	s.send(c, game.Succeeded(epoch.Add(time.Minute), gameState("ermor", 13, time.Hour,
		human(1, game.NotSubmitted),
		ai(2),
		ai(3),
		participant(4, game.StatusDefeatedThisTurn, game.NotSubmitted),
	), nil))

	diff := s.receiveDiff(c)
	c.Check(diff.Turn, gc.Equals, 13)
	c.Check(diff.AI, jc.DeepEquals, []int{2})
	c.Check(diff.PossibleStalls, jc.DeepEquals, []int{1, 3})
	c.Check(diff.Defeated, jc.DeepEquals, []int{4})
	c.Check(diff.Obligations, jc.DeepEquals, []game.Obligation{
		{Recipient: game.Recipient{ID: "id-alice", DisplayName: "alice"}, ParticipantID: 1, Reason: game.ReasonTurnPending},
		{Recipient: game.Recipient{ID: "id-dave", DisplayName: "dave"}, ParticipantID: 4, Reason: game.ReasonDefeated},
	})
}

func (s *workerSuite) TestComfortableDeadlineHasNoStalls(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.recipients.EXPECT().Recipients(gomock.Any(), "ermor", 1).Return(nil, nil).Times(2)
	s.expectRecordTurn("ermor", 5)
	s.expectRecordTurn("ermor", 6)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, 500*time.Second, human(1, game.NotSubmitted)), nil))
	s.receiveDiff(c)
	s.send(c, game.Succeeded(epoch.Add(time.Minute), gameState("ermor", 6, 400*time.Second, human(1, game.NotSubmitted)), nil))

	diff := s.receiveDiff(c)
	c.Check(diff.Turn, gc.Equals, 6)
	c.Check(diff.PossibleStalls, gc.HasLen, 0)
}

func (s *workerSuite) TestFailureThenSuccess(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	fetchErr := errors.New("connect timeout")
	s.send(c, game.Failed("ermor", epoch, fetchErr))
	entry, lookup := s.waitForEntry(c, w, "ermor", epoch)
	c.Check(lookup, gc.Equals, game.Unreachable)
	c.Check(lookup.String(), gc.Equals, "could not reach server")
	c.Check(entry.Err(), gc.Equals, fetchErr)
	s.assertNoDiff(c)

	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 5)

	later := epoch.Add(time.Minute)
	s.send(c, game.Succeeded(later, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	diff := s.receiveDiff(c)
	c.Check(diff.Turn, gc.Equals, 5)

	entry, lookup = w.Entry("ermor")
	c.Check(lookup, gc.Equals, game.Available)
	c.Check(entry.IssuedAt, gc.Equals, later)
}

func (s *workerSuite) TestFailureReplacesGoodEntry(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 5)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	s.receiveDiff(c)

	later := epoch.Add(time.Minute)
	s.send(c, game.Failed("ermor", later, errors.New("refused")))
	_, lookup := s.waitForEntry(c, w, "ermor", later)
	c.Check(lookup, gc.Equals, game.Unreachable)

	// The same turn after an outage was already reported.
	latest := later.Add(time.Minute)
	s.send(c, game.Succeeded(latest, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	_, lookup = s.waitForEntry(c, w, "ermor", latest)
	c.Check(lookup, gc.Equals, game.Available)
	s.assertNoDiff(c)
}

func (s *workerSuite) TestRestartSuppressesReportedTurn(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(map[string]int{"ermor": 5})

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	_, lookup := s.waitForEntry(c, w, "ermor", epoch)
	c.Check(lookup, gc.Equals, game.Available)
	s.assertNoDiff(c)

	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 6)
	s.send(c, game.Succeeded(epoch.Add(time.Minute), gameState("ermor", 6, time.Hour, human(1, game.NotSubmitted)), nil))
	diff := s.receiveDiff(c)
	c.Check(diff.Turn, gc.Equals, 6)
}

func (s *workerSuite) TestLastTurnsFailureIsNotFatal(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.turns.EXPECT().LastTurns(gomock.Any()).Return(nil, errors.New("boom"))
	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 5)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	diff := s.receiveDiff(c)
	c.Check(diff.Turn, gc.Equals, 5)
}

func (s *workerSuite) TestStaleResultDiscarded(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 6)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	later := epoch.Add(time.Minute)
	s.send(c, game.Succeeded(later, gameState("ermor", 6, time.Hour, human(1, game.NotSubmitted)), nil))
	s.receiveDiff(c)

	s.send(c, game.Failed("ermor", epoch, errors.New("late failure")))
	// A second, newer failure proves the stale one was handled first.
	latest := later.Add(time.Minute)
	s.send(c, game.Failed("other", latest, errors.New("refused")))
	s.waitForEntry(c, w, "other", latest)

	entry, lookup := w.Entry("ermor")
	c.Check(lookup, gc.Equals, game.Available)
	c.Check(entry.IssuedAt, gc.Equals, later)
	s.assertNoDiff(c)
}

func (s *workerSuite) TestRecipientLookupFailureSkipsParticipant(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.recipients.EXPECT().Recipients(gomock.Any(), "ermor", 1).Return(nil, errors.New("db gone"))
	s.expectRecipients("ermor", 2, "bob")
	s.expectRecordTurn("ermor", 5)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour,
		human(1, game.NotSubmitted),
		human(2, game.NotSubmitted),
	), nil))
	diff := s.receiveDiff(c)
	c.Check(diff.Obligations, jc.DeepEquals, []game.Obligation{
		{Recipient: game.Recipient{ID: "id-bob", DisplayName: "bob"}, ParticipantID: 2, Reason: game.ReasonTurnPending},
	})
}

func (s *workerSuite) TestRecordTurnFailureStillDiffs(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1)
	s.turns.EXPECT().RecordTurn(gomock.Any(), "ermor", 5).Return(errors.New("disk full"))

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	diff := s.receiveDiff(c)
	c.Check(diff.Turn, gc.Equals, 5)
}

func (s *workerSuite) TestPublishesUpdatesAndTurnChanges(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 5)

	updates := make(chan Update, 1)
	unsubUpdates := s.hub.Subscribe(UpdatedTopic, func(_ string, data interface{}) {
		updates <- data.(Update)
	})
	defer unsubUpdates()
	changes := make(chan game.DiffResult, 1)
	unsubChanges := s.hub.Subscribe(TurnChangedTopic, func(_ string, data interface{}) {
		changes <- data.(game.DiffResult)
	})
	defer unsubChanges()

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	s.receiveDiff(c)

	select {
	case update := <-updates:
		c.Check(update.Label, gc.Equals, "ermor")
		c.Check(update.Entry.State.Turn(), gc.Equals, 5)
	case <-time.After(testhelpers.LongWait):
		c.Fatalf("no update published")
	}
	select {
	case change := <-changes:
		c.Check(change.Turn, gc.Equals, 5)
	case <-time.After(testhelpers.LongWait):
		c.Fatalf("no turn change published")
	}
}

func (s *workerSuite) TestSnapshotIsIsolated(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.expectRecipients("ermor", 1)
	s.expectRecordTurn("ermor", 5)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	aug := &game.Augmentation{Source: "notes", Notes: map[int]string{1: "Ermor"}}
	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), aug))
	s.receiveDiff(c)

	snap := w.Snapshot()
	c.Assert(snap, gc.HasLen, 1)
	snap["ermor"].Augmentation.Notes[1] = "changed"
	delete(snap, "ermor")

	entry, lookup := w.Entry("ermor")
	c.Check(lookup, gc.Equals, game.Available)
	c.Check(entry.Augmentation.Notes[1], gc.Equals, "Ermor")
	c.Check(w.Snapshot(), gc.HasLen, 1)
}

func (s *workerSuite) TestClosedResultsKillsWorker(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)

	w := s.newWorker(c)
	defer workertest.DirtyKill(c, w)

	close(s.results)
	err := workertest.CheckKilled(c, w)
	c.Check(err, jc.ErrorIs, game.ErrChannelClosed)
}

func (s *workerSuite) TestKillWhileBlockedOnDiffs(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)
	s.recipients.EXPECT().Recipients(gomock.Any(), "ermor", 1).Return(nil, nil).AnyTimes()
	s.turns.EXPECT().RecordTurn(gomock.Any(), "ermor", gomock.Any()).Return(nil).AnyTimes()

	s.diffs = make(chan game.DiffResult)
	w := s.newWorker(c)

	s.send(c, game.Succeeded(epoch, gameState("ermor", 5, time.Hour, human(1, game.NotSubmitted)), nil))
	s.waitForEntry(c, w, "ermor", epoch)

	workertest.CleanKill(c, w)
}

func (s *workerSuite) TestStalePollsNeverOverwriteUnderLoad(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectLastTurns(nil)

	w := s.newWorker(c)
	defer workertest.CleanKill(c, w)

	ctx, cancel := context.WithTimeout(context.Background(), testhelpers.LongWait)
	defer cancel()

	newest := epoch.Add(5 * time.Minute)
	s.send(c, game.Failed("ermor", newest, errors.New("refused")))
	for i := 0; i < 5; i++ {
		select {
		case s.results <- game.Failed("ermor", epoch.Add(time.Duration(i)*time.Minute), errors.New("older")):
		case <-ctx.Done():
			c.Fatalf("timed out")
		}
	}
	s.send(c, game.Failed("other", newest, errors.New("refused")))
	s.waitForEntry(c, w, "other", newest)

	entry, _ := w.Entry("ermor")
	c.Check(entry.IssuedAt, gc.Equals, newest)
	c.Check(entry.Err(), gc.ErrorMatches, "refused")
}
