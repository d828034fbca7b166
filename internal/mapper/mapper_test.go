// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mapper_test

import (
	"math"
	"math/rand"
	"time"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/turnwatch/turnwatch/core/game"
	"github.com/turnwatch/turnwatch/internal/mapper"
	"github.com/turnwatch/turnwatch/internal/wire"
)

type mapperSuite struct{}

var _ = gc.Suite(&mapperSuite{})

func (s *mapperSuite) TestSlotTen(c *gc.C) {
	var rec wire.RawRecord
	rec.Status[10] = 1
	rec.Status[260] = 0
	rec.Status[510] = 1

	participants, err := mapper.Participants(rec)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(participants, jc.DeepEquals, []game.Participant{{
		ID:         9,
		Status:     game.StatusHuman,
		Submission: game.Submission{State: game.NotSubmitted},
		Connected:  true,
	}})
}

func (s *mapperSuite) TestPresentSlotsOnly(c *gc.C) {
	known := []uint8{0, 1, 2, 3, 253, 254, 255}
	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		var rec wire.RawRecord
		var want []int
		for i := 0; i < wire.SlotCount; i++ {
			code := known[rnd.Intn(len(known))]
			rec.Status[i] = code
			rec.Status[i+wire.SlotCount] = uint8(rnd.Intn(4))
			if code != 0 && code != 3 {
				want = append(want, i-1)
			}
		}

		participants, err := mapper.Participants(rec)
		c.Assert(err, jc.ErrorIsNil)
		var got []int
		for _, p := range participants {
			got = append(got, p.ID)
		}
		c.Check(got, jc.DeepEquals, want, gc.Commentf("round %d", round))
	}
}

func (s *mapperSuite) TestSlotZeroHasNegativeID(c *gc.C) {
	var rec wire.RawRecord
	rec.Status[0] = 2
	participants, err := mapper.Participants(rec)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(participants, gc.HasLen, 1)
	c.Check(participants[0].ID, gc.Equals, -1)
	c.Check(participants[0].Status, gc.Equals, game.StatusAI)
}

func (s *mapperSuite) TestUnknownStatusFails(c *gc.C) {
	var rec wire.RawRecord
	rec.Status[5] = 42
	_, err := mapper.Map("ermor", rec, time.Now())
	c.Check(err, jc.ErrorIs, game.ErrUnknownStatus)
	c.Check(err, gc.ErrorMatches, `mapping "ermor": slot 5: unknown participant status 42`)
}

func (s *mapperSuite) TestUnknownSubmissionIsKept(c *gc.C) {
	var rec wire.RawRecord
	rec.Status[7] = 1
	rec.Status[7+wire.SlotCount] = 9
	participants, err := mapper.Participants(rec)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(participants, gc.HasLen, 1)
	c.Check(participants[0].Submission, gc.Equals, game.Submission{State: game.SubmissionUnknown, Code: 9})
}

func (s *mapperSuite) TestMap(c *gc.C) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := wire.RawRecord{
		Name:      "Ermor Rising",
		Countdown: 90000,
		Turn:      12,
	}
	rec.Status[3] = 1

	st, err := mapper.Map("ermor", rec, now)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.Label(), gc.Equals, "ermor")
	c.Check(st.Name(), gc.Equals, "Ermor Rising")
	c.Check(st.Turn(), gc.Equals, 12)
	c.Check(st.Remaining(), gc.Equals, 90*time.Second)
	c.Check(st.Deadline(), gc.Equals, now.Add(90*time.Second))
	c.Check(st.FetchedAt(), gc.Equals, now)
	c.Check(st.Participants(), gc.HasLen, 1)
}

func (s *mapperSuite) TestUploadPhaseTurn(c *gc.C) {
	rec := wire.RawRecord{Turn: math.MaxUint32}
	st, err := mapper.Map("ermor", rec, time.Now())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.Turn(), gc.Equals, -1)
	c.Check(st.InUploadPhase(), jc.IsTrue)
}

func (s *mapperSuite) TestNegativeCountdownHasNoDeadline(c *gc.C) {
	rec := wire.RawRecord{Countdown: -1, Turn: 3}
	st, err := mapper.Map("ermor", rec, time.Now())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.HasDeadline(), jc.IsFalse)
}

func (s *mapperSuite) TestDeadlineOverflow(c *gc.C) {
	now := time.Unix(0, math.MaxInt64-int64(time.Millisecond))
	rec := wire.RawRecord{Countdown: 5000, Turn: 3}
	_, err := mapper.Map("ermor", rec, now)
	c.Check(err, jc.ErrorIs, game.ErrTimeOverflow)
}
