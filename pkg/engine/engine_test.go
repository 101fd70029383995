package engine

import (
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/holdencore/pokercore/pkg/eval"
)

func testLog() slog.Logger {
	backend := slog.NewBackend(io.Discard)
	l := backend.Logger("TEST")
	l.SetLevel(slog.LevelOff)
	return l
}

func testClock() time.Time { return time.Unix(0, 0) }

func newHeadsUp(t *testing.T, stack int64) (*Hand, *Player, *Player) {
	t.Helper()
	p0 := &Player{UserID: "p0", Username: "button", ChipsAtSeat: stack, State: Waiting, SeatIndex: 0}
	p1 := &Player{UserID: "p1", Username: "bb", ChipsAtSeat: stack, State: Waiting, SeatIndex: 1}
	cfg := Config{SmallBlind: 10, BigBlind: 20, MinBuyIn: 200, MaxBuyIn: 2000}
	h := New(cfg, []*Player{p0, p1}, -1, 0, testLog(), rand.New(rand.NewSource(42)), testClock)
	return h, p0, p1
}

func totalChips(h *Hand) int64 {
	var total int64
	for _, p := range h.players {
		total += p.ChipsAtSeat + p.CommittedTotal
	}
	return total
}

// TestChipConservationThroughCheckedDownHand drives a full heads-up hand
// where both players check every street, and asserts the sum of chip
// stacks after distribution equals the sum before - the hand can reorder
// chips between players but never create or destroy any.
func TestChipConservationThroughCheckedDownHand(t *testing.T) {
	h, p0, p1 := newHeadsUp(t, 1000)
	before := totalChips(h)
	require.Equal(t, int64(2000), before)

	h.Advance()
	actor, ok := h.CurrentActor()
	require.True(t, ok)
	require.Equal(t, p0.UserID, actor)

	require.NoError(t, h.Apply(p0.UserID, Action{Kind: ActionCall}))
	actor, ok = h.CurrentActor()
	require.True(t, ok)
	require.Equal(t, p1.UserID, actor)
	require.NoError(t, h.Apply(p1.UserID, Action{Kind: ActionCheck}))

	for street := 0; street < 3; street++ {
		actor, ok = h.CurrentActor()
		require.True(t, ok, "street %d first actor", street)
		require.Equal(t, p1.UserID, actor)
		require.NoError(t, h.Apply(p1.UserID, Action{Kind: ActionCheck}))

		actor, ok = h.CurrentActor()
		require.True(t, ok, "street %d second actor", street)
		require.Equal(t, p0.UserID, actor)
		require.NoError(t, h.Apply(p0.UserID, Action{Kind: ActionCheck}))
	}

	require.NotNil(t, h.Result())
	require.True(t, h.Result().Showdown)
	require.Equalf(t, before, totalChips(h), "chip totals diverged, final players: %s", spew.Sdump(h.players))

	var awarded int64
	for _, a := range h.Result().PotAwards {
		for _, amt := range a.Payouts {
			awarded += amt
		}
	}
	require.Equal(t, int64(40), awarded) // both blinds matched, nobody raised
}

// TestPotRemainderGoesInSeatOrderAfterButton is the literal spec scenario:
// a 100-chip pot split three ways distributes as [34, 33, 33], the extra
// chip going to the first eligible seat left of the button.
func TestPotRemainderGoesInSeatOrderAfterButton(t *testing.T) {
	players := make([]*Player, 4)
	for i := range players {
		players[i] = &Player{UserID: seatName(i), State: Playing, SeatIndex: i}
	}
	h := &Hand{players: players, buttonSeat: 0}
	h.indexSeats()

	tie := eval.HandValue{Category: eval.Pair, Tiebreak: []int{9, 4}}
	for _, i := range []int{1, 2, 3} {
		players[i].HandValue = &tie
	}

	pot := &Pot{Amount: 100, Eligible: map[string]bool{"p1": true, "p2": true, "p3": true}}
	award := h.awardPot(pot)

	require.Equal(t, int64(34), award.Payouts["p1"])
	require.Equal(t, int64(33), award.Payouts["p2"])
	require.Equal(t, int64(33), award.Payouts["p3"])
}

func seatName(i int) string {
	return []string{"p0", "p1", "p2", "p3"}[i]
}

// TestAllInWheelBuildsThreeSidePots reproduces the spec scenario of three
// players shoving unequal stacks (100, 200, 300): three side pots of
// 300, 200 and 100 chips with 3, 2 and 1 eligible players respectively.
func TestAllInWheelBuildsThreeSidePots(t *testing.T) {
	short := &Player{UserID: "short", State: AllIn, CommittedTotal: 100}
	mid := &Player{UserID: "mid", State: AllIn, CommittedTotal: 200}
	big := &Player{UserID: "big", State: AllIn, CommittedTotal: 300}
	h := &Hand{players: []*Player{short, mid, big}, buttonSeat: 0}
	h.indexSeats()

	h.buildPots()
	require.Len(t, h.pots, 3)
	require.Equal(t, int64(300), h.pots[0].Amount)
	require.Len(t, h.pots[0].Eligible, 3)
	require.Equal(t, int64(200), h.pots[1].Amount)
	require.Len(t, h.pots[1].Eligible, 2)
	require.Equal(t, int64(100), h.pots[2].Amount)
	require.Len(t, h.pots[2].Eligible, 1)
}

// TestShortStackBlindGoesAllIn: a player with fewer chips than the blind
// owed posts what they have and is marked all-in, never going negative.
func TestShortStackBlindGoesAllIn(t *testing.T) {
	h := &Hand{}
	p := &Player{UserID: "shorty", ChipsAtSeat: 5, State: Playing}
	h.commit(p, 10)
	require.Equal(t, int64(0), p.ChipsAtSeat)
	require.Equal(t, int64(5), p.CommittedThisStreet)
	require.Equal(t, AllIn, p.State)
}

func TestRoundCompleteWithFoldedDownToOne(t *testing.T) {
	a := &Player{UserID: "a", State: Folded}
	b := &Player{UserID: "b", State: Playing, CommittedThisStreet: 20, HasActedThisStreet: true}
	h := &Hand{players: []*Player{a, b}, currentBet: 20}
	require.True(t, h.roundComplete())
	require.Equal(t, 1, h.countContenders())
}

// TestShortAllInDoesNotReopenBettingForAlreadyActedPlayers drives the
// textbook short-all-in scenario: a raise to 100, a call, then a
// too-small all-in raise that must not give the raiser and caller a new
// decision, only a forced call-or-fold.
func TestShortAllInDoesNotReopenBettingForAlreadyActedPlayers(t *testing.T) {
	p0 := &Player{UserID: "p0", ChipsAtSeat: 1000, State: Waiting, SeatIndex: 0}
	p1 := &Player{UserID: "p1", ChipsAtSeat: 1000, State: Waiting, SeatIndex: 1}
	p2 := &Player{UserID: "p2", ChipsAtSeat: 120, State: Waiting, SeatIndex: 2}
	cfg := Config{SmallBlind: 10, BigBlind: 20, MinBuyIn: 20, MaxBuyIn: 2000}
	h := New(cfg, []*Player{p0, p1, p2}, -1, 0, testLog(), rand.New(rand.NewSource(1)), testClock)
	h.Advance()

	actor, ok := h.CurrentActor()
	require.True(t, ok)
	require.Equal(t, "p0", actor, "3-handed preflop action starts on the button")
	require.NoError(t, h.Apply("p0", Action{Kind: ActionRaise, RaiseMode: RaiseTo, Amount: 100}))

	actor, ok = h.CurrentActor()
	require.True(t, ok)
	require.Equal(t, "p1", actor)
	require.NoError(t, h.Apply("p1", Action{Kind: ActionCall}))

	actor, ok = h.CurrentActor()
	require.True(t, ok)
	require.Equal(t, "p2", actor)
	require.NoError(t, h.Apply("p2", Action{Kind: ActionAllIn}))

	// p2's all-in raises to 120, only a 20-chip increment over the
	// 80-chip minimum raise (100 - the prior 20 big blind): too small to
	// reopen action for p0 or p1, who already acted this street.
	actor, ok = h.CurrentActor()
	require.True(t, ok)
	require.Equal(t, "p0", actor)

	legal, err := h.LegalActions("p0")
	require.NoError(t, err)
	var kinds []ActionKind
	for _, la := range legal {
		kinds = append(kinds, la.Kind)
	}
	require.Contains(t, kinds, ActionFold)
	require.Contains(t, kinds, ActionCall)
	require.NotContains(t, kinds, ActionRaise)
	require.NotContains(t, kinds, ActionAllIn)

	require.Error(t, h.Apply("p0", Action{Kind: ActionRaise, RaiseMode: RaiseTo, Amount: 200}))
	require.NoError(t, h.Apply("p0", Action{Kind: ActionCall}))
}
