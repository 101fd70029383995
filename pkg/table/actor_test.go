package table

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/holdencore/pokercore/pkg/engine"
	"github.com/holdencore/pokercore/pkg/ledger"
)

func testLog() slog.Logger {
	backend := slog.NewBackend(io.Discard)
	l := backend.Logger("TABLE")
	l.SetLevel(slog.LevelOff)
	return l
}

func newTestActor(t *testing.T) (*Actor, *ledger.Ledger) {
	t.Helper()
	store, err := ledger.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), testLog())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		TableID:    "t1",
		MaxSeats:   6,
		MinBuyIn:   100,
		MaxBuyIn:   2000,
		SmallBlind: 10,
		BigBlind:   20,
	}
	actor := NewActor(cfg, store, testLog(), rand.New(rand.NewSource(7)), func() time.Time { return time.Unix(0, 0) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)
	return actor, store
}

func fund(t *testing.T, store *ledger.Ledger, userID string, amount int64) {
	t.Helper()
	require.NoError(t, store.ClaimFaucet(context.Background(), "seed-"+userID, userID, amount, time.Hour))
}

func join(t *testing.T, a *Actor, userID, username string, buyIn int64) error {
	t.Helper()
	reply := make(chan error, 1)
	a.Send(Join{UserID: userID, Username: username, BuyIn: buyIn, Reply: reply})
	return <-reply
}

func TestJoinDebitsWalletAndCreditsEscrow(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)

	require.NoError(t, join(t, actor, "alice", "alice", 500))

	bal, err := store.Wallet(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(500), bal)

	escrow, err := store.Escrow(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, int64(500), escrow)
}

func TestJoinRejectsWrongPassphrase(t *testing.T) {
	store, err := ledger.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), testLog())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cfg := Config{TableID: "t2", Passphrase: "secret", MaxSeats: 6, MinBuyIn: 100, MaxBuyIn: 2000, SmallBlind: 10, BigBlind: 20}
	actor := NewActor(cfg, store, testLog(), rand.New(rand.NewSource(1)), func() time.Time { return time.Unix(0, 0) })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)

	fund(t, store, "alice", 1000)
	reply := make(chan error, 1)
	actor.Send(Join{UserID: "alice", Username: "alice", BuyIn: 500, Passphrase: "wrong", Reply: reply})
	require.Error(t, <-reply)
}

func TestJoinRejectsBuyInOutOfRange(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	require.Error(t, join(t, actor, "alice", "alice", 10))
	require.Error(t, join(t, actor, "alice", "alice", 99999))
}

func TestTwoPlayerHandPlaysThroughMessages(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	fund(t, store, "bob", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))
	require.NoError(t, join(t, actor, "bob", "bob", 500))

	sync := func() {
		reply := make(chan error, 1)
		actor.Send(Spectate{UserID: "sync", Reply: reply})
		<-reply
	}

	actor.Send(Tick{Now: time.Unix(1, 0)})
	sync()

	takeAction := func(userID string, action engine.Action) error {
		reply := make(chan error, 1)
		actor.Send(TakeAction{UserID: userID, Action: action, Reply: reply})
		select {
		case err := <-reply:
			return err
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for take-action reply")
			return nil
		}
	}

	// Drive a fully-checked-down hand regardless of who the engine made
	// the button; both players only ever owe a call-to-20 or a check.
	for i := 0; i < 12; i++ {
		view, ok := actor.hand.CurrentActor()
		if !ok {
			break
		}
		legal, err := actor.hand.LegalActions(view)
		require.NoError(t, err)
		var action engine.Action
		for _, la := range legal {
			if la.Kind == engine.ActionCall {
				action = engine.Action{Kind: engine.ActionCall}
				break
			}
			if la.Kind == engine.ActionCheck {
				action = engine.Action{Kind: engine.ActionCheck}
			}
		}
		require.NoError(t, takeAction(view, action))
	}

	reply := make(chan error, 1)
	actor.Send(Spectate{UserID: "watcher", Reply: reply})
	require.NoError(t, <-reply)
}

func TestLeaveCashesOutWhenInLobby(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))

	reply := make(chan error, 1)
	actor.Send(Leave{UserID: "alice", Reply: reply})
	require.NoError(t, <-reply)

	bal, err := store.Wallet(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)
}

func topUp(t *testing.T, a *Actor, userID string, amount int64) error {
	t.Helper()
	reply := make(chan error, 1)
	a.Send(TopUp{UserID: userID, Amount: amount, Reply: reply})
	return <-reply
}

func TestTopUpRejectsUnseatedPlayer(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	require.Error(t, topUp(t, actor, "alice", 100))
}

func TestTopUpCreditsEscrowAndStack(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))

	require.NoError(t, topUp(t, actor, "alice", 200))

	escrow, err := store.Escrow(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, int64(700), escrow)

	p, found := findPlayer(actor, "alice")
	require.True(t, found)
	require.Equal(t, int64(700), p.ChipsAtSeat)
}

func TestTopUpRejectsWithinCooldown(t *testing.T) {
	store, err := ledger.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), testLog())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cfg := Config{
		TableID: "t3", MaxSeats: 6, MinBuyIn: 100, MaxBuyIn: 5000,
		SmallBlind: 10, BigBlind: 20, TopUpCooldownHands: 3,
	}
	actor := NewActor(cfg, store, testLog(), rand.New(rand.NewSource(2)), func() time.Time { return time.Unix(0, 0) })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)

	fund(t, store, "alice", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))
	require.NoError(t, topUp(t, actor, "alice", 100))

	err = topUp(t, actor, "alice", 100)
	require.Error(t, err)
}

func TestTopUpRejectsExceedingChipCap(t *testing.T) {
	store, err := ledger.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), testLog())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cfg := Config{
		TableID: "t4", MaxSeats: 6, MinBuyIn: 100, MaxBuyIn: 5000,
		SmallBlind: 10, BigBlind: 20, AbsoluteChipCap: 600,
	}
	actor := NewActor(cfg, store, testLog(), rand.New(rand.NewSource(3)), func() time.Time { return time.Unix(0, 0) })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go actor.Run(ctx)

	fund(t, store, "alice", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))
	require.Error(t, topUp(t, actor, "alice", 200))
}

func findPlayer(a *Actor, userID string) (engine.Player, bool) {
	for _, p := range a.hand.Players() {
		if p.UserID == userID {
			return p, true
		}
	}
	return engine.Player{}, false
}

func vote(t *testing.T, a *Actor, userID string, kind VoteKind, target string) error {
	t.Helper()
	reply := make(chan error, 1)
	a.Send(Vote{UserID: userID, Kind: kind, Target: target, Reply: reply})
	return <-reply
}

func TestVoteKickExecutesOnlyPastMajority(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	fund(t, store, "bob", 1000)
	fund(t, store, "carol", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))
	require.NoError(t, join(t, actor, "bob", "bob", 500))
	require.NoError(t, join(t, actor, "carol", "carol", 500))

	require.NoError(t, vote(t, actor, "alice", VoteKick, "carol"))
	_, found := findPlayer(actor, "carol")
	require.True(t, found, "one of three votes should not yet kick carol")

	require.NoError(t, vote(t, actor, "bob", VoteKick, "carol"))
	p, found := findPlayer(actor, "carol")
	if found {
		require.Equal(t, engine.Leaving, p.State)
	}
}

func TestVoteRejectsDuplicateBallot(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	fund(t, store, "bob", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))
	require.NoError(t, join(t, actor, "bob", "bob", 500))

	require.NoError(t, vote(t, actor, "alice", VoteKick, "bob"))
	require.Error(t, vote(t, actor, "alice", VoteKick, "bob"))
}

func TestDisconnectRemovesSeatedPlayer(t *testing.T) {
	actor, store := newTestActor(t)
	fund(t, store, "alice", 1000)
	require.NoError(t, join(t, actor, "alice", "alice", 500))

	actor.Send(Disconnect{UserID: "alice"})

	sync := make(chan error, 1)
	actor.Send(Spectate{UserID: "sync", Reply: sync})
	<-sync

	bal, err := store.Wallet(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1000), bal)
}

func TestIngressLimiterCapsConcurrency(t *testing.T) {
	l := NewIngressLimiter()
	var releases []func()
	for i := 0; i < maxConcurrent; i++ {
		release, ok := l.Allow("1.2.3.4")
		require.True(t, ok)
		releases = append(releases, release)
	}
	_, ok := l.Allow("1.2.3.4")
	require.False(t, ok, "sixth concurrent slot should be refused")

	releases[0]()
	_, ok = l.Allow("1.2.3.4")
	require.True(t, ok, "releasing a slot should free capacity")
}

func TestCheckPassphraseConstantTime(t *testing.T) {
	require.True(t, checkPassphrase("abc", "abc"))
	require.False(t, checkPassphrase("abc", "abd"))
	require.True(t, checkPassphrase("anything", ""))
}
