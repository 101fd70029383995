package table

import (
	"time"

	"github.com/holdencore/pokercore/pkg/engine"
)

// Message is anything a table actor's mailbox can carry. Request
// messages carry their own reply channel; fire-and-forget messages (Tick,
// Disconnect) carry none. A caller never blocks waiting on anything but
// its own reply.
type Message interface {
	isTableMessage()
}

type Join struct {
	UserID     string
	Username   string
	Passphrase string
	BuyIn      int64
	Bot        bool
	Reply      chan error
}

type Leave struct {
	UserID string
	Reply  chan error
}

type TakeAction struct {
	UserID string
	Action engine.Action
	Reply  chan error
}

type TopUp struct {
	UserID string
	Amount int64
	Reply  chan error
}

type Spectate struct {
	UserID string
	Reply  chan error
}

type StopSpectate struct {
	UserID string
	Reply  chan error
}

// VoteKind is one of the two ballot kinds spec §4.C names: kicking a
// seated player or resetting the table (blinds, or one player's
// sitting-out status) back to its starting point.
type VoteKind int

const (
	VoteKick VoteKind = iota
	VoteReset
)

// Vote casts one ballot. Target is the user_id to kick for VoteKick;
// for VoteReset it names the player to un-sit-out, or is empty to mean
// "reset the table's blind level". A kick/reset executes once a
// (Kind, Target, hand) ballot box holds strictly more than half of the
// table's seated humans; replaying the same voter's ballot for that box
// returns Conflict ("already voted").
type Vote struct {
	UserID string
	Kind   VoteKind
	Target string
	Reply  chan error
}

type Tick struct {
	Now time.Time
}

type Disconnect struct {
	UserID string
}

// botAct is an internal self-message: a scheduled bot decision, tagged
// with the hand number it was scheduled for. A timer that fires after
// that hand has ended, or when it is no longer that bot's turn, is
// silently dropped. The street field is not set by the scheduler and is
// not checked when the message arrives.
type botAct struct {
	userID      string
	handNumber  int
	street      engine.Street
}

func (Join) isTableMessage()         {}
func (Leave) isTableMessage()        {}
func (TakeAction) isTableMessage()   {}
func (TopUp) isTableMessage()        {}
func (Spectate) isTableMessage()     {}
func (StopSpectate) isTableMessage() {}
func (Vote) isTableMessage()         {}
func (Tick) isTableMessage()         {}
func (Disconnect) isTableMessage()   {}
func (botAct) isTableMessage()       {}
