package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/decred/slog"

	"github.com/holdencore/pokercore/pkg/card"
	"github.com/holdencore/pokercore/pkg/pokererr"
	"github.com/holdencore/pokercore/pkg/statemachine"
)

// Config holds the blind structure and buy-in bounds a Hand is dealt
// under. The table actor owns blind escalation and applies new blind
// levels to its one long-lived Hand through SetBlinds.
type Config struct {
	SmallBlind int64
	BigBlind   int64
	MaxBuyIn   int64
	MinBuyIn   int64
}

// Result is the outcome of one completed hand, enough for the table actor
// to settle chips, log a history row, and notify players.
type Result struct {
	Board      []card.Card
	PotAwards  []PotAward
	Showdown   bool
}

// PotAward records one pot's winners and the per-winner payout, already
// including any odd-chip remainder resolved in seat order after the
// button.
type PotAward struct {
	Amount  int64
	Winners []string
	Payouts map[string]int64
}

// Hand drives a table's deals, one per pass from SeatPlayers through
// BootPlayers and back to Lobby. It is not safe for concurrent use: the
// table actor that owns it serializes every call.
type Hand struct {
	cfg    Config
	log    slog.Logger
	rng    *rand.Rand
	clock  func() time.Time

	number      int
	players     []*Player // seat order; buttonSeat is an index into it
	seatIndexOf map[string]int

	buttonSeat int
	deck       *card.Deck
	board      []card.Card

	street        Street
	currentBet    int64
	minRaiseSize  int64
	lastAggressor int // index into players, -1 if none yet this street
	actingIndex   int
	bbIndex       int

	pots []*Pot

	awaitingInput bool
	stateName     string
	result        *Result
	onComplete    func(*Result)

	machine *statemachine.Machine[Hand]
}

// New constructs a Hand that cycles Lobby -> ... -> BootPlayers -> Lobby,
// dealing one hand per cycle. seated is the initial seat lineup
// (ascending SeatIndex); buttonSeat is its slice index, or -1 if there is
// no prior button. number is the hand counter to start from; it is
// incremented every time SeatPlayers deals a new hand.
func New(cfg Config, seated []*Player, buttonSeat int, number int, log slog.Logger, rng *rand.Rand, clock func() time.Time) *Hand {
	h := &Hand{
		cfg:        cfg,
		log:        log,
		rng:        rng,
		clock:      clock,
		number:     number,
		buttonSeat: buttonSeat,
		players:    seated,
	}
	h.indexSeats()
	h.machine = statemachine.New(h, stateLobby)
	return h
}

// SetOnComplete registers a callback invoked synchronously from within
// Advance whenever a hand finishes at DistributePot, before RemovePlayers
// runs. The table actor uses this to settle the ledger and notify seats.
func (h *Hand) SetOnComplete(fn func(*Result)) {
	h.onComplete = fn
}

// Stop terminates the machine; Done() becomes true and Advance is a
// no-op afterward. Used when a table is being torn down mid-lobby.
func (h *Hand) Stop() {
	h.machine.SetState(func(*Hand, func(string, statemachine.Event)) statemachine.Fn[Hand] {
		return nil
	})
}

// SeatNewPlayer adds a player to the lineup. Only valid between hands
// (while the machine is parked in Lobby awaiting input).
func (h *Hand) SeatNewPlayer(p *Player) error {
	if h.stateName != "lobby" {
		return fmt.Errorf("engine: cannot seat a player mid-hand (state=%s)", h.stateName)
	}
	h.players = append(h.players, p)
	h.indexSeats()
	return nil
}

// MarkLeaving flags a seated player to be dropped at the next SeatPlayers
// filter. If the hand is currently parked in Lobby the player is removed
// immediately.
func (h *Hand) MarkLeaving(userID string) error {
	p, idx, err := h.playerByID(userID)
	if err != nil {
		return err
	}
	if h.stateName == "lobby" {
		h.players = append(h.players[:idx], h.players[idx+1:]...)
		if h.buttonSeat > idx {
			h.buttonSeat--
		}
		h.indexSeats()
		return nil
	}
	p.State = Leaving
	return nil
}

// SetSittingOut toggles a seated player's sitting-out status, e.g. to
// return a player a table vote has reset to active play. It never
// touches a player already Leaving.
func (h *Hand) SetSittingOut(userID string, sittingOut bool) error {
	p, _, err := h.playerByID(userID)
	if err != nil {
		return err
	}
	if p.State == Leaving {
		return nil
	}
	if sittingOut {
		p.State = SittingOut
		return nil
	}
	if p.State == SittingOut {
		p.State = Waiting
	}
	return nil
}

// Advance drives the state machine until it reaches a state that must
// wait for external input (Lobby with too few players, or TakeAction
// waiting on the next actor) or the machine is stopped. A finished hand
// passes back through Lobby and, when at least two players can be dealt
// in, straight on into the next deal within the same call. Callers
// invoke this after every external mutation: a join, a submitted action,
// or a clock Tick.
func (h *Hand) Advance() {
	observe := func(state string, event statemachine.Event) {
		if event == statemachine.Entered {
			h.log.Debugf("hand %d entering state %s", h.number, state)
		}
	}
	if h.stateName == "lobby" {
		// A parked Lobby re-checks its player count on every call.
		h.awaitingInput = false
	}
	for i := 0; i < 32 && !h.machine.Done() && !h.awaitingInput; i++ {
		h.machine.Dispatch(observe)
	}
}

// Done reports whether the machine has been stopped (see Stop); until
// then it keeps cycling back through Lobby.
func (h *Hand) Done() bool {
	return h.machine.Done()
}

func (h *Hand) State() string { return h.stateName }

func (h *Hand) Number() int { return h.number }

func (h *Hand) Board() []card.Card {
	out := make([]card.Card, len(h.board))
	copy(out, h.board)
	return out
}

func (h *Hand) Pots() []Pot {
	out := make([]Pot, len(h.pots))
	for i, p := range h.pots {
		out[i] = *p
	}
	return out
}

func (h *Hand) Players() []Player {
	out := make([]Player, len(h.players))
	for i, p := range h.players {
		out[i] = *p
	}
	return out
}

// Result returns the outcome of the most recently completed hand, or nil
// if no hand has completed yet.
func (h *Hand) Result() *Result { return h.result }

// Config returns the blind structure and buy-in bounds currently in
// effect.
func (h *Hand) Config() Config { return h.cfg }

// SetBlinds lets the table actor apply its own escalation schedule. The
// new amounts are posted from the next CollectBlinds on; a call made
// while a hand is in progress also sets the minimum opening bet on that
// hand's remaining streets, which reads the big blind at each street.
func (h *Hand) SetBlinds(small, big int64) {
	h.cfg.SmallBlind = small
	h.cfg.BigBlind = big
}

// ButtonSeat returns the slice index of the current button.
func (h *Hand) ButtonSeat() int { return h.buttonSeat }

// LastAggressor returns the user_id who last bet or raised this street,
// and false if the street has seen only checks and calls so far.
func (h *Hand) LastAggressor() (string, bool) {
	if h.lastAggressor < 0 || h.lastAggressor >= len(h.players) {
		return "", false
	}
	return h.players[h.lastAggressor].UserID, true
}

func (h *Hand) playerByID(userID string) (*Player, int, error) {
	if h.seatIndexOf != nil {
		if idx, ok := h.seatIndexOf[userID]; ok {
			return h.players[idx], idx, nil
		}
		return nil, -1, pokererr.NotSeatedf("player %q not in this hand", userID)
	}
	for i, p := range h.players {
		if p.UserID == userID {
			return p, i, nil
		}
	}
	return nil, -1, pokererr.NotSeatedf("player %q not in this hand", userID)
}

func (h *Hand) indexSeats() {
	h.seatIndexOf = make(map[string]int, len(h.players))
	for i, p := range h.players {
		h.seatIndexOf[p.UserID] = i
	}
}

// CurrentActor returns the user_id whose turn it is, if the hand is
// currently awaiting an action.
func (h *Hand) CurrentActor() (string, bool) {
	if h.stateName != "take_action" || !h.awaitingInput {
		return "", false
	}
	if h.actingIndex < 0 || h.actingIndex >= len(h.players) {
		return "", false
	}
	return h.players[h.actingIndex].UserID, true
}

// AwaitingPlayers reports whether the hand is parked in Lobby waiting for
// more seated players before it can deal.
func (h *Hand) AwaitingPlayers() bool {
	return h.stateName == "lobby" && h.awaitingInput
}

// AddChips credits amount to a seated player's stack, used by the table
// actor after a ledger top-up clears escrow.
func (h *Hand) AddChips(userID string, amount int64) error {
	p, _, err := h.playerByID(userID)
	if err != nil {
		return err
	}
	p.ChipsAtSeat += amount
	return nil
}

// View is everything one seat is entitled to see about the hand in
// progress: its own hole cards, the shared board, and the current
// betting bounds. It never exposes another seat's hole cards.
type View struct {
	Street              Street
	Board               []card.Card
	Hole                []card.Card
	Pot                 int64
	CurrentBet          int64
	MinRaiseSize        int64
	ToCall              int64
	CommittedThisStreet int64
	Stack               int64
	Position             int // seats left of the button, 0 = button
	ActivePlayers        int
	Legal                []LegalAction
}

// View returns userID's view of the hand. Legal is only populated when
// it is currently userID's turn.
func (h *Hand) View(userID string) (View, error) {
	p, idx, err := h.playerByID(userID)
	if err != nil {
		return View{}, err
	}
	var pot int64
	for _, pl := range h.players {
		pot += pl.CommittedTotal
	}
	n := len(h.players)
	pos := idx - h.buttonSeat
	if pos < 0 {
		pos += n
	}
	v := View{
		Street:              h.street,
		Board:               h.Board(),
		Hole:                append([]card.Card{}, p.HoleCards...),
		Pot:                 pot,
		CurrentBet:          h.currentBet,
		MinRaiseSize:        h.minRaiseSize,
		ToCall:              h.currentBet - p.CommittedThisStreet,
		CommittedThisStreet: p.CommittedThisStreet,
		Stack:               p.ChipsAtSeat,
		Position:            pos,
		ActivePlayers:       h.countContenders(),
	}
	if actor, ok := h.CurrentActor(); ok && actor == userID {
		v.Legal, _ = h.LegalActions(userID)
	}
	return v, nil
}
