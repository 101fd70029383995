// Package table implements the table actor: one goroutine per table
// owning exclusive access to an engine.Hand, driven entirely by a FIFO
// mailbox of Message values. Nothing outside this package's Run loop
// ever touches a Hand directly, so the engine package itself needs no
// locking.
package table

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"math/rand"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/holdencore/pokercore/pkg/bot"
	"github.com/holdencore/pokercore/pkg/engine"
	"github.com/holdencore/pokercore/pkg/ledger"
	"github.com/holdencore/pokercore/pkg/pokererr"
)

// MaxBotsPerTable caps how many synthetic seats a table will fill on its
// own; beyond this a table relies on humans joining.
const MaxBotsPerTable = 8

// Config is one table's static rules. Passphrase gates Join; an empty
// Passphrase means the table is open.
type Config struct {
	TableID               string
	Passphrase            string
	MaxSeats              int
	MinBuyIn              int64
	MaxBuyIn              int64
	SmallBlind            int64
	BigBlind              int64
	BlindIncreaseInterval time.Duration
	BlindIncreaseFactor   float64

	// AbsoluteChipCap bounds ChipsAtSeat after any top-up; <= 0 means
	// uncapped.
	AbsoluteChipCap int64
	// TopUpCooldownHands is the minimum number of hands that must pass
	// between two top-ups by the same player.
	TopUpCooldownHands int
	// ActionTimeout is carried with the table's rules, but neither the
	// actor nor its Tick handling reads it: a seated human who does not
	// act is never auto-folded or auto-checked.
	ActionTimeout time.Duration

	BotsEnabled    bool
	TargetBotCount int
	BotDifficulty  bot.Difficulty
}

// Actor runs one table's game loop. Construct with NewActor and call Run
// in its own goroutine; send it Messages from any other goroutine.
type Actor struct {
	cfg     Config
	mailbox chan Message
	ledger  *ledger.Ledger
	hand    *engine.Hand
	log     slog.Logger
	rng     *rand.Rand
	clock   func() time.Time

	spectators  map[string]bool
	botProfiles map[string]bot.Profile
	botOrder    []string // user_ids of seated bots, oldest first, for FIFO despawn
	pendingJoin []*engine.Player

	lastBlindIncrease time.Time
	scheduledBotAt    map[string]int // userID -> hand number the pending timer was scheduled for
	topUpTracker      map[string]int // userID -> hand number of that player's last top-up
	ballots           map[string]map[string]bool // "kind:target:hand" -> set of voter user_ids
}

// NewActor constructs a table actor. The mailbox has modest buffering so
// a burst of concurrent client requests doesn't block senders; the actor
// itself still processes one message at a time.
func NewActor(cfg Config, store *ledger.Ledger, log slog.Logger, rng *rand.Rand, clock func() time.Time) *Actor {
	handCfg := engine.Config{SmallBlind: cfg.SmallBlind, BigBlind: cfg.BigBlind, MinBuyIn: cfg.MinBuyIn, MaxBuyIn: cfg.MaxBuyIn}
	a := &Actor{
		cfg:            cfg,
		mailbox:        make(chan Message, 64),
		ledger:         store,
		log:            log,
		rng:            rng,
		clock:          clock,
		spectators:     make(map[string]bool),
		botProfiles:    make(map[string]bot.Profile),
		scheduledBotAt: make(map[string]int),
		topUpTracker:   make(map[string]int),
		ballots:        make(map[string]map[string]bool),
	}
	a.hand = engine.New(handCfg, nil, -1, 0, log, rng, clock)
	a.hand.SetOnComplete(a.onHandComplete)
	a.lastBlindIncrease = clock()
	return a
}

// Send enqueues a message. It only ever blocks if the mailbox is full,
// which signals the actor is falling behind its inbound rate.
func (a *Actor) Send(m Message) {
	a.mailbox <- m
}

// Run drains the mailbox until ctx is canceled.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.hand.Stop()
			return
		case m := <-a.mailbox:
			a.handle(ctx, m)
		}
	}
}

func (a *Actor) handle(ctx context.Context, m Message) {
	switch msg := m.(type) {
	case Join:
		msg.Reply <- a.handleJoin(ctx, msg)
	case Leave:
		msg.Reply <- a.handleLeave(ctx, msg)
	case TakeAction:
		msg.Reply <- a.handleTakeAction(msg)
	case TopUp:
		msg.Reply <- a.handleTopUp(ctx, msg)
	case Spectate:
		a.spectators[msg.UserID] = true
		if msg.Reply != nil {
			msg.Reply <- nil
		}
	case StopSpectate:
		delete(a.spectators, msg.UserID)
		if msg.Reply != nil {
			msg.Reply <- nil
		}
	case Vote:
		msg.Reply <- a.handleVote(msg)
	case Tick:
		a.handleTick(ctx, msg)
	case Disconnect:
		a.handleDisconnect(ctx, msg)
	case botAct:
		a.handleBotAct(msg)
	default:
		a.log.Warnf("table %s: unknown message type %T", a.cfg.TableID, m)
	}
}

func checkPassphrase(given, want string) bool {
	if want == "" {
		return true
	}
	g := sha256.Sum256([]byte(given))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}

func (a *Actor) handleJoin(ctx context.Context, m Join) error {
	if !checkPassphrase(m.Passphrase, a.cfg.Passphrase) {
		return pokererr.Unauth("wrong passphrase for table %s", a.cfg.TableID)
	}
	if m.BuyIn < a.cfg.MinBuyIn || m.BuyIn > a.cfg.MaxBuyIn {
		return pokererr.Invalid("buy-in %d outside [%d, %d]", m.BuyIn, a.cfg.MinBuyIn, a.cfg.MaxBuyIn)
	}
	if len(a.hand.Players())+len(a.pendingJoin) >= a.cfg.MaxSeats {
		return pokererr.Conflictf("table %s is full", a.cfg.TableID)
	}

	idemKey := uuid.NewString()
	if m.Bot {
		// Bot chips were never anyone's wallet balance: mint them straight
		// into the table's escrow instead of debiting a human account.
		if err := a.ledger.CreditEscrowServerFunded(ctx, idemKey, a.cfg.TableID, m.BuyIn, "bot seat fill"); err != nil {
			return err
		}
	} else if err := a.ledger.TransferToEscrow(ctx, idemKey, m.UserID, a.cfg.TableID, m.BuyIn, ledger.EntryBuyIn, "table buy-in"); err != nil {
		return err
	}

	p := &engine.Player{UserID: m.UserID, Username: m.Username, ChipsAtSeat: m.BuyIn, State: engine.Waiting}
	if m.Bot {
		a.botProfiles[m.UserID] = bot.Presets[a.cfg.BotDifficulty]
		a.botOrder = append(a.botOrder, m.UserID)
	}

	if a.hand.AwaitingPlayers() || a.hand.Done() {
		if err := a.hand.SeatNewPlayer(p); err != nil {
			return err
		}
	} else {
		a.pendingJoin = append(a.pendingJoin, p)
	}
	a.hand.Advance()
	a.drainPendingJoins()
	if !m.Bot {
		a.despawnExcessBots(ctx)
	}
	return nil
}

// despawnExcessBots removes seated bots FIFO once humans fill enough of
// target_bot_count that fewer bots are needed.
func (a *Actor) despawnExcessBots(ctx context.Context) {
	humans := a.seatedHumanCount()
	allowedBots := a.cfg.TargetBotCount - humans
	if allowedBots < 0 {
		allowedBots = 0
	}
	for len(a.botOrder) > allowedBots {
		userID := a.botOrder[0]
		a.botOrder = a.botOrder[1:]
		if err := a.handleLeave(ctx, Leave{UserID: userID}); err != nil {
			a.log.Warnf("table %s: despawn bot %s: %v", a.cfg.TableID, userID, err)
		}
	}
}

func (a *Actor) seatedHumanCount() int {
	n := 0
	for _, p := range a.hand.Players() {
		if _, isBot := a.botProfiles[p.UserID]; !isBot {
			n++
		}
	}
	return n
}

func (a *Actor) seatedBotCount() int {
	n := 0
	for _, p := range a.hand.Players() {
		if _, isBot := a.botProfiles[p.UserID]; isBot {
			n++
		}
	}
	return n
}

// drainPendingJoins seats anyone who tried to join mid-hand as soon as
// the machine parks back in Lobby.
func (a *Actor) drainPendingJoins() {
	if len(a.pendingJoin) == 0 || !a.hand.AwaitingPlayers() {
		return
	}
	for _, p := range a.pendingJoin {
		_ = a.hand.SeatNewPlayer(p)
	}
	a.pendingJoin = nil
	a.hand.Advance()
}

func (a *Actor) handleLeave(ctx context.Context, m Leave) error {
	players := a.hand.Players()
	var found *engine.Player
	for i := range players {
		if players[i].UserID == m.UserID {
			found = &players[i]
			break
		}
	}
	if found == nil {
		a.removeBot(m.UserID)
		return nil
	}
	if found.State == engine.Playing {
		_ = a.hand.Apply(m.UserID, engine.Action{Kind: engine.ActionFold})
	}
	if err := a.hand.MarkLeaving(m.UserID); err != nil {
		return err
	}
	_, wasBot := a.botProfiles[m.UserID]
	a.removeBot(m.UserID)
	// If the removal happened immediately (we were in Lobby) cash out now;
	// otherwise onHandComplete settles it once the in-progress hand ends.
	// A bot's stack was server-minted, never a wallet balance, so it is
	// simply absorbed back into the table rather than paid out.
	if a.hand.AwaitingPlayers() && !wasBot {
		idemKey := uuid.NewString()
		if found.ChipsAtSeat > 0 {
			return a.ledger.TransferFromEscrow(ctx, idemKey, a.cfg.TableID, m.UserID, found.ChipsAtSeat, ledger.EntryCashOut, "table cash-out")
		}
	}
	a.hand.Advance()
	return nil
}

func (a *Actor) removeBot(userID string) {
	delete(a.botProfiles, userID)
	for i, id := range a.botOrder {
		if id == userID {
			a.botOrder = append(a.botOrder[:i], a.botOrder[i+1:]...)
			break
		}
	}
}

// seatedPlayer returns the seated player matching userID, or NotSeated if
// the user_id is unknown at this table (a spectator or stranger).
func (a *Actor) seatedPlayer(userID string) (*engine.Player, error) {
	players := a.hand.Players()
	for i := range players {
		if players[i].UserID == userID {
			return &players[i], nil
		}
	}
	return nil, pokererr.NotSeatedf("%q is not seated at table %s", userID, a.cfg.TableID)
}

func (a *Actor) handleTopUp(ctx context.Context, m TopUp) error {
	if m.Amount <= 0 {
		return pokererr.Invalid("top-up amount must be positive")
	}
	p, err := a.seatedPlayer(m.UserID)
	if err != nil {
		return err
	}
	if last, ok := a.topUpTracker[m.UserID]; ok {
		sinceLastTopUp := a.hand.Number() - last
		if sinceLastTopUp < a.cfg.TopUpCooldownHands {
			remaining := a.cfg.TopUpCooldownHands - sinceLastTopUp
			return pokererr.New(pokererr.RateLimited, fmt.Sprintf("top-up on cooldown for %d more hand(s)", remaining))
		}
	}
	if a.cfg.AbsoluteChipCap > 0 && p.ChipsAtSeat+m.Amount > a.cfg.AbsoluteChipCap {
		return pokererr.Invalid("top-up would exceed the table's chip cap of %d", a.cfg.AbsoluteChipCap)
	}

	idemKey := uuid.NewString()
	if err := a.ledger.TransferToEscrow(ctx, idemKey, m.UserID, a.cfg.TableID, m.Amount, ledger.EntryBuyIn, "top-up"); err != nil {
		return err
	}
	if err := a.hand.AddChips(m.UserID, m.Amount); err != nil {
		return err
	}
	a.topUpTracker[m.UserID] = a.hand.Number()
	return nil
}

func (a *Actor) handleTakeAction(m TakeAction) error {
	if _, err := a.seatedPlayer(m.UserID); err != nil {
		return err
	}
	if err := a.hand.Apply(m.UserID, m.Action); err != nil {
		return err
	}
	a.drainPendingJoins()
	a.scheduleBotIfNeeded()
	return nil
}

// ballotKey identifies one kick/reset ballot box: a given kind and target
// decided fresh for each hand, so a stale vote from a prior hand never
// counts toward the current one.
func ballotKey(kind VoteKind, target string, handNumber int) string {
	return fmt.Sprintf("%d:%s:%d", kind, target, handNumber)
}

// handleVote casts one ballot and, once a (kind, target, hand) box holds
// strictly more than half of the table's seated humans, executes it: a
// VoteKick marks the target leaving, a VoteReset either un-sits-out the
// named target or, with no target, resets blinds to the table's starting
// level.
func (a *Actor) handleVote(m Vote) error {
	hn := a.hand.Number()
	key := ballotKey(m.Kind, m.Target, hn)
	box, ok := a.ballots[key]
	if !ok {
		box = make(map[string]bool)
		a.ballots[key] = box
	}
	if box[m.UserID] {
		return pokererr.Conflictf("%q already voted on this ballot", m.UserID)
	}
	box[m.UserID] = true

	humans := a.seatedHumanCount()
	if humans == 0 || len(box)*2 <= humans {
		return nil
	}
	delete(a.ballots, key)

	switch m.Kind {
	case VoteKick:
		if err := a.hand.MarkLeaving(m.Target); err != nil {
			return err
		}
	case VoteReset:
		if m.Target == "" {
			a.hand.SetBlinds(a.cfg.SmallBlind, a.cfg.BigBlind)
			a.lastBlindIncrease = a.clock()
			return nil
		}
		return a.hand.SetSittingOut(m.Target, false)
	}
	return nil
}

func (a *Actor) handleTick(ctx context.Context, m Tick) {
	a.hand.Advance()
	a.maybeIncreaseBlinds(m.Now)
	a.drainPendingJoins()
	a.spawnBotIfNeeded(ctx)
	a.scheduleBotIfNeeded()
}

// spawnBotIfNeeded seats one synthetic bot per Tick whenever bots are
// enabled, fewer humans than TargetBotCount are seated, the per-table bot
// cap hasn't been hit, and a seat is free; it never spawns more than one
// bot per Tick so a flood of empty seats fills in gradually rather than
// all at once.
func (a *Actor) spawnBotIfNeeded(ctx context.Context) {
	if !a.cfg.BotsEnabled {
		return
	}
	if a.seatedHumanCount() >= a.cfg.TargetBotCount {
		return
	}
	if a.seatedBotCount() >= MaxBotsPerTable {
		return
	}
	if len(a.hand.Players())+len(a.pendingJoin) >= a.cfg.MaxSeats {
		return
	}
	join := Join{
		UserID:     "bot-" + uuid.NewString(),
		Username:   "Bot",
		Passphrase: a.cfg.Passphrase,
		BuyIn:      a.cfg.MaxBuyIn,
		Bot:        true,
	}
	if err := a.handleJoin(ctx, join); err != nil {
		a.log.Warnf("table %s: spawn bot: %v", a.cfg.TableID, err)
	}
}

// handleDisconnect treats a disconnect as an implicit Leave for a seated
// player (auto-folding if it was their turn, then cashing out or deferring
// to onHandComplete exactly like handleLeave), and otherwise just drops
// the user_id from spectators.
func (a *Actor) handleDisconnect(ctx context.Context, m Disconnect) {
	for _, p := range a.hand.Players() {
		if p.UserID == m.UserID {
			if err := a.handleLeave(ctx, Leave{UserID: m.UserID}); err != nil {
				a.log.Warnf("table %s: disconnect leave for %s: %v", a.cfg.TableID, m.UserID, err)
			}
			return
		}
	}
	delete(a.spectators, m.UserID)
}

func (a *Actor) maybeIncreaseBlinds(now time.Time) {
	if a.cfg.BlindIncreaseInterval <= 0 {
		return
	}
	if now.Sub(a.lastBlindIncrease) < a.cfg.BlindIncreaseInterval {
		return
	}
	cfg := a.hand.Config()
	sb := int64(float64(cfg.SmallBlind) * a.cfg.BlindIncreaseFactor)
	bb := int64(float64(cfg.BigBlind) * a.cfg.BlindIncreaseFactor)
	a.hand.SetBlinds(sb, bb)
	a.lastBlindIncrease = now
}

func (a *Actor) onHandComplete(res *engine.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range a.hand.Players() {
		if _, isBot := a.botProfiles[p.UserID]; isBot {
			continue
		}
		if p.State == engine.Leaving && p.ChipsAtSeat > 0 {
			idemKey := uuid.NewString()
			if err := a.ledger.TransferFromEscrow(ctx, idemKey, a.cfg.TableID, p.UserID, p.ChipsAtSeat, ledger.EntryCashOut, "table cash-out"); err != nil {
				a.log.Errorf("table %s: cash out %s: %v", a.cfg.TableID, p.UserID, err)
			}
		}
	}
	a.log.Infof("table %s: hand settled, %d pot(s) awarded", a.cfg.TableID, len(res.PotAwards))
}

func (a *Actor) scheduleBotIfNeeded() {
	actor, ok := a.hand.CurrentActor()
	if !ok {
		return
	}
	profile, isBot := a.botProfiles[actor]
	if !isBot {
		return
	}
	if a.scheduledBotAt[actor] == a.hand.Number() {
		return // already have a timer in flight for this exact decision point
	}
	a.scheduledBotAt[actor] = a.hand.Number()
	delay := bot.ThinkDelay(profile, a.rng)
	msg := botAct{userID: actor, handNumber: a.hand.Number()}
	time.AfterFunc(delay, func() {
		a.Send(msg)
	})
}

func (a *Actor) handleBotAct(m botAct) {
	if a.hand.Number() != m.handNumber {
		return // stale: the hand moved on before the timer fired
	}
	actor, ok := a.hand.CurrentActor()
	if !ok || actor != m.userID {
		return
	}
	profile := a.botProfiles[m.userID]
	view, err := a.hand.View(m.userID)
	if err != nil {
		return
	}
	ctx := bot.DecisionContext{
		Hole:                view.Hole,
		Board:               view.Board,
		Street:              view.Street,
		Pot:                 view.Pot,
		ToCall:              view.ToCall,
		CurrentBet:          view.CurrentBet,
		MinRaiseSize:        view.MinRaiseSize,
		Stack:               view.Stack,
		CommittedThisStreet: view.CommittedThisStreet,
		ActivePlayers:       view.ActivePlayers,
	}
	action := bot.Decide(ctx, profile, a.rng)
	if err := a.hand.Apply(m.userID, action); err != nil {
		a.log.Warnf("table %s: bot %s action rejected, folding instead: %v", a.cfg.TableID, m.userID, err)
		_ = a.hand.Apply(m.userID, engine.Action{Kind: engine.ActionFold})
	}
	delete(a.scheduledBotAt, m.userID)
	a.drainPendingJoins()
	a.scheduleBotIfNeeded()
}
