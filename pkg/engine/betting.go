package engine

import (
	"fmt"

	"github.com/holdencore/pokercore/pkg/pokererr"
)

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (h *Hand) commit(p *Player, amount int64) {
	if amount > p.ChipsAtSeat {
		amount = p.ChipsAtSeat
	}
	p.ChipsAtSeat -= amount
	p.CommittedThisStreet += amount
	p.CommittedTotal += amount
	if p.ChipsAtSeat == 0 && p.State == Playing {
		p.State = AllIn
	}
}

func (h *Hand) resetStreet() {
	h.currentBet = 0
	h.minRaiseSize = h.cfg.BigBlind
	h.lastAggressor = -1
	for _, p := range h.players {
		if p.active() {
			p.resetForStreet()
		}
	}
}

// countCanAct is the number of players still able to voluntarily act
// (i.e. not folded, not all-in, not sitting out). A round with fewer
// than two such players has no more betting to do.
func (h *Hand) countCanAct() int {
	n := 0
	for _, p := range h.players {
		if p.State == Playing {
			n++
		}
	}
	return n
}

// countContenders is the number of non-folded players still live for the
// pot (Playing or AllIn). One or fewer means the hand is uncontested.
func (h *Hand) countContenders() int {
	n := 0
	for _, p := range h.players {
		if p.State == Playing || p.State == AllIn {
			n++
		}
	}
	return n
}

func (h *Hand) nextActorFrom(start int) (int, bool) {
	n := len(h.players)
	if n == 0 {
		return -1, false
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if h.players[idx].State == Playing {
			return idx, true
		}
	}
	return -1, false
}

func (h *Hand) roundComplete() bool {
	if h.countContenders() <= 1 {
		return true
	}
	for _, p := range h.players {
		if p.State != Playing {
			continue
		}
		if !p.HasActedThisStreet || p.CommittedThisStreet != h.currentBet {
			return false
		}
	}
	return true
}

// LegalActions reports what userID may currently do. It is an error to
// call this for anyone other than the current actor.
func (h *Hand) LegalActions(userID string) ([]LegalAction, error) {
	actor, ok := h.CurrentActor()
	if !ok || actor != userID {
		return nil, pokererr.New(pokererr.NotYourTurn, fmt.Sprintf("it is not %q's turn", userID))
	}
	p, _, err := h.playerByID(userID)
	if err != nil {
		return nil, err
	}
	toCall := h.currentBet - p.CommittedThisStreet
	out := []LegalAction{{Kind: ActionFold}}
	if toCall <= 0 {
		out = append(out, LegalAction{Kind: ActionCheck})
	} else {
		out = append(out, LegalAction{Kind: ActionCall, MinAmount: min64(toCall, p.ChipsAtSeat), MaxAmount: min64(toCall, p.ChipsAtSeat)})
	}
	// A short all-in that didn't reopen betting leaves this player only a
	// call or a fold: it already used its raise right this street.
	if p.ForfeitedReraise {
		return out, nil
	}
	fullStackTo := p.CommittedThisStreet + p.ChipsAtSeat
	if fullStackTo > h.currentBet && p.ChipsAtSeat > 0 {
		minTo := h.currentBet + h.minRaiseSize
		if h.currentBet == 0 {
			minTo = h.minRaiseSize
		}
		if minTo > fullStackTo {
			minTo = fullStackTo
		}
		out = append(out, LegalAction{Kind: ActionRaise, MinAmount: minTo, MaxAmount: fullStackTo})
		out = append(out, LegalAction{Kind: ActionAllIn, MinAmount: fullStackTo, MaxAmount: fullStackTo})
	}
	return out, nil
}

// Apply validates and applies action by userID, who must be the current
// actor. It returns an error without mutating state if the action is
// illegal.
func (h *Hand) Apply(userID string, action Action) error {
	actor, ok := h.CurrentActor()
	if !ok || actor != userID {
		return pokererr.New(pokererr.NotYourTurn, fmt.Sprintf("it is not %q's turn", userID))
	}
	p, idx, err := h.playerByID(userID)
	if err != nil {
		return err
	}
	toCall := h.currentBet - p.CommittedThisStreet

	switch action.Kind {
	case ActionFold:
		p.State = Folded

	case ActionCheck:
		if toCall > 0 {
			return pokererr.New(pokererr.IllegalAction, fmt.Sprintf("cannot check, %d owed", toCall))
		}

	case ActionCall:
		if toCall <= 0 {
			return pokererr.New(pokererr.IllegalAction, "nothing to call")
		}
		h.commit(p, toCall)

	case ActionRaise, ActionAllIn:
		if p.ForfeitedReraise {
			return pokererr.New(pokererr.IllegalAction, "a short all-in since your last action did not reopen betting")
		}
		fullStackTo := p.CommittedThisStreet + p.ChipsAtSeat
		raiseTo := fullStackTo
		if action.Kind == ActionRaise {
			switch action.RaiseMode {
			case RaiseTo:
				raiseTo = action.Amount
			default:
				raiseTo = h.currentBet + action.Amount
			}
			if raiseTo > fullStackTo {
				return pokererr.New(pokererr.IllegalAction, "raise exceeds available chips")
			}
		}
		if raiseTo <= h.currentBet {
			return pokererr.New(pokererr.IllegalAction, fmt.Sprintf("raise must exceed current bet of %d", h.currentBet))
		}
		oldBet := h.currentBet
		increment := raiseTo - oldBet
		isShove := raiseTo == fullStackTo
		if !isShove && increment < h.minRaiseSize {
			return pokererr.New(pokererr.IllegalAction, fmt.Sprintf("raise increment %d below minimum %d", increment, h.minRaiseSize))
		}
		h.commit(p, raiseTo-p.CommittedThisStreet)
		h.currentBet = raiseTo
		h.lastAggressor = idx
		reopens := increment >= h.minRaiseSize
		if reopens {
			h.minRaiseSize = increment
		}
		for i, other := range h.players {
			if i == idx || other.State != Playing {
				continue
			}
			if reopens {
				other.HasActedThisStreet = false
				other.ForfeitedReraise = false
				continue
			}
			if other.HasActedThisStreet {
				// Short all-in: didn't reopen betting, so a player who
				// already acted owes only the new total to call or fold,
				// never a fresh raise.
				other.ForfeitedReraise = true
			}
		}

	default:
		return pokererr.New(pokererr.IllegalAction, fmt.Sprintf("unknown action kind %d", action.Kind))
	}

	p.HasActedThisStreet = true
	h.awaitingInput = false
	h.Advance()
	return nil
}
