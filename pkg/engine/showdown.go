package engine

import (
	"sort"

	"github.com/holdencore/pokercore/pkg/eval"
)

// buildPots splits total contributions into a main pot plus one side pot
// per distinct commitment level, exactly as a physical table stacks
// chips: a player's contribution beyond a shorter stack's all-in total
// funds pots that shorter stack cannot win, and a folded player's
// contribution still funds every pot it reached even though they cannot
// win any of them.
func (h *Hand) buildPots() {
	var contributors []*Player
	for _, p := range h.players {
		if p.CommittedTotal > 0 {
			contributors = append(contributors, p)
		}
	}

	levelSet := make(map[int64]bool)
	for _, p := range contributors {
		if p.State != Folded {
			levelSet[p.CommittedTotal] = true
		}
	}
	levels := make([]int64, 0, len(levelSet))
	for lvl := range levelSet {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var prev int64
	var pots []*Pot
	for _, lvl := range levels {
		pot := newPot()
		for _, p := range contributors {
			slice := p.CommittedTotal - prev
			if slice <= 0 {
				continue
			}
			if p.CommittedTotal < lvl {
				pot.Amount += slice
			} else {
				pot.Amount += lvl - prev
			}
		}
		for _, p := range contributors {
			if p.State != Folded && p.CommittedTotal >= lvl {
				pot.Eligible[p.UserID] = true
			}
		}
		if pot.Amount > 0 {
			pots = append(pots, pot)
		}
		prev = lvl
	}
	h.pots = pots
}

// seatOrderAfterButton returns slice indices of players in the given set,
// ordered starting from the seat immediately left of the button and
// wrapping around. Odd-chip pot remainders are handed out one at a time
// in this order.
func (h *Hand) seatOrderAfterButton(set map[string]bool) []int {
	n := len(h.players)
	var ordered []int
	for i := 1; i <= n; i++ {
		idx := (h.buttonSeat + i) % n
		if set[h.players[idx].UserID] {
			ordered = append(ordered, idx)
		}
	}
	return ordered
}

func (h *Hand) awardPot(pot *Pot) PotAward {
	var winnerIdx []int
	for idx, p := range h.players {
		if pot.Eligible[p.UserID] {
			winnerIdx = append(winnerIdx, idx)
		}
	}

	var winners []int
	if len(winnerIdx) == 1 {
		winners = winnerIdx
	} else {
		best := h.players[winnerIdx[0]].HandValue
		bestIdxs := []int{0}
		for i := 1; i < len(winnerIdx); i++ {
			hv := h.players[winnerIdx[i]].HandValue
			switch eval.Compare(*hv, *best) {
			case 1:
				best = hv
				bestIdxs = []int{i}
			case 0:
				bestIdxs = append(bestIdxs, i)
			}
		}
		for _, i := range bestIdxs {
			winners = append(winners, winnerIdx[i])
		}
	}

	winSet := make(map[string]bool, len(winners))
	for _, idx := range winners {
		winSet[h.players[idx].UserID] = true
	}
	ordered := h.seatOrderAfterButton(winSet)

	base := pot.Amount / int64(len(ordered))
	remainder := pot.Amount % int64(len(ordered))
	payouts := make(map[string]int64, len(ordered))
	winnerIDs := make([]string, 0, len(ordered))
	for i, idx := range ordered {
		share := base
		if int64(i) < remainder {
			share++
		}
		uid := h.players[idx].UserID
		payouts[uid] = share
		winnerIDs = append(winnerIDs, uid)
	}

	return PotAward{Amount: pot.Amount, Winners: winnerIDs, Payouts: payouts}
}
