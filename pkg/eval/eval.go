// Package eval ranks any set of 5 or more cards into a totally ordered
// HandValue. Category classification is delegated to chehsunliu/poker;
// the descending tiebreak vector used to break ties within a category is
// computed locally so HandValue carries everything needed to order two
// hands without re-consulting the library.
package eval

import (
	"fmt"
	"sort"

	chehsunliu "github.com/chehsunliu/poker"

	"github.com/holdencore/pokercore/pkg/card"
)

// Category is a poker hand class, ascending in strength.
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// HandValue is a total-ordered poker hand value: the category plus a
// descending tiebreak vector of the card values that define it (e.g. for
// TwoPair: [higher pair, lower pair, kicker]).
type HandValue struct {
	Category  Category
	Tiebreak  []int
	BestFive  []card.Card
}

// Compare returns -1, 0, or 1 as a compares to b (a<b, a==b, a>b).
func Compare(a, b HandValue) int {
	if a.Category != b.Category {
		if a.Category < b.Category {
			return -1
		}
		return 1
	}
	n := len(a.Tiebreak)
	if len(b.Tiebreak) < n {
		n = len(b.Tiebreak)
	}
	for i := 0; i < n; i++ {
		if a.Tiebreak[i] != b.Tiebreak[i] {
			if a.Tiebreak[i] < b.Tiebreak[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether a ranks below b.
func Less(a, b HandValue) bool { return Compare(a, b) < 0 }

// Argmax returns every index tied at the maximum HandValue. Panics if
// values is empty; callers are expected to only evaluate non-empty pools.
func Argmax(values []HandValue) []int {
	if len(values) == 0 {
		panic("eval: Argmax of empty slice")
	}
	best := values[0]
	winners := []int{0}
	for i := 1; i < len(values); i++ {
		switch Compare(values[i], best) {
		case 1:
			best = values[i]
			winners = []int{i}
		case 0:
			winners = append(winners, i)
		}
	}
	return winners
}

// Eval ranks any set of >=5 cards. An error is returned for fewer than 5
// cards or a malformed card (should never happen given card.Card.Valid()).
func Eval(cards []card.Card) (HandValue, error) {
	if len(cards) < 5 {
		return HandValue{}, fmt.Errorf("eval: need at least 5 cards, got %d", len(cards))
	}

	lib := make([]chehsunliu.Card, 0, len(cards))
	for _, c := range cards {
		lc, err := toLibCard(c)
		if err != nil {
			return HandValue{}, err
		}
		lib = append(lib, lc)
	}

	rank := chehsunliu.Evaluate(lib)
	category := fromRankClass(chehsunliu.RankClass(rank))

	best := bestFive(cards)
	tiebreak := tiebreakVector(category, best)

	return HandValue{Category: category, Tiebreak: tiebreak, BestFive: best}, nil
}

func toLibCard(c card.Card) (chehsunliu.Card, error) {
	var rankChar byte
	switch c.Value {
	case card.Two:
		rankChar = '2'
	case card.Three:
		rankChar = '3'
	case card.Four:
		rankChar = '4'
	case card.Five:
		rankChar = '5'
	case card.Six:
		rankChar = '6'
	case card.Seven:
		rankChar = '7'
	case card.Eight:
		rankChar = '8'
	case card.Nine:
		rankChar = '9'
	case card.Ten:
		rankChar = 'T'
	case card.Jack:
		rankChar = 'J'
	case card.Queen:
		rankChar = 'Q'
	case card.King:
		rankChar = 'K'
	case card.Ace:
		rankChar = 'A'
	default:
		return chehsunliu.Card(0), fmt.Errorf("eval: invalid card value %d", c.Value)
	}

	var suitChar byte
	switch c.Suit {
	case card.Spades:
		suitChar = 's'
	case card.Hearts:
		suitChar = 'h'
	case card.Diamonds:
		suitChar = 'd'
	case card.Clubs:
		suitChar = 'c'
	default:
		return chehsunliu.Card(0), fmt.Errorf("eval: invalid card suit %d", c.Suit)
	}

	return chehsunliu.NewCard(string([]byte{rankChar, suitChar})), nil
}

func fromRankClass(rankClass int32) Category {
	switch rankClass {
	case 1:
		return StraightFlush
	case 2:
		return FourOfAKind
	case 3:
		return FullHouse
	case 4:
		return Flush
	case 5:
		return Straight
	case 6:
		return ThreeOfAKind
	case 7:
		return TwoPair
	case 8:
		return Pair
	default: // 9: high card
		return HighCard
	}
}

// bestFive picks the 5 cards chehsunliu's category is built from by
// grouping by value and suit the same way the category was derived,
// rather than brute-forcing C(n,5) combinations.
func bestFive(cards []card.Card) []card.Card {
	if len(cards) <= 5 {
		out := make([]card.Card, len(cards))
		copy(out, cards)
		return out
	}

	byValue := groupByValue(cards)
	bySuit := groupBySuit(cards)

	if suit, ok := flushSuit(bySuit); ok {
		flushCards := bySuit[suit]
		if top, ok := straightTop(valueSet(flushCards)); ok {
			return pickStraight(flushCards, top)
		}
		sortDesc(flushCards)
		return append([]card.Card{}, flushCards[:5]...)
	}

	groups := sortedGroups(byValue)

	if groups[0].count == 4 {
		five := takeN(byValue[groups[0].value], 4)
		five = append(five, kicker(cards, groups[0].value))
		return five
	}

	if groups[0].count == 3 {
		for i := 1; i < len(groups); i++ {
			if groups[i].count >= 2 {
				five := takeN(byValue[groups[0].value], 3)
				five = append(five, takeN(byValue[groups[i].value], 2)...)
				return five
			}
		}
	}

	if top, ok := straightTop(valueSet(cards)); ok {
		return pickStraight(cards, top)
	}

	if groups[0].count == 3 {
		five := takeN(byValue[groups[0].value], 3)
		for _, g := range groups[1:] {
			if len(five) == 5 {
				break
			}
			five = append(five, kicker(cards, g.value))
		}
		return five[:5]
	}

	if groups[0].count == 2 && len(groups) > 1 && groups[1].count == 2 {
		five := takeN(byValue[groups[0].value], 2)
		five = append(five, takeN(byValue[groups[1].value], 2)...)
		for _, g := range groups[2:] {
			if len(five) == 5 {
				break
			}
			five = append(five, kicker(cards, g.value))
		}
		return five[:5]
	}

	if groups[0].count == 2 {
		five := takeN(byValue[groups[0].value], 2)
		for _, g := range groups[1:] {
			if len(five) == 5 {
				break
			}
			five = append(five, kicker(cards, g.value))
		}
		return five[:5]
	}

	sorted := append([]card.Card{}, cards...)
	sortDesc(sorted)
	return sorted[:5]
}

// tiebreakVector builds the descending value vector spec §4.A describes
// for the given category, from the already-chosen best five cards.
func tiebreakVector(cat Category, best []card.Card) []int {
	byValue := groupByValue(best)
	groups := sortedGroups(byValue)

	switch cat {
	case StraightFlush, Straight:
		return []int{straightHigh(best)}
	case FourOfAKind:
		return []int{groups[0].value, kickerValue(groups, 1)}
	case FullHouse:
		return []int{groups[0].value, groups[1].value}
	case Flush, HighCard:
		vs := valuesDesc(best)
		return vs
	case ThreeOfAKind:
		return append([]int{groups[0].value}, kickerValues(groups, 1, 2)...)
	case TwoPair:
		return append([]int{groups[0].value, groups[1].value}, kickerValues(groups, 2, 1)...)
	case Pair:
		return append([]int{groups[0].value}, kickerValues(groups, 1, 3)...)
	default:
		return valuesDesc(best)
	}
}

type valueGroup struct {
	value int
	count int
}

func groupByValue(cards []card.Card) map[int][]card.Card {
	m := make(map[int][]card.Card)
	for _, c := range cards {
		m[int(c.Value)] = append(m[int(c.Value)], c)
	}
	return m
}

func groupBySuit(cards []card.Card) map[card.Suit][]card.Card {
	m := make(map[card.Suit][]card.Card)
	for _, c := range cards {
		m[c.Suit] = append(m[c.Suit], c)
	}
	return m
}

func flushSuit(bySuit map[card.Suit][]card.Card) (card.Suit, bool) {
	for s, cs := range bySuit {
		if len(cs) >= 5 {
			return s, true
		}
	}
	return 0, false
}

func valueSet(cards []card.Card) uint32 {
	var bits uint32
	for _, c := range cards {
		bits |= 1 << uint(c.Value)
	}
	return bits
}

// straightTop returns the top rank of the highest straight in bits,
// including the wheel (A-2-3-4-5, reported as top=5), or false if none.
func straightTop(bits uint32) (int, bool) {
	wheel := uint32(1<<14 | 1<<2 | 1<<3 | 1<<4 | 1<<5)
	hasWheel := bits&wheel == wheel
	run := 0
	for v := 14; v >= 2; v-- {
		if bits&(1<<uint(v)) != 0 {
			run++
			if run == 5 {
				return v + 4, true
			}
		} else {
			run = 0
		}
	}
	if hasWheel {
		return 5, true
	}
	return 0, false
}

// straightHigh returns the vector's lone rank for a straight/straight-flush
// best-five (5-high for the wheel, since card.Value has no 1).
func straightHigh(best []card.Card) int {
	bits := valueSet(best)
	wheel := uint32(1<<14 | 1<<2 | 1<<3 | 1<<4 | 1<<5)
	if bits&wheel == wheel && len(best) == 5 {
		max := 0
		for _, c := range best {
			if int(c.Value) > max && c.Value != card.Ace {
				max = int(c.Value)
			}
		}
		if max == 5 {
			return 5
		}
	}
	max := 0
	for _, c := range best {
		if int(c.Value) > max {
			max = int(c.Value)
		}
	}
	return max
}

func pickStraight(cards []card.Card, top int) []card.Card {
	need := []int{top, top - 1, top - 2, top - 3, top - 4}
	if top == 5 {
		need = []int{5, 4, 3, 2, 14}
	}
	byValue := groupByValue(cards)
	five := make([]card.Card, 0, 5)
	for _, v := range need {
		cs := byValue[v]
		if len(cs) == 0 {
			continue
		}
		five = append(five, cs[0])
	}
	return five
}

func sortedGroups(byValue map[int][]card.Card) []valueGroup {
	groups := make([]valueGroup, 0, len(byValue))
	for v, cs := range byValue {
		groups = append(groups, valueGroup{value: v, count: len(cs)})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].value > groups[j].value
	})
	return groups
}

func takeN(cards []card.Card, n int) []card.Card {
	if len(cards) < n {
		n = len(cards)
	}
	out := make([]card.Card, n)
	copy(out, cards[:n])
	return out
}

func kicker(cards []card.Card, exclude int) card.Card {
	for _, g := range sortedGroups(groupByValue(cards)) {
		if g.value != exclude {
			return groupByValue(cards)[g.value][0]
		}
	}
	return card.Card{}
}

func kickerValue(groups []valueGroup, skip int) int {
	if skip < len(groups) {
		return groups[skip].value
	}
	return 0
}

func kickerValues(groups []valueGroup, skip, n int) []int {
	out := make([]int, 0, n)
	for i := skip; i < len(groups) && len(out) < n; i++ {
		out = append(out, groups[i].value)
	}
	for len(out) < n {
		out = append(out, 0)
	}
	return out
}

func valuesDesc(cards []card.Card) []int {
	out := make([]int, len(cards))
	for i, c := range cards {
		out[i] = int(c.Value)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func sortDesc(cards []card.Card) {
	sort.Slice(cards, func(i, j int) bool { return cards[i].Value > cards[j].Value })
}
