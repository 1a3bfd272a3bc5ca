package bidding

import "sort"

// step applies below the price bound. The last step of a rule has no bound.
type step struct {
	below     int64
	increment int64
}

// IncrementRule is a step table of minimum raises by current price tier.
type IncrementRule []step

const DefaultRule = "standard"

var rules = map[string]IncrementRule{
	"standard": {
		{below: 100_000, increment: 1_000},
		{below: 1_000_000, increment: 10_000},
		{below: 10_000_000, increment: 50_000},
		{below: 100_000_000, increment: 100_000},
		{increment: 500_000},
	},
	"prestige": {
		{below: 1_000_000, increment: 50_000},
		{below: 10_000_000, increment: 100_000},
		{below: 50_000_000, increment: 250_000},
		{increment: 1_000_000},
	},
	"flat": {
		{increment: 1_000},
	},
}

// Increment returns the minimum raise over price. ok is false for an
// unknown rule name.
func Increment(rule string, price int64) (inc int64, ok bool) {
	r, ok := rules[rule]
	if !ok {
		return 0, false
	}
	for _, s := range r {
		if s.below == 0 || price < s.below {
			return s.increment, true
		}
	}
	return r[len(r)-1].increment, true
}

func KnownRule(name string) bool {
	_, ok := rules[name]
	return ok
}

func RuleNames() []string {
	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
