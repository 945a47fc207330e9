package engine

import "fmt"

// Exhausted reports whether used covers every team in pool. An empty pool never
// exhausts.
func Exhausted(used, pool []string) bool {
	if len(pool) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(used))
	for _, t := range used {
		set[t] = struct{}{}
	}
	for _, t := range pool {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// UsePick checks team against the used-teams set and returns the set after the
// pick. Once used covers the whole pool it is reset before the check, so the
// new team becomes the only entry.
func UsePick(used, pool []string, team string) ([]string, error) {
	if Exhausted(used, pool) {
		used = nil
	}
	for _, t := range used {
		if t == team {
			return nil, fmt.Errorf("%w: %s", ErrTeamAlreadyUsed, team)
		}
	}
	next := make([]string, 0, len(used)+1)
	next = append(next, used...)
	return append(next, team), nil
}

// ReleasePick removes team from used, for a pick replaced by an organiser.
func ReleasePick(used []string, team string) []string {
	next := make([]string, 0, len(used))
	for _, t := range used {
		if t != team {
			next = append(next, t)
		}
	}
	return next
}
