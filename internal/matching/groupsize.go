package matching

import "github.com/huddle/matchmaker/internal/event"

// SizeRange is the inclusive span of group sizes a requester will accept.
type SizeRange struct {
	Min int
	Max int
}

// AcceptableRange widens a preferred group size by roughly 25% either way,
// never dropping below event.MinGroupSize.
func AcceptableRange(preferred int) SizeRange {
	tolerance := max(1, preferred/4)
	return SizeRange{
		Min: max(event.MinGroupSize, preferred-tolerance),
		Max: preferred + tolerance,
	}
}

// IsAcceptable reports whether a group of actual people suits someone who
// asked for preferred.
func IsAcceptable(actual, preferred int) bool {
	r := AcceptableRange(preferred)
	return actual >= r.Min && actual <= r.Max
}

// FindCompatibleGroup searches increasing group sizes g = 2..len(events) for
// a set of g events that all accept size g and share at least an hour of
// availability. events[0] is normally the newly submitted event, but it gets
// no special treatment and may be left out of the result.
//
// The search is not exhaustive. For each g it tries all pairs when g is 2,
// the whole eligible set when g equals len(events), and otherwise only the
// first g eligible events in input order.
func FindCompatibleGroup(events []event.PendingEvent) []event.PendingEvent {
	for g := 2; g <= len(events); g++ {
		var eligible []event.PendingEvent
		for _, e := range events {
			if IsAcceptable(g, e.GroupSize) {
				eligible = append(eligible, e)
			}
		}
		if len(eligible) < g {
			continue
		}

		switch {
		case g == 2:
			for i := 0; i < len(eligible); i++ {
				for j := i + 1; j < len(eligible); j++ {
					pair := []event.PendingEvent{eligible[i], eligible[j]}
					if HasTimeCompatibility(pair) {
						return pair
					}
				}
			}
		case g == len(events):
			if HasTimeCompatibility(eligible) {
				return eligible
			}
		default:
			group := eligible[:g:g]
			if HasTimeCompatibility(group) {
				return group
			}
		}
	}
	return nil
}
