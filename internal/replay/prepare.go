package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// prepareEvents loads the session's events and orders them per the
// configured strategy. The base query is always timestamp ASC with the
// store's seq tie-break, so SEQUENTIAL preparation is deterministic.
func (e *Engine) prepareEvents(ctx context.Context, session model.ReplaySession) ([]model.ChangeEvent, error) {
	filter := session.Filter
	filter.Sort = model.SortAscending

	events, err := e.store.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("prepare events: %w", err)
	}

	switch session.Options.Strategy {
	case model.StrategySequential:
		// Already in timestamp, seq order.
	case model.StrategyParallel:
		events = groupIndependent(events)
	case model.StrategyDependencyAware:
		events = orderByDependencies(events)
	case model.StrategySelective:
		if e.selector != nil {
			kept := events[:0]
			for _, event := range events {
				if e.selector(event) {
					kept = append(kept, event)
				}
			}
			events = kept
		}
	}
	return events, nil
}

// eventLists resolves a session's skip and include lists. Matching events
// stay in the replay plan and are recorded as SKIPPED rather than dropped,
// so session counters still account for every filter-matched event.
type eventLists struct {
	skip    map[string]bool
	include map[string]bool
}

func newEventLists(options model.ReplayOptions) eventLists {
	lists := eventLists{}
	if len(options.SkipEvents) > 0 {
		lists.skip = make(map[string]bool, len(options.SkipEvents))
		for _, id := range options.SkipEvents {
			lists.skip[id] = true
		}
	}
	if len(options.IncludeEvents) > 0 {
		lists.include = make(map[string]bool, len(options.IncludeEvents))
		for _, id := range options.IncludeEvents {
			lists.include[id] = true
		}
	}
	return lists
}

// excluded reports whether the event must not execute: either skip-listed,
// or absent from a non-empty include list. The skip list wins over include.
func (l eventLists) excluded(id string) bool {
	if l.skip[id] {
		return true
	}
	return l.include != nil && !l.include[id]
}

// groupIndependent reorders for the PARALLEL strategy: events sharing a
// (projectID, changeID) identity stay together as one dependent group;
// groups apply in the timestamp order of their first event. Events with
// neither key are independent singleton groups.
func groupIndependent(events []model.ChangeEvent) []model.ChangeEvent {
	type group struct {
		first  int
		events []model.ChangeEvent
	}

	groups := make(map[string]*group)
	var order []*group
	for i, event := range events {
		key := event.ProjectID + "\x00" + event.ChangeID
		if event.ProjectID == "" && event.ChangeID == "" {
			key = fmt.Sprintf("\x00solo\x00%d", i)
		}
		g, ok := groups[key]
		if !ok {
			g = &group{first: i}
			groups[key] = g
			order = append(order, g)
		}
		g.events = append(g.events, event)
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].first < order[j].first })

	out := make([]model.ChangeEvent, 0, len(events))
	for _, g := range order {
		out = append(out, g.events...)
	}
	return out
}

// orderByDependencies performs a stable topological sort over declared
// depends_on edges. Events without dependency metadata keep their
// timestamp order; unknown and cyclic dependencies degrade to timestamp
// order for the affected events rather than failing the replay.
func orderByDependencies(events []model.ChangeEvent) []model.ChangeEvent {
	index := make(map[string]int, len(events))
	for i, event := range events {
		index[event.ID] = i
	}

	// indegree counts only edges pointing at events inside this replay.
	indegree := make([]int, len(events))
	dependents := make(map[int][]int)
	for i, event := range events {
		for _, dep := range event.DependsOn() {
			j, ok := index[dep]
			if !ok || j == i {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm with the ready set kept in original (timestamp)
	// order so independent events stay deterministic.
	ready := make([]int, 0, len(events))
	for i := range events {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]model.ChangeEvent, 0, len(events))
	emitted := make([]bool, len(events))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]

		out = append(out, events[i])
		emitted[i] = true
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	// Cycle remainder: append in timestamp order.
	for i := range events {
		if !emitted[i] {
			out = append(out, events[i])
		}
	}
	return out
}
