// Package settlement computes who owes what for a travel session.
//
// Everything here is a pure function of its arguments: no I/O, no shared
// state, and every call recomputes from scratch. Callers that edit an
// expenditure simply call ForExpenditure again with the full record.
package settlement

import (
	"fmt"
	"slices"

	"travelai/internal/core"
)

// Distribution maps user id to the exact amount owed. A participant who owes
// nothing is present with zero; a user absent from the map did not take part.
type Distribution map[string]core.ExactAmount

// Owed returns the amount for userID and whether the user is in the
// distribution at all.
func (d Distribution) Owed(userID string) (core.ExactAmount, bool) {
	a, ok := d[userID]
	return a, ok
}

// Total sums every entry.
func (d Distribution) Total() core.ExactAmount {
	total := core.Zero()
	for _, a := range d {
		total = total.Add(a)
	}
	return total
}

// UserIDs returns the keys in sorted order.
func (d Distribution) UserIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Equal reports whether both distributions have the same keys and exactly
// equal amounts.
func (d Distribution) Equal(other Distribution) bool {
	if len(d) != len(other) {
		return false
	}
	for id, a := range d {
		b, ok := other[id]
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

// add accumulates into d; used only while building a fresh distribution.
func (d Distribution) add(userID string, a core.ExactAmount) {
	d[userID] = d[userID].Add(a)
}

// EvenSplit gives every participant total/N. Duplicate user ids count once.
func EvenSplit(total core.ExactAmount, participants []core.Participant) (Distribution, error) {
	ids := uniqueIDs(participants)
	if len(ids) == 0 {
		return nil, core.ErrEmptyParticipantSet
	}
	share, err := total.Divide(len(ids))
	if err != nil {
		return nil, err
	}
	dist := make(Distribution, len(ids))
	for _, id := range ids {
		dist[id] = share
	}
	return dist, nil
}

// ItemizedSplit divides each allocated line among its K allocated users.
// Lines without allocations contribute nothing. Every participant appears in
// the result, with zero when allocated to no line.
func ItemizedSplit(items []core.LineItem, participants []core.Participant) (Distribution, error) {
	ids := uniqueIDs(participants)
	if len(ids) == 0 {
		return nil, core.ErrEmptyParticipantSet
	}
	dist := make(Distribution, len(ids))
	for _, id := range ids {
		dist[id] = core.Zero()
	}

	for _, item := range items {
		group := dedupe(item.Allocations)
		if len(group) == 0 {
			continue
		}
		share, err := item.Price.Divide(len(group))
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", item.ID, err)
		}
		for _, id := range group {
			if _, ok := dist[id]; !ok {
				return nil, fmt.Errorf("%w: %q allocated to line %q", core.ErrUnknownParticipant, id, item.ID)
			}
			dist.add(id, share)
		}
	}
	return dist, nil
}

// ForExpenditure picks the policy for one expenditure: itemized when any
// line is allocated, otherwise an even split of the total over the stated
// participants (all session participants when none are stated). The result
// always covers every session participant.
func ForExpenditure(e core.Expenditure, participants []core.Participant) (Distribution, error) {
	known := participantSet(participants)
	if len(known) == 0 {
		return nil, core.ErrEmptyParticipantSet
	}
	for _, id := range e.ReferencedUserIDs() {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: %q in expenditure %q", core.ErrUnknownParticipant, id, e.ID)
		}
	}

	if e.HasAllocations() {
		dist, err := ItemizedSplit(e.LineItems, participants)
		if err != nil {
			return nil, fmt.Errorf("expenditure %q: %w", e.ID, err)
		}
		return dist, nil
	}

	sharers := participants
	if len(e.ParticipantIDs) > 0 {
		sharers = make([]core.Participant, 0, len(e.ParticipantIDs))
		for _, id := range e.ParticipantIDs {
			sharers = append(sharers, known[id])
		}
	}
	even, err := EvenSplit(e.Total, sharers)
	if err != nil {
		return nil, fmt.Errorf("expenditure %q: %w", e.ID, err)
	}
	dist := make(Distribution, len(known))
	for id := range known {
		dist[id] = core.Zero()
	}
	for id, a := range even {
		dist[id] = a
	}
	return dist, nil
}

func participantSet(participants []core.Participant) map[string]core.Participant {
	set := make(map[string]core.Participant, len(participants))
	for _, p := range participants {
		if p.UserID == "" {
			continue
		}
		if _, ok := set[p.UserID]; !ok {
			set[p.UserID] = p
		}
	}
	return set
}

func uniqueIDs(participants []core.Participant) []string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.UserID != "" {
			ids = append(ids, p.UserID)
		}
	}
	return dedupe(ids)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
