package settlement

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"travelai/internal/core"
)

// PercentageOf returns amount as a percentage of total, clamped to [0,100].
// A zero total yields 0 so callers never render NaN.
func PercentageOf(amount, total core.ExactAmount) float64 {
	ratio, err := amount.MulInt(100).Quo(total)
	if err != nil {
		return 0
	}
	pct := ratio.ToDecimal()
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// AggregateByCategory sums totals of expenditures whose category is in
// recognized. Categories without spend are omitted. The result is sorted by
// amount, largest first, with ties in the order of recognized.
func AggregateByCategory(expenditures []core.Expenditure, recognized []core.Category) ([]core.SettlementCategoryTotal, error) {
	if _, err := CommonCurrency(expenditures); err != nil {
		return nil, err
	}

	order := make(map[core.Category]int, len(recognized))
	for _, c := range recognized {
		if _, dup := order[c]; !dup {
			order[c] = len(order)
		}
	}

	sums := make(map[core.Category]core.ExactAmount, len(order))
	grand := core.Zero()
	for _, e := range expenditures {
		if _, ok := order[e.Category]; !ok {
			continue
		}
		sums[e.Category] = sums[e.Category].Add(e.Total)
		grand = grand.Add(e.Total)
	}

	out := make([]core.SettlementCategoryTotal, 0, len(sums))
	for c, amount := range sums {
		out = append(out, core.SettlementCategoryTotal{
			Category:   c,
			Amount:     amount,
			Percentage: PercentageOf(amount, grand),
			Color:      c.Color(),
		})
	}
	slices.SortFunc(out, func(a, b core.SettlementCategoryTotal) int {
		if c := b.Amount.Cmp(a.Amount); c != 0 {
			return c
		}
		return order[a.Category] - order[b.Category]
	})
	return out, nil
}

// AggregateByMember sums each expenditure's distribution per user. Every
// participant is present in the result. Any reference to a user outside
// participants fails with core.ErrUnknownParticipant.
func AggregateByMember(expenditures []core.Expenditure, participants []core.Participant) (Distribution, error) {
	if _, err := CommonCurrency(expenditures); err != nil {
		return nil, err
	}
	ids := uniqueIDs(participants)
	if len(ids) == 0 {
		return nil, core.ErrEmptyParticipantSet
	}
	totals := make(Distribution, len(ids))
	for _, id := range ids {
		totals[id] = core.Zero()
	}
	for _, e := range expenditures {
		dist, err := ForExpenditure(e, participants)
		if err != nil {
			return nil, err
		}
		for id, a := range dist {
			totals.add(id, a)
		}
	}
	return totals, nil
}

// AggregateByPayer sums expenditure totals by the user who paid, in
// participant order. Participants who paid nothing are listed with zero.
func AggregateByPayer(expenditures []core.Expenditure, participants []core.Participant) ([]core.PayerTotal, error) {
	if _, err := CommonCurrency(expenditures); err != nil {
		return nil, err
	}
	ids := uniqueIDs(participants)
	paid := make(map[string]core.ExactAmount, len(ids))
	for _, id := range ids {
		paid[id] = core.Zero()
	}
	for _, e := range expenditures {
		if _, ok := paid[e.PayerUserID]; !ok {
			return nil, fmt.Errorf("%w: payer %q of expenditure %q", core.ErrUnknownParticipant, e.PayerUserID, e.ID)
		}
		paid[e.PayerUserID] = paid[e.PayerUserID].Add(e.Total)
	}
	out := make([]core.PayerTotal, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.PayerTotal{UserID: id, Paid: paid[id]})
	}
	return out, nil
}

// AggregateByDay groups spend by calendar day in loc (UTC when nil), oldest
// day first.
func AggregateByDay(expenditures []core.Expenditure, loc *time.Location) ([]core.DailyTotal, error) {
	if _, err := CommonCurrency(expenditures); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	byDay := make(map[time.Time]core.ExactAmount)
	for _, e := range expenditures {
		t := e.PaidAt.In(loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		byDay[day] = byDay[day].Add(e.Total)
	}
	out := make([]core.DailyTotal, 0, len(byDay))
	for day, amount := range byDay {
		out = append(out, core.DailyTotal{Day: day, Amount: amount})
	}
	slices.SortFunc(out, func(a, b core.DailyTotal) int {
		return a.Day.Compare(b.Day)
	})
	return out, nil
}

// CommonCurrency returns the single currency shared by all expenditures, or
// "" for an empty slice. Amounts in different currencies are never summed.
func CommonCurrency(expenditures []core.Expenditure) (string, error) {
	var code string
	for _, e := range expenditures {
		c := strings.ToUpper(strings.TrimSpace(e.CurrencyCode))
		if code == "" {
			code = c
			continue
		}
		if c != code {
			return "", fmt.Errorf("%w: %s and %s in expenditure %q", core.ErrCurrencyMismatch, code, c, e.ID)
		}
	}
	return code, nil
}

// Summarize builds every rollup for one session. Total covers every
// expenditure; ByCategory only the recognized categories.
func Summarize(sessionID string, expenditures []core.Expenditure, participants []core.Participant, recognized []core.Category, loc *time.Location) (core.SessionSummary, error) {
	code, err := CommonCurrency(expenditures)
	if err != nil {
		return core.SessionSummary{}, err
	}
	summary := core.SessionSummary{
		SessionID:    sessionID,
		CurrencyCode: code,
		Total:        core.Zero(),
		Unassigned:   core.Zero(),
	}
	if summary.ByCategory, err = AggregateByCategory(expenditures, recognized); err != nil {
		return core.SessionSummary{}, err
	}
	if summary.ByDay, err = AggregateByDay(expenditures, loc); err != nil {
		return core.SessionSummary{}, err
	}
	if len(uniqueIDs(participants)) == 0 {
		if len(expenditures) > 0 {
			return core.SessionSummary{}, core.ErrEmptyParticipantSet
		}
		return summary, nil
	}

	members, err := AggregateByMember(expenditures, participants)
	if err != nil {
		return core.SessionSummary{}, err
	}
	if summary.ByPayer, err = AggregateByPayer(expenditures, participants); err != nil {
		return core.SessionSummary{}, err
	}

	for _, e := range expenditures {
		summary.Total = summary.Total.Add(e.Total)
	}
	summary.Unassigned = summary.Total.Sub(members.Total())

	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if _, dup := seen[p.UserID]; dup || p.UserID == "" {
			continue
		}
		seen[p.UserID] = struct{}{}
		summary.ByMember = append(summary.ByMember, core.MemberTotal{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Owed:        members[p.UserID],
		})
	}
	return summary, nil
}
