package http

import (
	"travelai/internal/core"
	"travelai/internal/settlement"
)

// amountView carries the lossless amount next to its display form.
type amountView struct {
	Exact   string `json:"exact"`
	Display string `json:"display,omitempty"`
}

type shareView struct {
	UserID string     `json:"user_id"`
	Owed   amountView `json:"owed"`
}

type distributionView struct {
	ExpenditureID string      `json:"expenditure_id,omitempty"`
	CurrencyCode  string      `json:"currency_code"`
	Total         amountView  `json:"total"`
	Unassigned    *amountView `json:"unassigned,omitempty"`
	Shares        []shareView `json:"shares"`
}

type categoryView struct {
	Category   core.Category `json:"category"`
	Amount     amountView    `json:"amount"`
	Percentage float64       `json:"percentage"`
	Color      string        `json:"color,omitempty"`
}

type memberView struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name,omitempty"`
	Owed        amountView `json:"owed"`
}

type payerView struct {
	UserID string     `json:"user_id"`
	Paid   amountView `json:"paid"`
}

type dayView struct {
	Day    string     `json:"day"`
	Amount amountView `json:"amount"`
}

type summaryView struct {
	SessionID    string         `json:"session_id"`
	CurrencyCode string         `json:"currency_code,omitempty"`
	Locale       string         `json:"locale"`
	Total        amountView     `json:"total"`
	Unassigned   amountView     `json:"unassigned"`
	ByCategory   []categoryView `json:"by_category"`
	ByMember     []memberView   `json:"by_member"`
	ByPayer      []payerView    `json:"by_payer"`
	ByDay        []dayView      `json:"by_day"`
}

type expenditureView struct {
	Expenditure  core.Expenditure `json:"expenditure"`
	Distribution distributionView `json:"distribution"`
}

// presenter renders amounts for one locale and currency. An empty currency
// (a session with no expenditures) yields exact strings only.
type presenter struct {
	locale   string
	currency string
}

func (p presenter) amount(a core.ExactAmount) (amountView, error) {
	v := amountView{Exact: a.String()}
	if p.currency == "" {
		return v, nil
	}
	display, err := core.ToDisplayString(a, p.locale, p.currency)
	if err != nil {
		return amountView{}, err
	}
	v.Display = display
	return v, nil
}

func (p presenter) distribution(dist settlement.Distribution) (distributionView, error) {
	total, err := p.amount(dist.Total())
	if err != nil {
		return distributionView{}, err
	}
	view := distributionView{
		CurrencyCode: p.currency,
		Total:        total,
		Shares:       make([]shareView, 0, len(dist)),
	}
	for _, id := range dist.UserIDs() {
		owed, err := p.amount(dist[id])
		if err != nil {
			return distributionView{}, err
		}
		view.Shares = append(view.Shares, shareView{UserID: id, Owed: owed})
	}
	return view, nil
}

func (p presenter) summary(sum core.SessionSummary) (summaryView, error) {
	view := summaryView{
		SessionID:    sum.SessionID,
		CurrencyCode: sum.CurrencyCode,
		Locale:       p.locale,
		ByCategory:   make([]categoryView, 0, len(sum.ByCategory)),
		ByMember:     make([]memberView, 0, len(sum.ByMember)),
		ByPayer:      make([]payerView, 0, len(sum.ByPayer)),
		ByDay:        make([]dayView, 0, len(sum.ByDay)),
	}
	var err error
	if view.Total, err = p.amount(sum.Total); err != nil {
		return summaryView{}, err
	}
	if view.Unassigned, err = p.amount(sum.Unassigned); err != nil {
		return summaryView{}, err
	}
	for _, c := range sum.ByCategory {
		amt, err := p.amount(c.Amount)
		if err != nil {
			return summaryView{}, err
		}
		view.ByCategory = append(view.ByCategory, categoryView{
			Category:   c.Category,
			Amount:     amt,
			Percentage: c.Percentage,
			Color:      c.Color,
		})
	}
	for _, m := range sum.ByMember {
		owed, err := p.amount(m.Owed)
		if err != nil {
			return summaryView{}, err
		}
		view.ByMember = append(view.ByMember, memberView{UserID: m.UserID, DisplayName: m.DisplayName, Owed: owed})
	}
	for _, pt := range sum.ByPayer {
		paid, err := p.amount(pt.Paid)
		if err != nil {
			return summaryView{}, err
		}
		view.ByPayer = append(view.ByPayer, payerView{UserID: pt.UserID, Paid: paid})
	}
	for _, d := range sum.ByDay {
		amt, err := p.amount(d.Amount)
		if err != nil {
			return summaryView{}, err
		}
		view.ByDay = append(view.ByDay, dayView{Day: d.Day.Format("2006-01-02"), Amount: amt})
	}
	return view, nil
}
