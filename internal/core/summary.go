package core

import "time"

// SettlementCategoryTotal is the summed spend of one category and its share
// of the grand total. Derived on every aggregation, never stored.
type SettlementCategoryTotal struct {
	Category   Category    `json:"category"`
	Amount     ExactAmount `json:"amount"`
	Percentage float64     `json:"percentage"`
	Color      string      `json:"color,omitempty"`
}

// MemberTotal is what one participant owes across a set of expenditures.
type MemberTotal struct {
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Owed        ExactAmount `json:"owed"`
}

// PayerTotal is what one participant paid out of pocket.
type PayerTotal struct {
	UserID string      `json:"user_id"`
	Paid   ExactAmount `json:"paid"`
}

// DailyTotal is the spend on one calendar day.
type DailyTotal struct {
	Day    time.Time   `json:"day"`
	Amount ExactAmount `json:"amount"`
}

// SessionSummary bundles every rollup for one session.
type SessionSummary struct {
	SessionID    string                    `json:"session_id"`
	CurrencyCode string                    `json:"currency_code"`
	Total        ExactAmount               `json:"total"`
	Unassigned   ExactAmount               `json:"unassigned"`
	ByCategory   []SettlementCategoryTotal `json:"by_category"`
	ByMember     []MemberTotal             `json:"by_member"`
	ByPayer      []PayerTotal              `json:"by_payer"`
	ByDay        []DailyTotal              `json:"by_day"`
}
