package core

import (
	"fmt"
	"strings"
	"time"
)

// Categories in declaration order. The order breaks ties when sorting
// category totals.
const (
	Activity  Category = "activity"
	Meal      Category = "meal"
	Lodgment  Category = "lodgment"
	Transport Category = "transport"
	Shopping  Category = "shopping"
	Etc       Category = "etc"
)

type (
	Category string

	// Participant is a member of a travel session. Identity is UserID only.
	Participant struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
	}

	// LineItem is one line of an itemised receipt. Allocations lists the
	// user ids sharing the line; empty means unassigned.
	LineItem struct {
		ID          string      `json:"id"`
		Label       string      `json:"label"`
		Price       ExactAmount `json:"price"`
		Allocations []string    `json:"allocations"`
	}

	// Expenditure is a single recorded spend within a session.
	Expenditure struct {
		ID             string      `json:"id"`
		SessionID      string      `json:"session_id"`
		Category       Category    `json:"category"`
		Total          ExactAmount `json:"total_amount"`
		CurrencyCode   string      `json:"currency_code"`
		PayerUserID    string      `json:"payer_user_id"`
		ParticipantIDs []string    `json:"participant_ids,omitempty"`
		LineItems      []LineItem  `json:"line_items"`
		PaidAt         time.Time   `json:"paid_at"`
	}
)

var categoryOrder = []Category{Activity, Meal, Lodgment, Transport, Shopping, Etc}

var categoryColors = map[Category]string{
	Activity:  "#FF7A5C",
	Meal:      "#FFC24B",
	Lodgment:  "#6C8CFF",
	Transport: "#3CC9A7",
	Shopping:  "#C77DFF",
	Etc:       "#A0A4B0",
}

var categoryAliases = map[string]Category{
	"lodging":       Lodgment,
	"accommodation": Lodgment,
	"food":          Meal,
	"other":         Etc,
}

// Categories returns every category in declaration order.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// ParseCategory accepts a category name case-insensitively, including a few
// legacy aliases.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, c := range categoryOrder {
		if string(c) == name {
			return c, nil
		}
	}
	if c, ok := categoryAliases[name]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	_, ok := categoryColors[c]
	return ok
}

// Color is the chart colour for the category. Presentation only.
func (c Category) Color() string {
	return categoryColors[c]
}

// SameParticipant compares by user id only.
func SameParticipant(a, b Participant) bool {
	return a.UserID == b.UserID
}

// HasAllocations reports whether any line item is assigned to someone.
func (e Expenditure) HasAllocations() bool {
	for _, li := range e.LineItems {
		if len(li.Allocations) > 0 {
			return true
		}
	}
	return false
}

// ItemsTotal is the sum of all line prices.
func (e Expenditure) ItemsTotal() ExactAmount {
	total := Zero()
	for _, li := range e.LineItems {
		total = total.Add(li.Price)
	}
	return total
}

// UnassignedTotal is the sum of prices of lines nobody is allocated to.
func (e Expenditure) UnassignedTotal() ExactAmount {
	total := Zero()
	for _, li := range e.LineItems {
		if len(li.Allocations) == 0 {
			total = total.Add(li.Price)
		}
	}
	return total
}

// ReferencedUserIDs returns payer, stated participants and allocations,
// deduplicated in first-seen order.
func (e Expenditure) ReferencedUserIDs() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(e.PayerUserID)
	for _, id := range e.ParticipantIDs {
		add(id)
	}
	for _, li := range e.LineItems {
		for _, id := range li.Allocations {
			add(id)
		}
	}
	return out
}

// Clone returns a deep copy so callers can edit line items without touching
// the original record.
func (e Expenditure) Clone() Expenditure {
	out := e
	out.ParticipantIDs = append([]string(nil), e.ParticipantIDs...)
	out.LineItems = make([]LineItem, len(e.LineItems))
	for i, li := range e.LineItems {
		li.Allocations = append([]string(nil), li.Allocations...)
		out.LineItems[i] = li
	}
	return out
}

// LineItem returns the line with the given id.
func (e Expenditure) LineItem(id string) (LineItem, int, bool) {
	for i, li := range e.LineItems {
		if li.ID == id {
			return li, i, true
		}
	}
	return LineItem{}, -1, false
}

func (p Participant) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrUnknownParticipant)
	}
	return nil
}

func (li LineItem) Validate() error {
	if li.Price.Sign() < 0 {
		return fmt.Errorf("%w: line %q has negative price", ErrInvalidAmount, li.ID)
	}
	seen := make(map[string]struct{}, len(li.Allocations))
	for _, id := range li.Allocations {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: line %q has an empty allocation", ErrInvalidExpenditure, li.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: line %q allocates %q twice", ErrInvalidExpenditure, li.ID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (e Expenditure) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidExpenditure)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, e.Category)
	}
	if e.Total.Sign() < 0 {
		return fmt.Errorf("%w: negative total", ErrInvalidAmount)
	}
	if err := ValidateCurrencyCode(e.CurrencyCode); err != nil {
		return err
	}
	if strings.TrimSpace(e.PayerUserID) == "" {
		return fmt.Errorf("%w: missing payer", ErrInvalidExpenditure)
	}
	ids := make(map[string]struct{}, len(e.LineItems))
	for _, li := range e.LineItems {
		if err := li.Validate(); err != nil {
			return err
		}
		if li.ID != "" {
			if _, dup := ids[li.ID]; dup {
				return fmt.Errorf("%w: duplicate line id %q", ErrInvalidExpenditure, li.ID)
			}
			ids[li.ID] = struct{}{}
		}
	}
	if e.ItemsTotal().Cmp(e.Total) > 0 {
		return fmt.Errorf("%w: line items total %s exceeds total %s", ErrInvalidExpenditure, e.ItemsTotal(), e.Total)
	}
	return nil
}
