package settlement

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"travelai/internal/core"
)

func expense(id string, c core.Category, total string, payer string, day int) core.Expenditure {
	return core.Expenditure{
		ID:           id,
		SessionID:    "trip",
		Category:     c,
		Total:        amt(total),
		CurrencyCode: "USD",
		PayerUserID:  payer,
		PaidAt:       time.Date(2025, 7, day, 10, 0, 0, 0, time.UTC),
	}
}

func TestPercentageOf(t *testing.T) {
	cases := []struct {
		amount, total string
		want          float64
	}{
		{"400", "500", 80},
		{"100", "500", 20},
		{"1", "3", 33.333333},
		{"5", "0", 0},
		{"0", "0", 0},
		{"-5", "10", 0},
		{"20", "10", 100},
	}
	for _, tc := range cases {
		got := PercentageOf(amt(tc.amount), amt(tc.total))
		if math.IsNaN(got) || math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("PercentageOf(%s, %s) = %v, want %v", tc.amount, tc.total, got, tc.want)
		}
	}
}

func TestAggregateByCategory(t *testing.T) {
	exps := []core.Expenditure{
		expense("1", core.Meal, "300", "a", 1),
		expense("2", core.Transport, "100", "a", 1),
		expense("3", core.Meal, "100", "b", 2),
		expense("4", core.Shopping, "999", "b", 2),
	}
	recognized := []core.Category{core.Activity, core.Meal, core.Lodgment, core.Transport}
	got, err := AggregateByCategory(exps, recognized)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %+v", got)
	}
	if got[0].Category != core.Meal || got[0].Amount.String() != "400" || got[0].Percentage != 80 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Category != core.Transport || got[1].Amount.String() != "100" || got[1].Percentage != 20 {
		t.Fatalf("second = %+v", got[1])
	}
	if got[0].Color == "" {
		t.Fatalf("colour should be filled")
	}
}

func TestAggregateByCategoryTieOrder(t *testing.T) {
	exps := []core.Expenditure{
		expense("1", core.Transport, "50", "a", 1),
		expense("2", core.Activity, "50", "a", 1),
		expense("3", core.Meal, "50", "a", 1),
	}
	recognized := []core.Category{core.Meal, core.Activity, core.Transport, core.Meal}
	got, err := AggregateByCategory(exps, recognized)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []core.Category{core.Meal, core.Activity, core.Transport}
	for i, c := range want {
		if got[i].Category != c {
			t.Fatalf("position %d: got %s want %s", i, got[i].Category, c)
		}
	}
}

func TestAggregateByCategoryEmpty(t *testing.T) {
	got, err := AggregateByCategory(nil, core.Categories())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
	got, err = AggregateByCategory([]core.Expenditure{expense("1", core.Meal, "0", "a", 1)}, core.Categories())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Percentage != 0 {
		t.Fatalf("zero grand total should give 0%%, got %+v", got)
	}
}

func TestAggregateByMember(t *testing.T) {
	participants := []core.Participant{alice, bob, carol}
	itemized := expense("1", core.Meal, "12000", "a", 1)
	itemized.LineItems = []core.LineItem{
		{ID: "l1", Price: amt("9000"), Allocations: []string{"a", "b", "c"}},
		{ID: "l2", Price: amt("3000"), Allocations: []string{"a"}},
	}
	even := expense("2", core.Transport, "90", "b", 1)

	got, err := AggregateByMember([]core.Expenditure{itemized, even}, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"a": "6030", "b": "3030", "c": "3030"}
	for id, w := range want {
		if g, _ := got.Owed(id); g.String() != w {
			t.Fatalf("%s owes %s, want %s", id, g, w)
		}
	}
	if got.Total().String() != "12090" {
		t.Fatalf("total %s", got.Total())
	}
}

func TestAggregateByMemberUnknownParticipant(t *testing.T) {
	e := expense("1", core.Meal, "30", "a", 1)
	e.LineItems = []core.LineItem{{ID: "l1", Price: amt("30"), Allocations: []string{"a", "ghost"}}}
	_, err := AggregateByMember([]core.Expenditure{e}, []core.Participant{alice, bob})
	if !errors.Is(err, core.ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestAggregateByMemberIdempotent(t *testing.T) {
	participants := []core.Participant{alice, bob, carol}
	e := expense("1", core.Meal, "100", "a", 1)
	e.LineItems = []core.LineItem{{ID: "l1", Price: amt("100"), Allocations: []string{"a", "b", "c"}}}
	exps := []core.Expenditure{e, expense("2", core.Etc, "10", "c", 2)}

	first, err := AggregateByMember(exps, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := AggregateByMember(exps, participants)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("results differ: %v vs %v", first, second)
	}
	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	if string(b1) != string(b2) {
		t.Fatalf("serialised results differ: %s vs %s", b1, b2)
	}
	if exps[0].LineItems[0].Allocations[0] != "a" || exps[0].Total.String() != "100" {
		t.Fatalf("inputs were mutated")
	}
}

func TestCurrencyMismatch(t *testing.T) {
	usd := expense("1", core.Meal, "10", "a", 1)
	eur := expense("2", core.Meal, "10", "a", 1)
	eur.CurrencyCode = "EUR"
	if _, err := AggregateByCategory([]core.Expenditure{usd, eur}, core.Categories()); !errors.Is(err, core.ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch, got %v", err)
	}
	lower := expense("3", core.Meal, "10", "a", 1)
	lower.CurrencyCode = "usd"
	if code, err := CommonCurrency([]core.Expenditure{usd, lower}); err != nil || code != "USD" {
		t.Fatalf("case should not matter: %s %v", code, err)
	}
}

func TestAggregateByDay(t *testing.T) {
	late := expense("3", core.Meal, "5", "a", 2)
	late.PaidAt = time.Date(2025, 7, 2, 23, 30, 0, 0, time.UTC)
	exps := []core.Expenditure{
		expense("1", core.Meal, "10", "a", 3),
		expense("2", core.Meal, "20", "a", 2),
		late,
	}
	got, err := AggregateByDay(exps, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Day.Day() != 2 || got[0].Amount.String() != "25" || got[1].Amount.String() != "10" {
		t.Fatalf("by day = %+v", got)
	}

	seoul := time.FixedZone("KST", 9*60*60)
	got, err = AggregateByDay(exps, seoul)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Amount.String() != "20" || got[1].Amount.String() != "15" {
		t.Fatalf("by day in KST = %+v", got)
	}
}

func TestAggregateByPayer(t *testing.T) {
	exps := []core.Expenditure{
		expense("1", core.Meal, "10", "b", 1),
		expense("2", core.Meal, "15", "b", 1),
	}
	got, err := AggregateByPayer(exps, []core.Participant{alice, bob})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].UserID != "a" || !got[0].Paid.IsZero() || got[1].Paid.String() != "25" {
		t.Fatalf("by payer = %+v", got)
	}
	if _, err := AggregateByPayer(exps, []core.Participant{alice}); !errors.Is(err, core.ErrUnknownParticipant) {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	participants := []core.Participant{alice, bob, carol}
	itemized := expense("1", core.Meal, "150", "a", 1)
	itemized.LineItems = []core.LineItem{
		{ID: "l1", Price: amt("90"), Allocations: []string{"a", "b", "c"}},
		{ID: "l2", Price: amt("60")},
	}
	exps := []core.Expenditure{itemized, expense("2", core.Transport, "30", "b", 2)}

	s, err := Summarize("trip", exps, participants, core.Categories(), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CurrencyCode != "USD" || s.Total.String() != "180" {
		t.Fatalf("summary header = %+v", s)
	}
	if s.Unassigned.String() != "60" {
		t.Fatalf("unassigned = %s, want 60", s.Unassigned)
	}
	if len(s.ByMember) != 3 || s.ByMember[0].DisplayName != "Alice" || s.ByMember[0].Owed.String() != "40" {
		t.Fatalf("by member = %+v", s.ByMember)
	}
	if len(s.ByCategory) != 2 || s.ByCategory[0].Category != core.Meal {
		t.Fatalf("by category = %+v", s.ByCategory)
	}
	if len(s.ByDay) != 2 || len(s.ByPayer) != 3 {
		t.Fatalf("by day/payer = %+v %+v", s.ByDay, s.ByPayer)
	}

	empty, err := Summarize("new", nil, nil, core.Categories(), nil)
	if err != nil || !empty.Total.IsZero() {
		t.Fatalf("empty session: %+v %v", empty, err)
	}
	if _, err := Summarize("x", exps, nil, core.Categories(), nil); !errors.Is(err, core.ErrEmptyParticipantSet) {
		t.Fatalf("expected ErrEmptyParticipantSet, got %v", err)
	}
}
