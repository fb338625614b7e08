package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{" 2.50 ", "2.5", true},
		{"1e3", "1000", true},
		{"-4.2", "-4.2", true},
		{"10/3", "10/3", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1/0", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestFromDecimal(t *testing.T) {
	a, err := FromDecimal(0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := NewExactAmount(1, 10)
	if !a.Equal(want) {
		t.Fatalf("0.1 should be exactly 1/10, got %s", a)
	}

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FromDecimal(v); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%v expected ErrInvalidAmount, got %v", v, err)
		}
	}

	if _, err := FromNonNegativeDecimal(-1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative expected ErrInvalidAmount, got %v", err)
	}
	if _, err := FromDecimal(-1); err != nil {
		t.Fatalf("negative allowed by FromDecimal, got %v", err)
	}
}

func TestDivideAndRecombine(t *testing.T) {
	totals := []string{"100", "0.01", "12000", "99.99", "1234567.89", "0"}
	for _, s := range totals {
		total := MustParseAmount(s)
		for n := 1; n <= 13; n++ {
			share, err := total.Divide(n)
			if err != nil {
				t.Fatalf("divide %s by %d: %v", s, n, err)
			}
			parts := make([]ExactAmount, n)
			for i := range parts {
				parts[i] = share
			}
			if got := Sum(parts...); !got.Equal(total) {
				t.Fatalf("%s split %d ways recombines to %s", s, n, got)
			}
			if got := share.MulInt(int64(n)); !got.Equal(total) {
				t.Fatalf("%s/%d*%d = %s", s, n, n, got)
			}
		}
	}
}

func TestDivideByZero(t *testing.T) {
	if _, err := FromInt(10).Divide(0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	if _, err := NewExactAmount(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestDenominatorAlwaysPositive(t *testing.T) {
	a, err := NewExactAmount(3, -4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Denom().Sign() <= 0 {
		t.Fatalf("denominator must be positive, got %s", a.Denom())
	}
	if a.Sign() >= 0 {
		t.Fatalf("3/-4 should be negative, got %s", a)
	}
}

func TestOperationsDoNotMutate(t *testing.T) {
	a := MustParseAmount("10")
	b := MustParseAmount("5")
	_ = a.Add(b)
	_ = a.Sub(b)
	_ = a.Multiply(b)
	_, _ = a.Divide(3)
	if a.String() != "10" || b.String() != "5" {
		t.Fatalf("operands changed: a=%s b=%s", a, b)
	}
}

func TestZeroValue(t *testing.T) {
	var a ExactAmount
	if !a.IsZero() || a.String() != "0" {
		t.Fatalf("zero value should be 0, got %s", a)
	}
	if got := a.Add(FromInt(2)); got.String() != "2" {
		t.Fatalf("0+2 = %s", got)
	}
}

func TestStringAndRounding(t *testing.T) {
	third, _ := FromInt(10).Divide(3)
	if third.String() != "10/3" {
		t.Fatalf("repeating fraction should stay a fraction, got %s", third)
	}
	if got := third.Round(2).String(); got != "3.33" {
		t.Fatalf("round(10/3, 2) = %s", got)
	}
	half := MustParseAmount("2.345")
	if got := half.Round(2).String(); got != "2.35" {
		t.Fatalf("half away from zero expected 2.35, got %s", got)
	}
	if got := third.FloatString(4); got != "3.3333" {
		t.Fatalf("FloatString = %s", got)
	}
	if got := third.ToDecimal(); math.Abs(got-3.3333333) > 1e-6 {
		t.Fatalf("ToDecimal = %v", got)
	}
}

func TestAmountJSON(t *testing.T) {
	var v struct {
		A ExactAmount `json:"a"`
		B ExactAmount `json:"b"`
		C ExactAmount `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.30, "b": "0.1", "c": "10/3"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.String() != "12.3" || v.B.String() != "0.1" || v.C.String() != "10/3" {
		t.Fatalf("decoded a=%s b=%s c=%s", v.A, v.B, v.C)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"12.3","b":"0.1","c":"10/3"}` {
		t.Fatalf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"a": "x"}`), &v); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
