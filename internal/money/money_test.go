package money

import (
	"testing"
)

var (
	USDC = MustGetAsset("USDC")
	USDT = MustGetAsset("USDT")
	SOL  = MustGetAsset("SOL")
)

func TestFromMajor(t *testing.T) {
	tests := []struct {
		name       string
		asset      Asset
		major      string
		wantAtomic int64
		wantErr    bool
	}{
		// USDC (6 decimals)
		{"USDC 1.5", USDC, "1.5", 1500000, false},
		{"USDC 10", USDC, "10", 10000000, false},
		{"USDC 0.000001", USDC, "0.000001", 1, false},
		{"USDC rounding up", USDC, "1.0000005", 1000001, false},
		{"USDC negative", USDC, "-1.5", -1500000, false},

		// SOL (9 decimals)
		{"SOL 0.5", SOL, "0.5", 500000000, false},
		{"SOL 1", SOL, "1", 1000000000, false},

		// Errors
		{"invalid format", USDC, "10.50.30", 0, true},
		{"invalid number", USDC, "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMajor(tt.asset, tt.major)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromMajor() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Atomic != tt.wantAtomic {
				t.Errorf("FromMajor() atomic = %v, want %v", got.Atomic, tt.wantAtomic)
			}
		})
	}
}

func TestToMajor(t *testing.T) {
	tests := []struct {
		name  string
		money Money
		want  string
	}{
		{"USDC 1.5", Money{USDC, 1500000}, "1.500000"},
		{"USDC 10", Money{USDC, 10000000}, "10.000000"},
		{"USDC zero", Money{USDC, 0}, "0.000000"},
		{"USDC negative", Money{USDC, -1500000}, "-1.500000"},
		{"SOL 0.5", Money{SOL, 500000000}, "0.500000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.money.ToMajor()
			if got != tt.want {
				t.Errorf("ToMajor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromAtomic(t *testing.T) {
	tests := []struct {
		name       string
		asset      Asset
		atomic     string
		wantAtomic int64
		wantErr    bool
	}{
		{"USDC 1500000", USDC, "1500000", 1500000, false},
		{"USDT 1000000", USDT, "1000000", 1000000, false},
		{"invalid", USDC, "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAtomic(tt.asset, tt.atomic)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromAtomic() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Atomic != tt.wantAtomic {
				t.Errorf("FromAtomic() = %v, want %v", got.Atomic, tt.wantAtomic)
			}
		})
	}
}

func TestUSDToSmallestUnit(t *testing.T) {
	tests := []struct {
		name    string
		usd     float64
		asset   Asset
		want    int64
		wantErr bool
	}{
		{"USDC 1.50", 1.50, USDC, 1500000, false},
		{"USDC floors fractional atomic unit", 1.5000001, USDC, 1500000, false},
		{"USDC zero", 0, USDC, 0, false},
		{"USDC small", 0.000001, USDC, 1, false},
		{"negative rejected", -1.0, USDC, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := USDToSmallestUnit(tt.usd, tt.asset)
			if (err != nil) != tt.wantErr {
				t.Errorf("USDToSmallestUnit() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("USDToSmallestUnit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		a       Money
		b       Money
		want    int64
		wantErr bool
	}{
		{"same asset", Money{USDC, 1000}, Money{USDC, 500}, 1500, false},
		{"negative", Money{USDC, 1000}, Money{USDC, -500}, 500, false},
		{"different assets", Money{USDC, 1000}, Money{USDT, 500}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Add(tt.b)
			if (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Atomic != tt.want {
				t.Errorf("Add() = %v, want %v", got.Atomic, tt.want)
			}
		})
	}
}

func TestSub(t *testing.T) {
	tests := []struct {
		name    string
		a       Money
		b       Money
		want    int64
		wantErr bool
	}{
		{"positive result", Money{USDC, 1000}, Money{USDC, 500}, 500, false},
		{"negative result", Money{USDC, 500}, Money{USDC, 1000}, -500, false},
		{"different assets", Money{USDC, 1000}, Money{USDT, 500}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Sub(tt.b)
			if (err != nil) != tt.wantErr {
				t.Errorf("Sub() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Atomic != tt.want {
				t.Errorf("Sub() = %v, want %v", got.Atomic, tt.want)
			}
		})
	}
}

func TestMul(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		multiplier int64
		want       int64
	}{
		{"double", Money{USDC, 1000}, 2, 2000},
		{"zero", Money{USDC, 1000}, 0, 0},
		{"negative", Money{USDC, 1000}, -2, -2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.money.Mul(tt.multiplier)
			if err != nil {
				t.Fatalf("Mul() unexpected error = %v", err)
			}
			if got.Atomic != tt.want {
				t.Errorf("Mul() = %v, want %v", got.Atomic, tt.want)
			}
		})
	}
}

func TestComparisons(t *testing.T) {
	a := Money{USDC, 1000}
	b := Money{USDC, 500}
	c := Money{USDC, 1000}
	d := Money{USDT, 1000}

	if !a.GreaterOrEqual(b) {
		t.Error("Expected a >= b")
	}
	if !b.LessThan(a) {
		t.Error("Expected b < a")
	}
	if !a.Equal(c) {
		t.Error("Expected a == c")
	}
	if a.Equal(d) {
		t.Error("Expected a != d (different assets)")
	}
}

func TestChecks(t *testing.T) {
	positive := Money{USDC, 100}
	zero := Money{USDC, 0}

	if !positive.IsPositive() || positive.IsZero() {
		t.Error("Positive check failed")
	}
	if !zero.IsZero() || zero.IsPositive() {
		t.Error("Zero check failed")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name  string
		money Money
		want  string
	}{
		{"USDC positive", Money{USDC, 1500000}, "1.500000 USDC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoundTripMajor(t *testing.T) {
	tests := []struct {
		asset Asset
		major string
	}{
		{USDC, "10.50"},
		{USDC, "1.5"},
		{SOL, "0.123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.asset.Code+" "+tt.major, func(t *testing.T) {
			m, err := FromMajor(tt.asset, tt.major)
			if err != nil {
				t.Fatalf("FromMajor() error = %v", err)
			}

			roundTrip, err := FromMajor(tt.asset, m.ToMajor())
			if err != nil {
				t.Fatalf("Round trip FromMajor() error = %v", err)
			}

			if m.Atomic != roundTrip.Atomic {
				t.Errorf("Round trip failed: %v -> %v -> %v", tt.major, m.Atomic, roundTrip.Atomic)
			}
		})
	}
}
