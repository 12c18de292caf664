package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeTable(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"5", "5"},
		{"  Terraza  ", "terraza"},
		{"Salón Principal", "salon principal"},
		{"BARRA ñ", "barra n"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeTable(c.in); got != c.want {
			t.Errorf("NormalizeTable(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCalculateTotal(t *testing.T) {
	items := []OrderItem{
		{Quantity: 3, Price: decimal.NewFromInt(10)},
		{Quantity: 2, Price: decimal.NewFromInt(5)},
	}
	if got := CalculateTotal(items); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("CalculateTotal() = %s, want 40", got)
	}
}

func TestMovementsNet(t *testing.T) {
	movs := []CashMovement{
		{Type: MovementIngreso, Amount: decimal.NewFromInt(30)},
		{Type: MovementRetiro, Amount: decimal.NewFromInt(12)},
		{Type: MovementIngreso, Amount: decimal.RequireFromString("2.5")},
	}
	if got := MovementsNet(movs); !got.Equal(decimal.RequireFromString("20.5")) {
		t.Errorf("MovementsNet() = %s, want 20.5", got)
	}
}
