package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOppositeSide(t *testing.T) {
	if got := OppositeSide(SideBuy); got != SideSell {
		t.Errorf("OppositeSide(Buy) = %q", got)
	}
	if got := OppositeSide(SideSell); got != SideBuy {
		t.Errorf("OppositeSide(Sell) = %q", got)
	}
}

func TestAccountRoles(t *testing.T) {
	master := Account{Role: RoleMaster}
	if !master.IsMaster() || master.IsSlave() {
		t.Error("master role misreported")
	}
	slave := Account{Role: RoleSlave}
	if !slave.IsSlave() || slave.IsMaster() {
		t.Error("slave role misreported")
	}
}

func TestUpdatePnLToday(t *testing.T) {
	var a Account

	a.UpdatePnLToday(1000)
	if a.PnLToday != 0 {
		t.Errorf("first balance of the day gives PnL %v, want 0", a.PnLToday)
	}
	if a.DayStartBalance == nil || *a.DayStartBalance != 1000 {
		t.Fatal("day start balance not recorded")
	}

	a.UpdatePnLToday(1050)
	if a.PnLToday != 50 {
		t.Errorf("PnLToday = %v, want 50", a.PnLToday)
	}

	a.UpdatePnLToday(990)
	if a.PnLToday != -10 {
		t.Errorf("PnLToday = %v, want -10", a.PnLToday)
	}
	if *a.DayStartBalance != 1000 {
		t.Errorf("day start balance drifted to %v", *a.DayStartBalance)
	}
}

func TestPositionIsOpen(t *testing.T) {
	open := Position{Size: decimal.NewFromFloat(0.5)}
	if !open.IsOpen() {
		t.Error("position with size must be open")
	}
	flat := Position{Size: decimal.Zero}
	if flat.IsOpen() {
		t.Error("zero-size position must be closed")
	}
}

func TestOrderIsActive(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"New", true},
		{"PartiallyFilled", true},
		{"Untriggered", true},
		{"Filled", false},
		{"Cancelled", false},
		{"Rejected", false},
	}
	for _, tt := range tests {
		o := Order{OrderStatus: tt.status}
		if got := o.IsActive(); got != tt.want {
			t.Errorf("IsActive(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestWalletBalanceCoinAmount(t *testing.T) {
	w := WalletBalance{Coins: []CoinBalance{
		{Coin: "USDT", WalletBalance: decimal.NewFromInt(100)},
		{Coin: "BTC", WalletBalance: decimal.NewFromFloat(0.5)},
	}}

	if !w.CoinAmount("USDT").Equal(decimal.NewFromInt(100)) {
		t.Error("USDT amount mismatch")
	}
	if !w.CoinAmount("ETH").IsZero() {
		t.Error("unknown coin must be zero")
	}
}
