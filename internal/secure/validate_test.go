package secure

import (
	"strings"
	"testing"

	"copytrader/models"
)

func TestValidAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"abcdefghij1234567890", true},
		{"abc-def_GHI-1234567890", true},
		{"short", false},
		{"", false},
		{strings.Repeat("a", 51), false},
		{"has spaces 1234567890abc", false},
		{"has!bang!1234567890abcd", false},
	}
	for _, tt := range tests {
		if got := ValidAPIKey(tt.key); got != tt.want {
			t.Errorf("ValidAPIKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestValidURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://api.bybit.com", true},
		{"https://api-demo.bybit.com/v5", true},
		{"http://api.bybit.com", false},
		{"ftp://api.bybit.com", false},
		{"api.bybit.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidURL(tt.url); got != tt.want {
			t.Errorf("ValidURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestValidSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   bool
	}{
		{"BTCUSDT", true},
		{"1000PEPEUSDT", true},
		{"btcusdt", false},
		{"BT", false},
		{"BTC-USDT", false},
	}
	for _, tt := range tests {
		if got := ValidSymbol(tt.symbol); got != tt.want {
			t.Errorf("ValidSymbol(%q) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestValidateAccount(t *testing.T) {
	valid := models.Account{
		Nickname:       "main",
		APIKey:         "abcdefghij1234567890",
		APISecret:      "abcdefghij1234567890abcdefghij",
		URL:            "https://api.bybit.com",
		AccountType:    models.AccountLive,
		Role:           models.RoleMaster,
		CopyMultiplier: 1,
	}
	if errs := ValidateAccount(&valid); len(errs) != 0 {
		t.Fatalf("valid account rejected: %v", errs)
	}

	broken := valid
	broken.Nickname = ""
	broken.URL = "http://api.bybit.com"
	broken.Role = "follower"
	broken.CopyMultiplier = 0
	broken.SymbolsToCopy = []string{"BTCUSDT", "bad symbol"}

	errs := ValidateAccount(&broken)
	if len(errs) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(errs), errs)
	}
}

func TestRedact(t *testing.T) {
	in := map[string]string{
		"api_key":  "abcdefghij1234567890",
		"nickname": "main",
		"password": "short",
	}
	out := Redact(in)

	if out["api_key"] != "abcd...7890" {
		t.Errorf("api_key = %q", out["api_key"])
	}
	if out["nickname"] != "main" {
		t.Errorf("nickname must pass through, got %q", out["nickname"])
	}
	if out["password"] != "[REDACTED]" {
		t.Errorf("short secrets must be fully redacted, got %q", out["password"])
	}
}

func TestMask(t *testing.T) {
	if got := Mask("1234567890"); got != "1234...7890" {
		t.Errorf("Mask = %q", got)
	}
	if got := Mask("12345678"); got != "[REDACTED]" {
		t.Errorf("Mask of short value = %q", got)
	}
}
