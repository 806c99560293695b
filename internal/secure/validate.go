package secure

import (
	"fmt"
	"regexp"
	"strings"

	"copytrader/models"
)

var (
	apiKeyPattern    = regexp.MustCompile(`^[A-Za-z0-9\-_]{20,50}$`)
	apiSecretPattern = regexp.MustCompile(`^[A-Za-z0-9\-_=+/]{20,100}$`)
	urlPattern       = regexp.MustCompile(`^https://[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}(/.*)?$`)
	symbolPattern    = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)
)

// ValidAPIKey reports whether an API key has a plausible format.
func ValidAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}

// ValidAPISecret reports whether an API secret has a plausible format.
func ValidAPISecret(secret string) bool {
	return apiSecretPattern.MatchString(secret)
}

// ValidURL reports whether a URL is HTTPS and well-formed.
func ValidURL(url string) bool {
	return urlPattern.MatchString(url)
}

// ValidSymbol reports whether a trading symbol is well-formed.
func ValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// ValidTelegramID reports whether a Telegram user ID is within bounds.
func ValidTelegramID(id int64) bool {
	return id > 0 && id < 1e12
}

// ValidQuantity reports whether a trading quantity is within bounds.
func ValidQuantity(qty float64) bool {
	return qty > 0 && qty < 1e6
}

// ValidateAccount checks a full account configuration and returns every
// problem found.
func ValidateAccount(a *models.Account) []string {
	var errs []string

	if a.Nickname == "" {
		errs = append(errs, "nickname is required")
	}
	if !ValidAPIKey(a.APIKey) {
		errs = append(errs, "invalid API key format")
	}
	if !ValidAPISecret(a.APISecret) {
		errs = append(errs, "invalid API secret format")
	}
	if !ValidURL(a.URL) {
		errs = append(errs, "invalid URL format (must be HTTPS)")
	}
	if a.AccountType != models.AccountLive && a.AccountType != models.AccountDemo {
		errs = append(errs, "account_type must be 'live' or 'demo'")
	}
	if a.Role != models.RoleMaster && a.Role != models.RoleSlave {
		errs = append(errs, "role must be 'master' or 'slave'")
	}
	if a.CopyMultiplier <= 0 {
		errs = append(errs, "copy_multiplier must be positive")
	}
	if a.TelegramID != 0 && !ValidTelegramID(a.TelegramID) {
		errs = append(errs, "invalid Telegram ID")
	}
	for _, s := range a.SymbolsToCopy {
		if !ValidSymbol(s) {
			errs = append(errs, fmt.Sprintf("invalid symbol format: %s", s))
		}
	}

	return errs
}

var sensitiveKeys = []string{
	"api_key", "api_secret", "password", "token", "secret",
	"private_key", "auth_token", "session_id",
}

// Redact masks values of sensitive keys for safe logging, keeping the
// first and last four characters of long values.
func Redact(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if isSensitiveKey(k) {
			out[k] = Mask(v)
			continue
		}
		out[k] = v
	}
	return out
}

// Mask shortens a secret to first4...last4, or fully redacts short values.
func Mask(v string) string {
	if len(v) > 8 {
		return v[:4] + "..." + v[len(v)-4:]
	}
	return "[REDACTED]"
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
