package monitor

import "strings"

// ErrorCategory classifies a job failure message
type ErrorCategory string

const (
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryNetwork        ErrorCategory = "network"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryDatabase       ErrorCategory = "database"
	CategoryCache          ErrorCategory = "cache"
	CategoryAIService      ErrorCategory = "ai_service"
	CategoryPermission     ErrorCategory = "permission"
	CategoryOther          ErrorCategory = "other"
)

// categoryRules are checked in order; the first rule with a matching
// keyword wins. Keywords are lower case.
var categoryRules = []struct {
	category ErrorCategory
	keywords []string
}{
	{CategoryTimeout, []string{"timeout", "timed out"}},
	{CategoryNetwork, []string{"network", "connection", "unreachable", "dns"}},
	{CategoryAuthentication, []string{"auth", "unauthorized", "credential", "token"}},
	{CategoryRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{CategoryDatabase, []string{"database", "sql", "db ", "deadlock"}},
	{CategoryCache, []string{"cache", "redis"}},
	{CategoryAIService, []string{"ai service", "model", "openai", "inference"}},
	{CategoryPermission, []string{"permission", "forbidden", "access denied"}},
}

// CategorizeError maps a failure message to exactly one category
func CategorizeError(message string) ErrorCategory {
	lower := strings.ToLower(message)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
