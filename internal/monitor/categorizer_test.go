package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    ErrorCategory
	}{
		{"Connection timeout", CategoryTimeout},
		{"Network unreachable", CategoryNetwork},
		{"database timeout while saving", CategoryTimeout},
		{"redis connection refused", CategoryNetwork},
		{"Unauthorized: token expired", CategoryAuthentication},
		{"HTTP 429 Too Many Requests", CategoryRateLimit},
		{"SQL deadlock detected", CategoryDatabase},
		{"cache miss storm", CategoryCache},
		{"model inference failed", CategoryAIService},
		{"access denied", CategoryPermission},
		{"segmentation fault", CategoryOther},
		{"", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CategorizeError(tt.message))
		})
	}
}

func TestCategoryRuleOrder(t *testing.T) {
	t.Parallel()

	want := []ErrorCategory{
		CategoryTimeout, CategoryNetwork, CategoryAuthentication, CategoryRateLimit,
		CategoryDatabase, CategoryCache, CategoryAIService, CategoryPermission,
	}
	got := make([]ErrorCategory, 0, len(categoryRules))
	for _, r := range categoryRules {
		got = append(got, r.category)
	}
	assert.Equal(t, want, got)
}
