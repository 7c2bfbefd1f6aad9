package buildinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		ctx           *Context
		wantVersion   string
		wantBuildDate string
		wantCommit    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"empty version", NewContext("", "2026-01-01", "abc1234"), UnknownValue, "2026-01-01", "abc1234"},
		{"valid version", NewContext("1.4.0", "2026-01-01", "abc1234"), "1.4.0", "2026-01-01", "abc1234"},
		{"pre-release tag", NewContext("1.4.0-beta.1", "", "abc1234"), "1.4.0-beta.1", UnknownValue, "abc1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantVersion, tt.ctx.Version())
			assert.Equal(t, tt.wantBuildDate, tt.ctx.BuildDate())
			assert.Equal(t, tt.wantCommit, tt.ctx.Commit())
		})
	}
}

func TestReleaseAndUserAgent(t *testing.T) {
	t.Parallel()

	ctx := NewContext("1.4.0", "2026-01-01", "abc1234")
	assert.Equal(t, "healthmon@1.4.0", ctx.Release())
	assert.Equal(t, "healthmon/1.4.0", ctx.UserAgent())

	var unset *Context
	assert.Equal(t, "healthmon@unknown", unset.Release())
}

func TestInfo(t *testing.T) {
	t.Parallel()

	info := NewContext("1.4.0", "2026-01-01", "abc1234").Info()
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
