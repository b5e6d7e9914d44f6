package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillFromBuildInfo(t *testing.T) {
	b := Build{Version: "dev", Commit: "unknown", Date: "unknown"}
	fill(&b, &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-02-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})
	assert.Equal(t, "v1.2.3", b.Version)
	assert.Equal(t, "0123456789ab", b.Commit)
	assert.Equal(t, "2026-02-01T10:00:00Z", b.Date)
	assert.True(t, b.Modified)
}

func TestFillKeepsLinkerValues(t *testing.T) {
	b := Build{Version: "v2.0.0", Commit: "abc", Date: "today"}
	fill(&b, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "zzz"}},
	})
	assert.Equal(t, "v2.0.0", b.Version)
	assert.Equal(t, "abc", b.Commit)
	assert.Equal(t, "today", b.Date)
}

func TestInfo(t *testing.T) {
	info := Info()
	for _, label := range []string{"Version:", "Commit:", "Built:", "Go version:", "OS/Arch:"} {
		assert.True(t, strings.Contains(info, label), label)
	}
	assert.NotEmpty(t, Short())
}
