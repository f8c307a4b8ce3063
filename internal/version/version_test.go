package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "1.2.0", GitSHA: "0123456789abcdef", BuildTime: "2026-03-01T12:00:00Z"}
	assert.Equal(t, "1.2.0 (0123456789ab, built 2026-03-01T12:00:00Z)", info.String())

	info.GitSHA = "abc"
	assert.Equal(t, "1.2.0 (abc, built 2026-03-01T12:00:00Z)", info.String())
}
