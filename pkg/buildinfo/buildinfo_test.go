package buildinfo

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_Defaults(t *testing.T) {
	info := Get()

	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.Commit)
	assert.Equal(t, "unknown", info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.False(t, info.IsRelease())
}

func TestString(t *testing.T) {
	assert.Equal(t, "dev (unknown, unknown)", String())

	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "v1.3.0"
	Commit = "4e1d0c2"
	BuildTime = "2025-04-02T18:00:00Z"

	assert.Equal(t, "v1.3.0 (4e1d0c2, 2025-04-02T18:00:00Z)", String())
	assert.True(t, Get().IsRelease())
}

func TestInfo_JSON(t *testing.T) {
	data, err := json.Marshal(Info{
		Version:   "v1.0.0",
		Commit:    "abcd1234",
		BuildTime: "2025-01-01T00:00:00Z",
		GoVersion: "go1.24.0",
		Platform:  "linux/amd64",
	})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]string{
		"version":    "v1.0.0",
		"commit":     "abcd1234",
		"build_time": "2025-01-01T00:00:00Z",
		"go_version": "go1.24.0",
		"platform":   "linux/amd64",
	}, decoded)
}
