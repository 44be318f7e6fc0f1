package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "none", info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestInfo_String(t *testing.T) {
	s := GetInfo().String()
	assert.Contains(t, s, "xmangle")
	assert.Contains(t, s, "dev")
}

func TestInfo_JSON(t *testing.T) {
	out, err := GetInfo().JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "dev", decoded["version"])
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "abc1234", shortCommit("abc1234567890"))
	assert.Equal(t, "abc", shortCommit("abc"))
	assert.Equal(t, "none", shortCommit("none"))
}
