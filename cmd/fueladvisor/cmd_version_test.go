package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBuild = buildInfo{
	Version:   "1.4.0",
	Commit:    "abc1234",
	BuildDate: "2024-03-10",
	GoVersion: "go1.25.5",
	Platform:  "linux/amd64",
}

func TestWriteVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, testBuild, false, false))
	assert.Equal(t, "fueladvisor 1.4.0 (commit abc1234, built 2024-03-10) go1.25.5 linux/amd64\n", buf.String())

	buf.Reset()
	require.NoError(t, writeVersion(&buf, testBuild, true, false))
	assert.Equal(t, "1.4.0\n", buf.String())

	buf.Reset()
	require.NoError(t, writeVersion(&buf, testBuild, false, true))
	var got buildInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, testBuild, got)
}

func TestVersionCommandWritesToCommandOutput(t *testing.T) {
	cmd := versionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--short"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, Version+"\n", buf.String())
}
