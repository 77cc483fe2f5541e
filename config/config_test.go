package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestFlagsOverrideEmptyDefaults(t *testing.T) {
	cfg, err := Ingest([]string{"-i", "in1,in2", "-o", "out", "--sync"}, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, []string{"in1", "in2"}, cfg.Input)
	assert.Equal(t, []string{"out"}, cfg.Output)
	assert.True(t, cfg.Sync)
	assert.Equal(t, ModeParity, cfg.Mode)
}

func TestIngestDefaultsWinWhenFlagAbsent(t *testing.T) {
	cfg, err := Ingest([]string{}, Defaults{Input: []string{"default-in"}, MainThreads: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"default-in"}, cfg.Input)
	assert.Equal(t, 4, cfg.MainThreads)
}

func TestIngestFlagOverridesSubclassDefaultWhenExplicit(t *testing.T) {
	cfg, err := Ingest([]string{"--main-threads", "8"}, Defaults{MainThreads: 4})
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MainThreads)
}

func TestIngestSpareArgsPreserved(t *testing.T) {
	cfg, err := Ingest([]string{"--sync", "extra1", "extra2"}, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra1", "extra2"}, cfg.Spare)
}

func TestIngestConsumerTimeoutDefault(t *testing.T) {
	cfg, err := Ingest([]string{}, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(defaultConsumerTimeoutSeconds)*time.Second, cfg.ConsumerTimeout)
}

func TestResolveGroupModeThreeWay(t *testing.T) {
	assert.Equal(t, GroupExplicit, resolveGroupMode("mygroup", true))
	assert.Equal(t, GroupPerInstance, resolveGroupMode("", true))
	assert.Equal(t, GroupPerClass, resolveGroupMode("", false))
}

func TestIngestYAMLFileFillsBelowSubclassDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/defaults.yaml"
	require.NoError(t, os.WriteFile(path, []byte("bus_endpoint: yaml-broker:9092\nmain_threads: 2\n"), 0o644))

	cfg, err := Ingest([]string{"--config", path}, Defaults{MainThreads: 4})
	require.NoError(t, err)
	assert.Equal(t, "yaml-broker:9092", cfg.BusEndpoint)
	assert.Equal(t, 4, cfg.MainThreads, "subclass default must win over the YAML file")
}

func TestIngestFlagOverridesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/defaults.yaml"
	require.NoError(t, os.WriteFile(path, []byte("bus_endpoint: yaml-broker:9092\n"), 0o644))

	cfg, err := Ingest([]string{"--config", path, "-k", "flag-broker:9092"}, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, "flag-broker:9092", cfg.BusEndpoint)
}

func TestIngestMissingYAMLFileErrors(t *testing.T) {
	_, err := Ingest([]string{"--config", "/nonexistent/defaults.yaml"}, Defaults{})
	assert.Error(t, err)
}
