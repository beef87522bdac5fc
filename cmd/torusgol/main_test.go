package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uk.ac.bris.cs/torusgol/comm"
	"uk.ac.bris.cs/torusgol/gol"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, env(nil))
	require.NoError(t, err)
	assert.Equal(t, gol.Params{Size: 1024, Ticks: 128, Ranks: 1, Threads: 1, Threshold: 0.25, Seed: 1}, cfg.params)
	assert.Nil(t, cfg.peers)
}

func TestParseConfigInProcess(t *testing.T) {
	cfg, err := parseConfig([]string{"-size", "64", "-ticks", "3", "-ranks", "4", "-threads", "2", "-seed", "9", "-v"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, gol.Params{Size: 64, Ticks: 3, Ranks: 4, Threads: 2, Threshold: 0.25, Seed: 9}, cfg.params)
	assert.True(t, cfg.verbose)
}

func TestParseConfigPeers(t *testing.T) {
	cfg, err := parseConfig([]string{"-rank", "2", "-peers", ":5000, :5001,:5002", "-size", "12"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{":5000", ":5001", ":5002"}, cfg.peers)
	assert.Equal(t, 3, cfg.params.Ranks)
	assert.Equal(t, 2, cfg.rank)
	assert.Equal(t, comm.DefaultPeerTimeout, cfg.timeout)
}

func TestParseConfigEnvironment(t *testing.T) {
	cfg, err := parseConfig([]string{"-size", "8"}, env(map[string]string{
		"TORUSGOL_PEERS": "a:1,b:2",
		"TORUSGOL_RANK":  "1",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.peers)
	assert.Equal(t, 1, cfg.rank)
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string][]string{
		"ranks do not divide size": {"-size", "10", "-ranks", "3"},
		"bad threshold":            {"-threshold", "2"},
		"missing rank":             {"-peers", "a:1,b:2", "-size", "8"},
		"rank outside peers":       {"-peers", "a:1,b:2", "-rank", "2", "-size", "8"},
		"unknown flag":             {"-frames", "3"},
		"zero timeout":             {"-peers", "a:1,b:2", "-rank", "0", "-size", "8", "-timeout", "0s"},
		"stray argument":           {"-size", "8", "extra"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args, env(nil))
			assert.Error(t, err)
		})
	}

	_, err := parseConfig([]string{"-peers", "a:1,b:2", "-size", "8"}, env(map[string]string{"TORUSGOL_RANK": "one"}))
	assert.Error(t, err)
	_, err = parseConfig([]string{"-size", "10", "-ranks", "3"}, env(nil))
	assert.ErrorIs(t, err, gol.ErrInvalidConfig)
}

func TestRunInProcess(t *testing.T) {
	cfg, err := parseConfig([]string{"-size", "32", "-ticks", "5", "-ranks", "4", "-threads", "2"}, env(nil))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "32x32, 5 ticks, 4 ranks x 2 threads")
	assert.Contains(t, out.String(), "Completed 5 ticks in")
	assert.Contains(t, out.String(), "Alive cells:")
}
