package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alan-christopher/bb84sim/bb84/photon"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", "--seed=42", "--log-level=error")
	require.NoError(t, err)
	require.Contains(t, out, "Raw transmissions:")
	require.Regexp(t, `Key length:\s+100\n`, out)
	require.Regexp(t, `Sample QBER:\s+0\.0000`, out)

	again, err := execute(t, "run", "--seed=42", "--log-level=error")
	require.NoError(t, err)
	require.Equal(t, out, again)
}

func TestRunRejectsNoisyChannel(t *testing.T) {
	_, err := execute(t, "run", "--seed=7", "--log-level=error",
		"--local.noise=0.2", "--sample-bits=200")
	require.ErrorContains(t, err, "channel error rate exceeded")
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := execute(t, "run", "--executor=aer")
	require.ErrorContains(t, err, "unknown executor")
}

func TestBackends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/backends", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"backends": [
			{"name": "hw", "simulator": false, "operational": true, "pendingJobs": 0},
			{"name": "down", "simulator": true, "operational": false, "pendingJobs": 0},
			{"name": "sim-busy", "simulator": true, "operational": true, "pendingJobs": 9},
			{"name": "sim-idle", "simulator": true, "operational": true, "pendingJobs": 1}
		]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "backends", "--executor=remote", "--remote.address="+srv.URL, "--log-level=error")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	for i, name := range []string{"sim-idle", "sim-busy", "hw", "down"} {
		require.True(t, strings.HasPrefix(lines[i+1], name+" "), "line %d: %q", i+1, lines[i+1])
	}

	_, err = execute(t, "backends")
	require.Error(t, err)
}

func TestRank(t *testing.T) {
	backends := []photon.Backend{
		{Name: "a", Operational: false, Simulator: true},
		{Name: "b", Operational: true, PendingJobs: 2},
		{Name: "c", Operational: true, PendingJobs: 1},
	}
	var names []string
	for _, b := range rank(backends) {
		names = append(names, b.Name)
	}
	require.Equal(t, []string{"c", "b", "a"}, names)
	require.Equal(t, "a", backends[0].Name)
}
