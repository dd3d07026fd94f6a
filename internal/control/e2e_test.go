package control

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/rsvctl/internal/executor"
	"github.com/jandubois/rsvctl/internal/metricconfig"
	"github.com/jandubois/rsvctl/internal/probe"
	"github.com/jandubois/rsvctl/internal/registry"
	"github.com/jandubois/rsvctl/internal/schedule"
	"github.com/jandubois/rsvctl/internal/status"
)

func TestEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping on Windows")
	}
	ctx := context.Background()

	root := t.TempDir()
	exe := filepath.Join(root, "bin", "metrics", "ping-host")
	require.NoError(t, os.MkdirAll(filepath.Dir(exe), 0755))
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\necho \"ping $* $RSV_HOME\"\n"), 0755))

	conf := filepath.Join(root, "etc", "metrics", "ping-host.conf")
	require.NoError(t, os.MkdirAll(filepath.Dir(conf), 0755))
	require.NoError(t, os.WriteFile(conf, []byte(
		"[ping-host]\n"+
			"service-type = OSG-CE\n"+
			"[ping-host args]\n"+
			"count = 1\n"+
			"[ping-host env]\n"+
			"RSV_HOME = SET | !!VDT_LOCATION!!/var\n"), 0644))

	resolver := metricconfig.NewResolver(root)
	m, err := resolver.Resolve("ping-host", metricconfig.Options{})
	require.NoError(t, err)
	assert.Equal(t, "OSG-CE", m.ServiceType())

	runner := executor.New(10*time.Second, ":")
	store, err := schedule.Open(ctx, filepath.Join(root, "var", "rsvctl", "rsvctl.db"), runner)
	require.NoError(t, err)
	defer store.Close()

	var out, errOut bytes.Buffer
	reporter := status.NewReporter(store, 2)
	ctrl := New(Options{
		Source:      registry.New(resolver, "localhost", nil),
		Resolver:    resolver,
		Backend:     store,
		Runner:      runner,
		Reporter:    reporter,
		LocalHost:   "localhost",
		InstallRoot: root,
		Out:         &out,
		ErrOut:      &errOut,
	})

	p := &probe.Probe{MetricName: "ping-host", FileName: "ping-host"}
	enable := Request{Command: Enable, Selector: Selector{Metric: "ping-host", Host: "host1"}}

	require.NoError(t, ctrl.Dispatch(ctx, enable))
	assert.Equal(t, "Metric enabled\n", out.String())
	assert.Equal(t, probe.StateEnabled, reporter.Status(ctx, p, "host1"))

	reg, err := store.Registration(ctx, "ping-host", "host1")
	require.NoError(t, err)
	assert.Equal(t, "--count 1", reg.Args)
	assert.Equal(t, root+"/var", reg.Env["RSV_HOME"].Value)

	// A second enable leaves the registration alone.
	require.NoError(t, ctrl.Dispatch(ctx, enable))
	again, err := store.Registration(ctx, "ping-host", "host1")
	require.NoError(t, err)
	assert.Equal(t, reg.RegisteredAt, again.RegisteredAt)
	assert.Contains(t, errOut.String(), "already running against host1")

	out.Reset()
	require.NoError(t, ctrl.Dispatch(ctx, Request{Command: Test, Selector: Selector{Metric: "ping-host", Host: "host1"}}))
	assert.Equal(t, "ping --uri host1 --count 1 "+root+"/var", strings.TrimSpace(out.String()))

	out.Reset()
	require.NoError(t, ctrl.Dispatch(ctx, Request{Command: FullTest, Selector: Selector{Metric: "ping-host", Host: "host1"}}))
	assert.Equal(t, "Metric tested\n", out.String())

	text, err := reporter.SubmissionStatus(ctx, p, "host1", status.FormatOut)
	require.NoError(t, err)
	assert.Equal(t, "ping --uri host1 --count 1 "+root+"/var\n", text)

	out.Reset()
	require.NoError(t, ctrl.Dispatch(ctx, Request{Command: Disable, Selector: Selector{Metric: "ping-host", Host: "host1"}}))
	assert.Equal(t, "Metric disabled\n", out.String())
	assert.Equal(t, probe.StateDisabled, reporter.Status(ctx, p, "host1"))
}
