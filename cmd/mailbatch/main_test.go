//go:build unit

package main

import (
	"bytes"
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Main_WhenSigtermSignal_WillGracefullyShutdown(t *testing.T) {
	runFn = func(ctx context.Context, _ []string) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	defer func() { runFn = run }()

	var sendSignalError error
	go func() {
		time.Sleep(100 * time.Millisecond)
		p, err := os.FindProcess(os.Getpid())
		if err != nil {
			sendSignalError = err
			return
		}
		sendSignalError = p.Signal(syscall.SIGTERM)
	}()

	require.NotPanics(t, main)
	require.Nilf(t, sendSignalError, "failed to send signal: %v", sendSignalError)
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	previous := stdout
	stdout = buf
	t.Cleanup(func() { stdout = previous })
	return buf
}

func TestRun_Status(t *testing.T) {
	out := captureStdout(t)

	err := run(context.TODO(), []string{"-config", "testdata/app.yaml", "status"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "state: Idle")
	assert.Contains(t, out.String(), "cursor: -")
	assert.Contains(t, out.String(), "rows: 2")
	assert.Contains(t, out.String(), "sent: 1")
	assert.Contains(t, out.String(), "pending: 1")
	assert.Contains(t, out.String(), "remaining quota: 50")
}

func TestRun_InitSettings(t *testing.T) {
	out := captureStdout(t)

	err := run(context.TODO(), []string{"-config", "testdata/app.yaml", "init-settings"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "seeded TARGET_SEND_TO_EMAIL")
	assert.Contains(t, out.String(), "seeded EMAIL_SUBJECT")
	assert.Contains(t, out.String(), "seeded BATCH_SIZE")
}

func TestRun_CheckQuota(t *testing.T) {
	out := captureStdout(t)

	err := run(context.TODO(), []string{"-config", "testdata/app.yaml", "check-quota"})
	require.NoError(t, err)
	assert.Equal(t, "remaining quota: 50\n", out.String())
}

func TestRun_Errors(t *testing.T) {
	captureStdout(t)

	type caseStruct struct {
		name string
		args []string
		err  string
	}

	cases := []caseStruct{
		{"missing config", []string{"-config", "testdata/missing.yaml", "status"}, "failed to load configuration"},
		{"unknown command", []string{"-config", "testdata/app.yaml", "explode"}, "unknown command"},
		{"set without value", []string{"-config", "testdata/app.yaml", "set", "BATCH_SIZE"}, "usage: mailbatch set"},
		{"set unknown key", []string{"-config", "testdata/app.yaml", "set", "COLOUR", "blue"}, "unknown setting"},
		{"start without settings", []string{"-config", "testdata/app.yaml", "start"}, "missing required settings"},
		{"bad flag", []string{"-nope"}, "flag provided but not defined"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := run(context.TODO(), c.args)
			assert.ErrorContains(t, err, c.err)
		})
	}
}
