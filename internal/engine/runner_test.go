package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillAllTerminatesLiveProcesses(t *testing.T) {
	r := NewRunner(hclog.NewNullLogger()).(*execRunner)

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), "sleep", "60")
	}()

	// Wait for the process to register.
	deadline := time.Now().Add(5 * time.Second)
	for {
		r.mu.Lock()
		n := len(r.processes)
		r.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("process never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.KillAll()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after KillAll")
	}
}

func TestDiagnosticText_PrefersStderrTail(t *testing.T) {
	var stderr bytes.Buffer
	for _, line := range []string{
		"ffmpeg version n6.1",
		"Input #0, mov,mp4",
		"Stream mapping:",
		"frame= 100",
		"frame= 200",
		"Error while opening encoder for output stream #0:0",
		"Conversion failed!",
	} {
		stderr.WriteString(line + "\n")
	}

	got := diagnosticText(&stderr, errors.New("exit status 1"))
	assert.Contains(t, got, "Conversion failed!")
	assert.Contains(t, got, "Error while opening encoder")
	assert.NotContains(t, got, "ffmpeg version")
}

func TestDiagnosticText_FallsBackToExitError(t *testing.T) {
	var stderr bytes.Buffer
	got := diagnosticText(&stderr, errors.New("exit status 1"))
	assert.Equal(t, "exit status 1", got)
}
