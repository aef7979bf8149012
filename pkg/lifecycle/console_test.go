package lifecycle

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleConfirmRepromptsUntilYes(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(strings.NewReader("n\nmaybe\ny\n"), &out)

	require.NoError(t, c.Confirm(context.Background(), "go?"))
	assert.Equal(t, 3, strings.Count(out.String(), "go?"))
}

func TestConsoleConfirmInputClosed(t *testing.T) {
	c := NewConsole(strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, c.Confirm(context.Background(), "go?"), ErrInputClosed)
}

func TestConsoleConfirmCancelled(t *testing.T) {
	r, _ := io.Pipe()
	c := NewConsole(r, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Confirm(ctx, "go?"), context.Canceled)
}

func TestConsoleAssumeYes(t *testing.T) {
	c := NewConsole(strings.NewReader(""), io.Discard)
	c.AssumeYes = true
	assert.NoError(t, c.Confirm(context.Background(), "go?"))
}

func TestConsoleAwaitStopOnCommand(t *testing.T) {
	c := NewConsole(strings.NewReader("status\nstop\n"), io.Discard)

	select {
	case <-c.AwaitStop(context.Background()):
	case <-time.After(2 * time.Second):
		t.Fatal("stop command did not stop the session")
	}
}

func TestConsoleAwaitStopAfterDuration(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)
	c.AssumeYes = true
	c.Duration = 20 * time.Millisecond

	select {
	case <-c.AwaitStop(context.Background()):
	case <-time.After(2 * time.Second):
		t.Fatal("duration did not stop the session")
	}
}

func TestConsoleConfirmThenStopShareInput(t *testing.T) {
	c := NewConsole(strings.NewReader("y\nstop\n"), io.Discard)

	require.NoError(t, c.Confirm(context.Background(), "go?"))
	select {
	case <-c.AwaitStop(context.Background()):
	case <-time.After(2 * time.Second):
		t.Fatal("stop after confirm was lost")
	}
}

func TestConsoleCloseEndsConfirm(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Confirm(context.Background(), "go?"), ErrInputClosed)
}

func TestConsoleCloseStopsReader(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)
	lines := c.read()
	require.NoError(t, c.Close())

	// the reader exits at its next line
	_, err := w.Write([]byte("n\n"))
	require.NoError(t, err)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("reader kept running after close")
		}
	}
}

func TestConsoleCloseEndsAwaitStop(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	c := NewConsole(r, io.Discard)
	stop := c.AwaitStop(context.Background())
	require.NoError(t, c.Close())

	select {
	case <-stop:
	case <-time.After(2 * time.Second):
		t.Fatal("wait kept running after close")
	}
}

func TestConsoleWithoutInput(t *testing.T) {
	c := NewConsole(nil, io.Discard)
	assert.ErrorIs(t, c.Confirm(context.Background(), "go?"), ErrInputClosed)
}
