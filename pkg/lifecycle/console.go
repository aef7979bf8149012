package lifecycle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var ErrInputClosed = errors.New("operator input closed")

// Console is the interactive operator. It confirms on "y" and stops a
// running session on "stop", or after Duration when set.
type Console struct {
	out io.Writer
	// AssumeYes skips every confirmation.
	AssumeYes bool
	Duration  time.Duration

	once      sync.Once
	closeOnce sync.Once
	in        io.Reader
	lines     chan string
	done      chan struct{}
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out, done: make(chan struct{})}
}

// Close releases the input. A scan blocked on the reader ends at its next
// line.
func (c *Console) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// read starts the single goroutine scanning input.
func (c *Console) read() <-chan string {
	c.once.Do(func() {
		c.lines = make(chan string)
		if c.in == nil {
			close(c.lines)
			return
		}
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				select {
				case c.lines <- strings.TrimSpace(scanner.Text()):
				case <-c.done:
					return
				}
			}
		}()
	})
	return c.lines
}

func (c *Console) Confirm(ctx context.Context, prompt string) error {
	if c.AssumeYes {
		return nil
	}
	lines := c.read()
	for {
		fmt.Fprint(c.out, prompt+" ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrInputClosed
		case line, ok := <-lines:
			if !ok {
				return ErrInputClosed
			}
			if strings.EqualFold(line, "y") {
				return nil
			}
		}
	}
}

func (c *Console) AwaitStop(ctx context.Context) <-chan struct{} {
	stop := make(chan struct{})
	var timeout <-chan time.Time
	if c.Duration > 0 {
		timer := time.NewTimer(c.Duration)
		timeout = timer.C
		go func() {
			<-stop
			timer.Stop()
		}()
	}
	var lines <-chan string
	if !c.AssumeYes || c.Duration == 0 {
		lines = c.read()
		fmt.Fprintln(c.out, `Capturing. Type "stop" to harvest and tear down.`)
	}

	go func() {
		defer close(stop)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-timeout:
				return
			case line, ok := <-lines:
				if !ok {
					// closed input leaves only the timer or ctx to stop
					lines = nil
					continue
				}
				if line == "stop" || line == "exit" {
					return
				}
			}
		}
	}()
	return stop
}
