package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ownmi/focussync/internal/focus"
	"github.com/ownmi/focussync/internal/reliability"
)

type watchOptions struct {
	reconnect   bool
	backoffBase time.Duration
	backoffCap  time.Duration
	endpoint    string
	credential  string
	heartbeat   time.Duration
	poll        time.Duration
	tick        time.Duration
}

func newWatchCmd(g *globals) *cobra.Command {
	opts := watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a live focus timer synchronized with the service",
		Long: `Connects to the focus service and shows the session state and timer.

Commands read from stdin, one per line:
  start   start the focus timer (once the service confirms a session)
  end     stop the timer and end the session
  clear   reset a stopped timer to zero
  quit    end the session if one is confirmed and exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.endpoint = g.cfg.WSURL
			opts.credential = g.cfg.Token
			opts.heartbeat = g.cfg.HeartbeatInterval
			opts.poll = g.cfg.PollInterval
			opts.tick = g.cfg.TickInterval
			return runWatch(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts, g.log)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.reconnect, "reconnect", false, "Reconnect with capped exponential backoff when the connection drops")
	f.DurationVar(&opts.backoffBase, "reconnect-base", time.Second, "First reconnect delay")
	f.DurationVar(&opts.backoffCap, "reconnect-max", 30*time.Second, "Maximum reconnect delay")
	return cmd
}

// printer serializes writes from the client loop and the command loop.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

func runWatch(ctx context.Context, in io.Reader, out io.Writer, opts watchOptions, log logrus.FieldLogger) error {
	if strings.TrimSpace(opts.credential) == "" {
		return fmt.Errorf("a token is required (set FOCUS_TOKEN or --token)")
	}
	p := &printer{out: out}
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	backoff := reliability.Backoff{Base: opts.backoffBase, Cap: opts.backoffCap}
	for {
		var wasOpen atomic.Bool
		c := focus.Open(ctx, focus.Config{
			Endpoint:          opts.endpoint,
			Credential:        opts.credential,
			HeartbeatInterval: opts.heartbeat,
			PollInterval:      opts.poll,
			TickInterval:      opts.tick,
			Logger:            log,
			OnChange: func(s focus.Snapshot) {
				if s.SocketUp() {
					wasOpen.Store(true)
				}
				p.line(renderSnapshot(s))
			},
		})
		p.line(renderSnapshot(c.Snapshot()))
		if c.Snapshot().SocketUp() {
			wasOpen.Store(true)
		}

		quit := interact(ctx, c, lines, p)
		c.Close()
		if quit || ctx.Err() != nil {
			return nil
		}
		if !opts.reconnect {
			return fmt.Errorf("connection to %s lost", opts.endpoint)
		}
		if wasOpen.Load() {
			backoff.Reset()
		}
		log.WithField("attempt", backoff.Attempt()+1).Info("reconnecting")
		p.line(dimStyle.Render("reconnecting..."))
		if err := backoff.Wait(ctx); err != nil {
			return nil
		}
	}
}

// interact feeds stdin commands to the client until the user quits (true)
// or the connection goes away (false).
func interact(ctx context.Context, c *focus.Client, lines <-chan string, p *printer) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-c.Disconnected():
			return false
		case line, ok := <-lines:
			if !ok {
				return true
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "":
			case "start", "s":
				if !c.Start() {
					p.line(badStyle.Render("cannot start: timer running or not connected"))
				}
			case "end", "e":
				if !c.End() {
					p.line(badStyle.Render("cannot end: timer not running or not connected"))
				}
			case "clear", "c":
				if !c.Clear() {
					p.line(badStyle.Render("cannot clear a running timer"))
				}
			case "quit", "q", "exit":
				return true
			default:
				p.line(dimStyle.Render("commands: start | end | clear | quit"))
			}
		}
	}
}

func renderSnapshot(s focus.Snapshot) string {
	socket := badStyle.Render(string(s.Readiness))
	if s.SocketUp() {
		socket = okStyle.Render(string(s.Readiness))
	}
	timer := formatClock(s.Timer.Display())
	if s.Timer.Running {
		timer = durationStyle.Render(timer)
	}
	return fmt.Sprintf("socket=%s state=%s timer=%s", socket, s.State, timer)
}

func formatClock(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
