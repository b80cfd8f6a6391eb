package agent

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"ledbar-controller/internal/core"
	"ledbar-controller/internal/output"
	"ledbar-controller/internal/pattern"
	"ledbar-controller/internal/router"
	"ledbar-controller/internal/server"
)

// Acceptor is the listener side the loop polls. *net.TCPListener satisfies it.
type Acceptor interface {
	Accept() (net.Conn, error)
	SetDeadline(t time.Time) error
}

// LoopConfig holds the loop timing and bounds.
type LoopConfig struct {
	AcceptWindow time.Duration
	ConnDeadline time.Duration
	PollInterval time.Duration
	ReadBuffer   int
}

// Loop is the single-threaded scheduler: each iteration services at most one
// command, then advances the animation if a step is due. It owns the
// animation state and the output bank; nothing else may touch them while
// Run is active.
type Loop struct {
	cfg      LoopConfig
	ln       Acceptor
	state    *core.AnimationState
	bank     *output.Bank
	router   *router.Router
	homepage *server.Homepage
	remote   core.CommandChannel
	eventBus *core.EventBus

	now   func() time.Time
	sleep func(time.Duration)

	// acceptBroken is set while the listener keeps failing, so the
	// failure is logged once instead of every iteration.
	acceptBroken bool
}

// NewLoop wires the loop. remote and eventBus may be nil.
func NewLoop(cfg LoopConfig, ln Acceptor, state *core.AnimationState, bank *output.Bank, r *router.Router,
	homepage *server.Homepage, remote core.CommandChannel, eventBus *core.EventBus, now func() time.Time) *Loop {
	if now == nil {
		now = time.Now
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = server.MaxRequestBytes
	}
	return &Loop{
		cfg:      cfg,
		ln:       ln,
		state:    state,
		bank:     bank,
		router:   r,
		homepage: homepage,
		remote:   remote,
		eventBus: eventBus,
		now:      now,
		sleep:    time.Sleep,
	}
}

// Run iterates until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	log.Println("[Loop] Running.")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Loop] Stopped.")
			return
		default:
		}
		l.Iterate()
		l.sleep(l.cfg.PollInterval)
	}
}

// Iterate runs one poll-then-step pass. It reports whether a command was
// handled and whether a frame was stepped.
func (l *Loop) Iterate() (handled, stepped bool) {
	handled = l.pollConnection()
	if !handled {
		handled = l.pollRemote()
	}
	stepped = l.stepIfDue()
	return handled, stepped
}

// pollConnection accepts and fully services one pending connection, if any.
func (l *Loop) pollConnection() bool {
	if l.ln == nil {
		return false
	}
	// Go has no non-blocking accept; a deadline a hair in the future is the
	// closest equivalent. An already-expired deadline would never accept,
	// and no deadline at all would block the loop.
	if err := l.ln.SetDeadline(time.Now().Add(l.cfg.AcceptWindow)); err != nil {
		l.acceptFailed(fmt.Errorf("arm accept window: %w", err))
		return false
	}
	conn, err := l.ln.Accept()
	if err != nil {
		if server.IsTimeout(err) {
			l.acceptRecovered()
		} else {
			l.acceptFailed(fmt.Errorf("accept: %w", err))
		}
		return false
	}
	l.acceptRecovered()
	l.serve(conn)
	return true
}

func (l *Loop) acceptFailed(err error) {
	if l.acceptBroken {
		return
	}
	l.acceptBroken = true
	log.Printf("[Loop] Control port unavailable: %v", err)
}

func (l *Loop) acceptRecovered() {
	if !l.acceptBroken {
		return
	}
	l.acceptBroken = false
	log.Println("[Loop] Control port accepting again.")
}

func (l *Loop) serve(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(l.cfg.ConnDeadline)); err != nil {
		log.Printf("[Loop] set deadline: %v", err)
		return
	}

	line, err := server.ReadRequestLine(conn, l.cfg.ReadBuffer)
	if err != nil {
		if server.IsTimeout(err) {
			log.Printf("[Loop] %s: request timed out, dropping connection", conn.RemoteAddr())
		} else {
			log.Printf("[Loop] %s: %v", conn.RemoteAddr(), err)
		}
		return
	}
	log.Printf("[Loop] Request received: %s", line)

	if server.IsHomepageRequest(line) {
		l.serveHomepage(conn)
		return
	}

	res := l.router.Route(line)
	if err := server.WriteJSON(conn, http.StatusOK, res.Message, true); err != nil {
		log.Printf("[Loop] %s: %v", conn.RemoteAddr(), err)
		return
	}
	log.Printf("[Loop] Response sent (%v).", res.Outcome)
}

func (l *Loop) serveHomepage(conn net.Conn) {
	html, err := l.homepage.Load()
	if err != nil {
		log.Printf("[Loop] %v", err)
		if werr := server.WriteJSON(conn, http.StatusInternalServerError, server.MsgHomepageMissing, false); werr != nil {
			log.Printf("[Loop] %s: %v", conn.RemoteAddr(), werr)
		}
		return
	}
	if err := server.WriteHTML(conn, html); err != nil {
		log.Printf("[Loop] %s: %v", conn.RemoteAddr(), err)
		return
	}
	log.Println("[Loop] Homepage sent.")
}

// pollRemote applies at most one queued MQTT/cron command without blocking.
func (l *Loop) pollRemote() bool {
	if l.remote == nil {
		return false
	}
	select {
	case cmd := <-l.remote:
		l.router.Apply(cmd.Token, cmd.Source)
		return true
	default:
		return false
	}
}

func (l *Loop) stepIfDue() bool {
	now := l.now()
	if !l.state.Due(now) {
		return false
	}
	rendered := l.state.Cursor
	l.state.Cursor = pattern.Step(l.bank, l.state.Active, rendered)
	l.state.LastStep = now

	l.eventBus.Publish(core.FrameEvent, core.Snapshot{
		Pattern: l.state.Active,
		Name:    l.state.Active.String(),
		Cursor:  rendered,
		Lines:   l.bank.String(),
	})
	return true
}
