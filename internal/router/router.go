// Package router turns control tokens into animation state transitions.
package router

import (
	"fmt"
	"log"
	"strings"
	"time"

	"ledbar-controller/internal/core"
	"ledbar-controller/internal/output"
)

const (
	// ControlPath is the only path the router answers.
	ControlPath = "/control"
	keyMarker   = "key="

	MsgStopped      = "Todos los LEDs apagados."
	MsgInvalid      = "Comando no válido."
	MsgUnrecognized = "Comando no reconocido."
)

// Outcome classifies how a request was resolved.
type Outcome int

const (
	Unrecognized Outcome = iota
	Invalid
	Selected
	StoppedAll
)

func (o Outcome) String() string {
	switch o {
	case Invalid:
		return "invalid"
	case Selected:
		return "selected"
	case StoppedAll:
		return "stopped"
	default:
		return "unrecognized"
	}
}

// Result is what the router reports back to the caller.
type Result struct {
	Message string
	Changed bool
	Outcome Outcome
	Pattern core.PatternID
}

// Router applies tokens to the loop-owned state and bank.
type Router struct {
	state *core.AnimationState
	bank  *output.Bank
	bus   *core.EventBus
	now   func() time.Time
}

// New creates a router. now is the loop clock; bus may be nil.
func New(state *core.AnimationState, bank *output.Bank, bus *core.EventBus, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{state: state, bank: bank, bus: bus, now: now}
}

// Route resolves one HTTP request line ("GET /control?key=3 HTTP/1.1").
func (r *Router) Route(requestLine string) Result {
	if RequestPath(requestLine) != ControlPath {
		return Result{Message: MsgUnrecognized, Outcome: Unrecognized}
	}
	token, ok := ExtractToken(requestLine)
	if !ok || token == "" {
		return Result{Message: MsgUnrecognized, Outcome: Unrecognized}
	}
	return r.Apply(token, "http")
}

// Apply resolves a bare control token, whatever transport it came from.
func (r *Router) Apply(token, source string) Result {
	if token == "" {
		return Result{Message: MsgUnrecognized, Outcome: Unrecognized}
	}

	if token == core.StopToken {
		log.Printf("[Router] Token %s from %s. Switching all lines off.", token, source)
		r.state.Stop(r.now())
		r.bank.SetAll(false)
		r.publish()
		return Result{Message: MsgStopped, Changed: true, Outcome: StoppedAll, Pattern: core.Stopped}
	}

	p, ok := lookup(token)
	if !ok {
		log.Printf("[Router] Token %q from %s not recognized.", token, source)
		return Result{Message: MsgInvalid, Outcome: Invalid}
	}

	log.Printf("[Router] Token %s from %s. Starting %v.", token, source, p)
	r.state.Select(p, r.now())
	r.publish()
	return Result{
		Message: fmt.Sprintf("Secuencia %s iniciada.", token),
		Changed: true,
		Outcome: Selected,
		Pattern: p,
	}
}

// publish announces the new pattern. A freshly selected pattern has not
// rendered yet, so its snapshot carries no lines until the first frame.
func (r *Router) publish() {
	snap := core.Snapshot{
		Pattern: r.state.Active,
		Name:    r.state.Active.String(),
		Cursor:  r.state.Cursor,
	}
	if r.state.Active == core.Stopped {
		snap.Lines = r.bank.String()
	}
	r.bus.Publish(core.PatternChangedEvent, snap)
}

// lookup is exhaustive over the selectable patterns.
func lookup(token string) (core.PatternID, bool) {
	switch token {
	case "1":
		return core.SweepForward, true
	case "2":
		return core.SweepBackward, true
	case "3":
		return core.CenterOut, true
	case "4":
		return core.EdgesIn, true
	case "5":
		return core.LevelMeter, true
	case "6":
		return core.OddMask, true
	case "7":
		return core.EvenMask, true
	case "8":
		return core.BlinkAll, true
	default:
		return core.Stopped, false
	}
}

// RequestPath returns the path of a "GET <target> ..." line without its query,
// or "" when the line is not a GET.
func RequestPath(requestLine string) string {
	fields := strings.Fields(requestLine)
	if len(fields) < 2 || fields[0] != "GET" {
		return ""
	}
	path, _, _ := strings.Cut(fields[1], "?")
	return path
}

// ExtractToken finds "key=" and returns what follows up to the next space.
// Without a trailing space the token runs to the end of the line.
func ExtractToken(requestLine string) (string, bool) {
	start := strings.Index(requestLine, keyMarker)
	if start < 0 {
		return "", false
	}
	rest := requestLine[start+len(keyMarker):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimRight(rest, "\r\n"), true
}
