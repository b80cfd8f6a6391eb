package agent

import (
	"bytes"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"ledbar-controller/internal/core"
	"ledbar-controller/internal/output"
	"ledbar-controller/internal/router"
	"ledbar-controller/internal/server"
)

type harness struct {
	now    time.Time
	ln     *net.TCPListener
	state  *core.AnimationState
	bank   *output.Bank
	remote core.CommandChannel
	loop   *Loop
}

func newHarness(t *testing.T, connDeadline time.Duration, homepage string) *harness {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	h := &harness{
		now:    time.Unix(10000, 0),
		ln:     l.(*net.TCPListener),
		remote: make(core.CommandChannel, 4),
	}
	clock := func() time.Time { return h.now }
	h.state = core.NewAnimationState(100*time.Millisecond, h.now)
	h.bank = output.NewBank(nil)
	r := router.New(h.state, h.bank, nil, clock)
	h.loop = NewLoop(LoopConfig{
		AcceptWindow: 5 * time.Millisecond,
		ConnDeadline: connDeadline,
		PollInterval: time.Millisecond,
		ReadBuffer:   1024,
	}, h.ln, h.state, h.bank, r, server.NewHomepage(homepage), h.remote, nil, clock)
	return h
}

// send writes raw from a client goroutine and drives the loop until the
// connection has been serviced. It returns the full reply.
func (h *harness) send(t *testing.T, raw string) string {
	t.Helper()
	reply := make(chan string, 1)
	go func() {
		c, err := net.Dial("tcp", h.ln.Addr().String())
		if err != nil {
			reply <- "dial error: " + err.Error()
			return
		}
		defer c.Close()
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		if raw != "" {
			_, _ = c.Write([]byte(raw))
		}
		b, _ := io.ReadAll(c)
		reply <- string(b)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if handled, _ := h.loop.Iterate(); handled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop never accepted the connection")
		}
	}

	select {
	case r := <-reply:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("no reply")
		return ""
	}
}

func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.now = h.now.Add(100 * time.Millisecond)
	if _, stepped := h.loop.Iterate(); !stepped {
		t.Fatal("expected a step")
	}
}

func body(reply string) string {
	_, b, _ := strings.Cut(reply, "\r\n\r\n")
	return b
}

func TestLoop_CenterOutEndToEnd(t *testing.T) {
	h := newHarness(t, time.Second, "")

	reply := h.send(t, "GET /control?key=3 HTTP/1.1\r\nHost: bar\r\n\r\n")
	if !strings.HasPrefix(reply, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("status line: %q", reply)
	}
	for _, hdr := range []string{"Access-Control-Allow-Origin: *", "Content-Type: application/json", "Connection: close"} {
		if !strings.Contains(reply, hdr+"\r\n") {
			t.Fatalf("missing header %q in %q", hdr, reply)
		}
	}
	if got := body(reply); got != `{"message":"Secuencia 3 iniciada."}` {
		t.Fatalf("body %q", got)
	}

	if _, stepped := h.loop.Iterate(); stepped {
		t.Fatal("stepped before the interval elapsed")
	}

	frames := [][]int{{3, 4}, {2, 5}, {1, 6}, {0, 7}, {3, 4}}
	for i, want := range frames {
		h.tick(t)
		if got := h.bank.Active(); !reflect.DeepEqual(got, want) {
			t.Fatalf("frame %d: lines %v, want %v", i, got, want)
		}
	}
	if h.state.Cursor != 1 {
		t.Fatalf("cursor %d after wrap, want 1", h.state.Cursor)
	}
}

func TestLoop_CommandAppliedBeforeStepCheck(t *testing.T) {
	h := newHarness(t, time.Second, "")
	h.state.Select(core.SweepForward, h.now)
	h.now = h.now.Add(time.Second) // a SweepForward step is overdue

	reply := make(chan string, 1)
	go func() {
		c, err := net.Dial("tcp", h.ln.Addr().String())
		if err != nil {
			reply <- err.Error()
			return
		}
		defer c.Close()
		_, _ = c.Write([]byte("GET /control?key=5 HTTP/1.1\r\n\r\n"))
		b, _ := io.ReadAll(c)
		reply <- string(b)
	}()

	var handled, stepped bool
	deadline := time.Now().Add(3 * time.Second)
	for !handled && time.Now().Before(deadline) {
		// Re-arm the overdue SweepForward step until the request lands.
		h.state.Select(core.SweepForward, h.now.Add(-time.Second))
		handled, stepped = h.loop.Iterate()
	}
	<-reply

	if !handled {
		t.Fatal("request never handled")
	}
	if stepped {
		t.Fatal("the step check ran against the pre-command state")
	}
	if h.state.Active != core.LevelMeter || h.state.Cursor != 0 {
		t.Fatalf("state %+v", h.state)
	}

	h.tick(t)
	if got := h.bank.Active(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("first LevelMeter frame %v", got)
	}
}

func TestLoop_StopHaltsAnimation(t *testing.T) {
	h := newHarness(t, time.Second, "")
	h.send(t, "GET /control?key=8 HTTP/1.1\r\n\r\n")
	h.tick(t)
	if len(h.bank.Active()) != output.LineCount {
		t.Fatal("blink frame 0 should light every line")
	}

	reply := h.send(t, "GET /control?key=9 HTTP/1.1\r\n\r\n")
	if got := body(reply); got != `{"message":"Todos los LEDs apagados."}` {
		t.Fatalf("body %q", got)
	}
	if got := h.bank.String(); got != "00000000" {
		t.Fatalf("bank %s after stop", got)
	}

	h.now = h.now.Add(time.Hour)
	if _, stepped := h.loop.Iterate(); stepped {
		t.Fatal("stepped while stopped")
	}
}

func TestLoop_InvalidTokenLeavesState(t *testing.T) {
	h := newHarness(t, time.Second, "")
	h.send(t, "GET /control?key=2 HTTP/1.1\r\n\r\n")
	h.tick(t)
	before := *h.state
	lines := h.bank.Lines()

	for _, token := range []string{"0", "x", "42"} {
		reply := h.send(t, "GET /control?key="+token+" HTTP/1.1\r\n\r\n")
		if got := body(reply); got != `{"message":"Comando no válido."}` {
			t.Fatalf("token %q: body %q", token, got)
		}
	}
	if *h.state != before || h.bank.Lines() != lines {
		t.Fatal("invalid token mutated state")
	}
}

func TestLoop_UnrecognizedRequests(t *testing.T) {
	h := newHarness(t, time.Second, "")
	for _, raw := range []string{
		"GET /favicon.ico HTTP/1.1\r\n\r\n",
		"GET /control HTTP/1.1\r\n\r\n",
		"hello\r\n",
	} {
		reply := h.send(t, raw)
		if !strings.HasPrefix(reply, "HTTP/1.1 200 OK") {
			t.Fatalf("%q: status %q", raw, reply)
		}
		if got := body(reply); got != `{"message":"Comando no reconocido."}` {
			t.Fatalf("%q: body %q", raw, got)
		}
	}
	if h.state.Active != core.Stopped {
		t.Fatal("unrecognized request changed the pattern")
	}
}

func TestLoop_Homepage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte("<html>bar</html>"), 0644); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, time.Second, path)

	reply := h.send(t, "GET / HTTP/1.1\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nConnection: close\r\n\r\n<html>bar</html>"
	if reply != want {
		t.Fatalf("reply %q", reply)
	}
}

func TestLoop_HomepageMissing(t *testing.T) {
	h := newHarness(t, time.Second, filepath.Join(t.TempDir(), "absent.html"))

	reply := h.send(t, "GET / HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(reply, "HTTP/1.1 500 Internal Server Error\r\n") {
		t.Fatalf("reply %q", reply)
	}
	if got := body(reply); got != `{"message":"Error del servidor: No se encuentra index.html"}` {
		t.Fatalf("body %q", got)
	}
}

func TestLoop_SilentClientTimesOut(t *testing.T) {
	h := newHarness(t, 50*time.Millisecond, "")
	h.state.Select(core.OddMask, h.now)
	before := *h.state

	start := time.Now()
	reply := h.send(t, "")
	if reply != "" {
		t.Fatalf("expected the connection to be dropped, got %q", reply)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("loop blocked past the connection deadline")
	}
	if *h.state != before {
		t.Fatal("timeout mutated state")
	}
}

func TestLoop_NoPendingConnectionReturnsQuickly(t *testing.T) {
	h := newHarness(t, time.Second, "")
	start := time.Now()
	handled, stepped := h.loop.Iterate()
	if handled || stepped {
		t.Fatalf("idle iteration reported handled=%v stepped=%v", handled, stepped)
	}
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("idle iteration took %v", d)
	}
}

func TestLoop_RemoteCommandsOnePerIteration(t *testing.T) {
	h := newHarness(t, time.Second, "")
	h.loop.ln = nil

	h.remote <- core.Command{Token: "4", Source: "mqtt"}
	h.remote <- core.Command{Token: "9", Source: "cron"}

	if handled, _ := h.loop.Iterate(); !handled {
		t.Fatal("first remote command not handled")
	}
	if h.state.Active != core.EdgesIn || len(h.remote) != 1 {
		t.Fatalf("after one iteration: active %v, queued %d", h.state.Active, len(h.remote))
	}

	if handled, _ := h.loop.Iterate(); !handled {
		t.Fatal("second remote command not handled")
	}
	if h.state.Active != core.Stopped {
		t.Fatalf("active %v after stop token", h.state.Active)
	}

	if handled, _ := h.loop.Iterate(); handled {
		t.Fatal("empty queue reported a command")
	}
}

func TestLoop_PublishesFrames(t *testing.T) {
	h := newHarness(t, time.Second, "")
	bus := core.NewEventBus()
	sub := bus.Subscribe(core.FrameEvent)
	h.loop.eventBus = bus
	h.loop.ln = nil

	h.state.Select(core.SweepBackward, h.now)
	h.tick(t)

	select {
	case ev := <-sub:
		snap := ev.Snapshot
		if snap.Lines != "00000001" || snap.Cursor != 0 || snap.Name != "sweep_backward" {
			t.Fatalf("snapshot %+v", snap)
		}
	default:
		t.Fatal("no frame event")
	}
}

type failingAcceptor struct {
	deadlineErr error
	acceptErr   error
	accepts     int
}

func (f *failingAcceptor) Accept() (net.Conn, error) {
	f.accepts++
	return nil, f.acceptErr
}

func (f *failingAcceptor) SetDeadline(time.Time) error { return f.deadlineErr }

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestLoop_BrokenListenerLoggedOnce(t *testing.T) {
	h := newHarness(t, time.Second, "")
	fa := &failingAcceptor{acceptErr: net.ErrClosed}
	h.loop.ln = fa
	h.state.Select(core.EvenMask, h.now)
	logs := captureLog(t)

	for i := 0; i < 50; i++ {
		h.now = h.now.Add(100 * time.Millisecond)
		if _, stepped := h.loop.Iterate(); !stepped {
			t.Fatalf("iteration %d: broken listener stalled the animation", i)
		}
	}
	if n := strings.Count(logs.String(), "Control port unavailable"); n != 1 {
		t.Fatalf("failure logged %d times, want 1:\n%s", n, logs)
	}

	fa.acceptErr = &net.OpError{Op: "accept", Err: os.ErrDeadlineExceeded}
	h.loop.Iterate()
	fa.acceptErr = net.ErrClosed
	h.loop.Iterate()
	if n := strings.Count(logs.String(), "Control port unavailable"); n != 2 {
		t.Fatalf("failure after recovery logged %d times in total, want 2", n)
	}
}

func TestLoop_DeadlineErrorSkipsAccept(t *testing.T) {
	h := newHarness(t, time.Second, "")
	fa := &failingAcceptor{deadlineErr: net.ErrClosed}
	h.loop.ln = fa
	logs := captureLog(t)

	for i := 0; i < 10; i++ {
		if handled, _ := h.loop.Iterate(); handled {
			t.Fatal("reported a handled command without a connection")
		}
	}
	if fa.accepts != 0 {
		t.Fatalf("accept called %d times without a deadline", fa.accepts)
	}
	if n := strings.Count(logs.String(), "arm accept window"); n != 1 {
		t.Fatalf("deadline failure logged %d times, want 1", n)
	}
}
