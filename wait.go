package umux

import (
	"regexp"
	"sync/atomic"
	"time"
)

// WaitReason discriminates a wait outcome (spec.md §6).
type WaitReason string

const (
	ReasonPattern  WaitReason = "pattern"
	ReasonScreen   WaitReason = "screen"
	ReasonIdle     WaitReason = "idle"
	ReasonExit     WaitReason = "exit"
	ReasonReady    WaitReason = "ready"
	ReasonTimeout  WaitReason = "timeout"
	ReasonRejected WaitReason = "rejected"
)

// WaitMatch carries the matched text plus any capture groups.
type WaitMatch struct {
	Text    string
	Capture []string
}

// WaitRequest describes what a caller is waiting for: any combination of
// Pattern/Screen/Ready/Exit/Idle (the first condition to fire resolves the
// wait), plus an optional Not rejection pattern and a Timeout. A request
// with none of these conditions set resolves only on timeout.
type WaitRequest struct {
	Not     *regexp.Regexp
	Pattern *regexp.Regexp
	Screen  *regexp.Regexp
	Ready   bool
	Exit    bool
	Idle    time.Duration
	Timeout time.Duration
}

// WaitOutcome is the serializable result of a wait (spec.md §6).
type WaitOutcome struct {
	Reason   WaitReason
	Match    *WaitMatch
	ExitCode *int
	Output   string
	WaitedMs int64
}

const scanTailWindow = 8 * 1024

// Wait implements spec.md §4.6's protocol: pre-check existing state in a
// fixed order, then subscribe and race pattern/screen/idle/exit/ready/
// timeout, resolving exactly once.
func Wait(reg *Registry, sess *Session, req WaitRequest) WaitOutcome {
	start := time.Now()
	if req.Timeout <= 0 {
		req.Timeout = reg.cfg.DefaultWaitTimeout
	}

	if outcome, ok := preCheck(reg, sess, req, start); ok {
		return outcome
	}

	resolved := make(chan WaitOutcome, 1)
	var done atomic.Bool
	resolveOnce := func(o WaitOutcome) {
		if !done.CompareAndSwap(false, true) {
			return
		}
		o.WaitedMs = time.Since(start).Milliseconds()
		resolved <- o
	}

	tail := newScanTail(scanTailWindow)

	idleTimer := time.NewTimer(time.Hour)
	idleTimer.Stop()
	if req.Idle > 0 {
		idleTimer.Reset(req.Idle)
	}
	timeoutTimer := time.NewTimer(req.Timeout)

	var readyTicker *time.Ticker
	if req.Ready {
		readyTicker = time.NewTicker(100 * time.Millisecond)
	}

	stop := make(chan struct{})

	unOutput := sess.OnOutput(func(ev OutputEvent) {
		tail.append(ev.Data)

		if req.Not != nil && req.Not.Match(tail.bytes()) {
			resolveOnce(outcomeFor(ReasonRejected, nil, sess, tail))
			return
		}
		if req.Pattern != nil {
			if loc := req.Pattern.FindSubmatch(tail.bytes()); loc != nil {
				resolveOnce(outcomeFor(ReasonPattern, matchFromSubmatch(req.Pattern, tail.bytes()), sess, tail))
				return
			}
		}
		if req.Idle > 0 {
			idleTimer.Reset(req.Idle)
		}
	})
	unScreen := sess.OnScreen(func(ScreenEvent) {
		if req.Screen == nil {
			return
		}
		capt, err := sess.Capture(CaptureText)
		if err != nil {
			return
		}
		if req.Screen.MatchString(capt.Content) {
			m := matchFromSubmatch(req.Screen, []byte(capt.Content))
			resolveOnce(outcomeFor(ReasonScreen, m, sess, tail))
		}
	})
	unExit := sess.OnExit(func(ev ExitEvent) {
		if req.Exit {
			resolveOnce(outcomeFor(ReasonExit, nil, sess, tail))
			return
		}
		if req.Ready {
			// a dead shell is "ready" (spec.md §4.6)
			resolveOnce(outcomeFor(ReasonReady, nil, sess, tail))
		}
	})

	cleanup := func() {
		unOutput()
		unScreen()
		unExit()
		idleTimer.Stop()
		timeoutTimer.Stop()
		if readyTicker != nil {
			readyTicker.Stop()
		}
		close(stop)
	}

	if readyTicker != nil {
		go func() {
			for {
				select {
				case <-stop:
					return
				case <-readyTicker.C:
					if !sess.IsAlive() {
						resolveOnce(outcomeFor(ReasonReady, nil, sess, tail))
						return
					}
					if info := reg.probe.Foreground(sess.PTYLeaderPID()); info == nil {
						resolveOnce(outcomeFor(ReasonReady, nil, sess, tail))
						return
					}
				}
			}
		}()
	}

	go func() {
		select {
		case <-stop:
		case <-idleTimer.C:
			if req.Idle > 0 {
				resolveOnce(outcomeFor(ReasonIdle, nil, sess, tail))
			}
		}
	}()
	go func() {
		select {
		case <-stop:
		case <-timeoutTimer.C:
			resolveOnce(outcomeFor(ReasonTimeout, nil, sess, tail))
		}
	}()

	outcome := <-resolved
	cleanup()
	return outcome
}

// preCheck evaluates spec.md §4.6 step 1 against state that already exists
// before any subscription: not, pattern, screen, ready, exit, in that order.
func preCheck(reg *Registry, sess *Session, req WaitRequest, start time.Time) (WaitOutcome, bool) {
	full := []byte(sess.outputHistory.GetAll())

	if req.Not != nil && req.Not.Match(full) {
		return finish(ReasonRejected, nil, sess, full, start), true
	}
	if req.Pattern != nil {
		if m := req.Pattern.FindSubmatch(full); m != nil {
			return finish(ReasonPattern, matchFromSubmatch(req.Pattern, full), sess, full, start), true
		}
	}
	if req.Screen != nil {
		if capt, err := sess.Capture(CaptureText); err == nil && req.Screen.MatchString(capt.Content) {
			return finish(ReasonScreen, matchFromSubmatch(req.Screen, []byte(capt.Content)), sess, full, start), true
		}
	}
	if req.Ready {
		// Ready immediately either for a dead shell, or a live shell with no
		// foreground process (spec.md §4.6); don't wait for the poller's
		// first tick to notice what's already true.
		if !sess.IsAlive() {
			return finish(ReasonReady, nil, sess, full, start), true
		}
		if reg.probe.Foreground(sess.PTYLeaderPID()) == nil {
			return finish(ReasonReady, nil, sess, full, start), true
		}
	}
	if req.Exit && !sess.IsAlive() {
		return finish(ReasonExit, nil, sess, full, start), true
	}
	return WaitOutcome{}, false
}

func finish(reason WaitReason, match *WaitMatch, sess *Session, full []byte, start time.Time) WaitOutcome {
	return WaitOutcome{
		Reason:   reason,
		Match:    match,
		ExitCode: exitCodePtr(sess),
		Output:   boundedTail(full),
		WaitedMs: time.Since(start).Milliseconds(),
	}
}

func outcomeFor(reason WaitReason, match *WaitMatch, sess *Session, tail *scanTail) WaitOutcome {
	return WaitOutcome{
		Reason:   reason,
		Match:    match,
		ExitCode: exitCodePtr(sess),
		Output:   boundedTail(tail.bytes()),
	}
}

func exitCodePtr(sess *Session) *int {
	if sess.IsAlive() {
		return nil
	}
	code := sess.ExitCode()
	return &code
}

func boundedTail(b []byte) string {
	if len(b) > scanTailWindow {
		b = b[len(b)-scanTailWindow:]
	}
	return string(b)
}

func matchFromSubmatch(re *regexp.Regexp, data []byte) *WaitMatch {
	sub := re.FindSubmatch(data)
	if sub == nil {
		return nil
	}
	m := &WaitMatch{Text: string(sub[0])}
	for _, g := range sub[1:] {
		m.Capture = append(m.Capture, string(g))
	}
	return m
}

// scanTail is the rolling scan buffer installed per wait
// (spec.md §4.6: "a rolling scan tail of 8 KiB for match-across-chunks
// without quadratic rescans").
type scanTail struct {
	limit int
	buf   []byte
}

func newScanTail(limit int) *scanTail {
	return &scanTail{limit: limit, buf: make([]byte, 0, limit)}
}

func (t *scanTail) append(chunk []byte) {
	t.buf = append(t.buf, chunk...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
}

func (t *scanTail) bytes() []byte { return t.buf }
