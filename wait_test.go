package umux

import (
	"regexp"
	"testing"
	"time"
)

func TestWait_PatternAlreadyInHistoryResolvesImmediately(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sess.Send("echo already-here\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// give the shell a moment to actually echo before the pre-check runs.
	deadline := time.Now().Add(3 * time.Second)
	for sess.outputHistory.LineCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	outcome := Wait(reg, sess, WaitRequest{
		Pattern: regexp.MustCompile(`already-here`),
		Timeout: 3 * time.Second,
	})
	if outcome.Reason != ReasonPattern {
		t.Fatalf("Reason = %q, want %q (outcome=%+v)", outcome.Reason, ReasonPattern, outcome)
	}
}

func TestWait_PatternOnLiveOutput(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	done := make(chan WaitOutcome, 1)
	go func() {
		done <- Wait(reg, sess, WaitRequest{
			Pattern: regexp.MustCompile(`live-marker`),
			Timeout: 5 * time.Second,
		})
	}()

	time.Sleep(100 * time.Millisecond)
	if err := sess.Send("echo live-marker\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case outcome := <-done:
		if outcome.Reason != ReasonPattern {
			t.Fatalf("Reason = %q, want %q", outcome.Reason, ReasonPattern)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Wait to resolve")
	}
}

func TestWait_NotRejectsBeforePatternCanMatch(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sess.Send("echo error-marker\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for sess.outputHistory.LineCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	outcome := Wait(reg, sess, WaitRequest{
		Not:     regexp.MustCompile(`error-marker`),
		Pattern: regexp.MustCompile(`error-marker`),
		Timeout: 3 * time.Second,
	})
	if outcome.Reason != ReasonRejected {
		t.Fatalf("Reason = %q, want %q", outcome.Reason, ReasonRejected)
	}
}

func TestWait_ExitResolvesOnProcessExit(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	done := make(chan WaitOutcome, 1)
	go func() {
		done <- Wait(reg, sess, WaitRequest{Exit: true, Timeout: 5 * time.Second})
	}()

	time.Sleep(100 * time.Millisecond)
	if err := sess.Send("exit 7\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case outcome := <-done:
		if outcome.Reason != ReasonExit {
			t.Fatalf("Reason = %q, want %q", outcome.Reason, ReasonExit)
		}
		if outcome.ExitCode == nil || *outcome.ExitCode != 7 {
			t.Fatalf("ExitCode = %v, want 7", outcome.ExitCode)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Wait to resolve on exit")
	}
}

func TestWait_TimeoutWhenNothingHappens(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/cat", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	outcome := Wait(reg, sess, WaitRequest{
		Pattern: regexp.MustCompile(`never-appears`),
		Timeout: 200 * time.Millisecond,
	})
	if outcome.Reason != ReasonTimeout {
		t.Fatalf("Reason = %q, want %q", outcome.Reason, ReasonTimeout)
	}
}

func TestWait_IdleResolvesAfterQuietPeriod(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sess.Send("echo settle\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	outcome := Wait(reg, sess, WaitRequest{
		Idle:    200 * time.Millisecond,
		Timeout: 5 * time.Second,
	})
	if outcome.Reason != ReasonIdle {
		t.Fatalf("Reason = %q, want %q", outcome.Reason, ReasonIdle)
	}
}

func TestWait_ReadyResolvesOnDeadSession(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := sess.Send("exit 0\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-sess.procWaitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shell exit")
	}

	outcome := Wait(reg, sess, WaitRequest{Ready: true, Timeout: 3 * time.Second})
	if outcome.Reason != ReasonReady {
		t.Fatalf("Reason = %q, want %q (a dead shell counts as ready)", outcome.Reason, ReasonReady)
	}
}
