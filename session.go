package umux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// SessionOptions carries the construction parameters for a session
// (spec.md §4.5).
type SessionOptions struct {
	Program         string
	WorkingDir      string
	EnvOverlay      map[string]string
	Cols, Rows      int
	Name            string
	HistoryCapacity int
	LogSink         LogSink
}

// Session owns exactly one PTY, its child process, one terminal engine, two
// histories (output and input), and its subscriber set (spec.md §3:
// "Ownership: each session exclusively owns its PTY, child, engine,
// histories, and subscriber set.").
type Session struct {
	mu sync.RWMutex

	ID         string
	Name       string
	Program    string
	WorkingDir string
	CreatedAt  time.Time

	cfg sessionConfig

	cols, rows int

	ptyFile *os.File
	cmd     *exec.Cmd

	alive    bool
	exitCode int

	outputHistory *History
	inputHistory  *History

	engine         TerminalEngine
	fallbackActive bool
	replay         *replayBuffer

	query *queryResponder

	subs *subscriberSet

	logSink LogSink

	ctx    context.Context
	cancel context.CancelFunc

	procWaitDone chan struct{}
}

// newSession spawns the PTY and its child program and starts the read and
// wait goroutines (spec.md §4.5).
func newSession(id string, cfg sessionConfig, opts SessionOptions) (*Session, error) {
	cols, rows := clampTerminalSize(opts.Cols, opts.Rows)
	historyCapacity := opts.HistoryCapacity
	if historyCapacity <= 0 {
		historyCapacity = cfg.historyCapacity
	}

	program := opts.Program
	if program == "" {
		program = cfg.defaultShell
		if program == "" {
			program = cfg.shellResolver.ResolveShell(cfg.logger)
		}
	}

	argv := strings.Fields(program)
	if len(argv) == 0 {
		return nil, newError(KindInvalidInput, "empty program")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}

	env := cfg.envProvider.BuildEnv(opts.EnvOverlay)
	env = append(env,
		"TERM="+cfg.terminalEnv.Term,
		"COLORTERM="+cfg.terminalEnv.ColorTerm,
		"LANG="+cfg.terminalEnv.Lang,
		"LC_ALL="+cfg.terminalEnv.LcAll,
		fmt.Sprintf("COLUMNS=%d", cols),
		fmt.Sprintf("LINES=%d", rows),
	)
	cmd.Env = env

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, wrapError(KindLifecycle, "failed to start PTY", err)
	}
	if err := pty.Setsize(ptmx, buildWinSize(cols, rows)); err != nil {
		cfg.logger.Warn("failed to set initial terminal size", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:            id,
		Name:          opts.Name,
		Program:       program,
		WorkingDir:    opts.WorkingDir,
		CreatedAt:     time.Now(),
		cfg:           cfg,
		cols:          cols,
		rows:          rows,
		ptyFile:       ptmx,
		cmd:           cmd,
		alive:         true,
		outputHistory: NewHistory(historyCapacity, true),
		inputHistory:  NewHistory(historyCapacity, true),
		engine:        newEngineFor(cfg, cols, rows),
		replay:        newReplayBuffer(),
		query:         newQueryResponder(),
		subs:          newSubscriberSet(cfg.logger),
		logSink:       opts.LogSink,
		ctx:           ctx,
		cancel:        cancel,
		procWaitDone:  make(chan struct{}),
	}
	if s.logSink == nil {
		s.logSink = NopLogSink{}
	}

	s.logSink.LogSpawn(s.ID, s.Name, s.WorkingDir)

	go s.readPTYOutput()
	go s.waitProcessExit()

	return s, nil
}

// newEngineFor honors the engine mode knob: primary/primary-strict wrap
// charmbracelet/x/vt, fallback-only always uses the hand-written grid
// tracker (spec.md §4.4, knob table in spec.md §6).
func newEngineFor(cfg sessionConfig, cols, rows int) TerminalEngine {
	if cfg.engine == EngineFallbackOnly {
		return newPlainGridEngine(cols, rows, cfg.logger)
	}
	return newVTEngine(cols, rows)
}

func buildWinSize(cols, rows int) *pty.Winsize {
	return &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
	}
}

// PTYLeaderPID exposes the child process pid for the registry's ready poller
// (spec.md §4.3: foreground probe enumerates children of the PTY leader).
func (s *Session) PTYLeaderPID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// IsAlive reports whether the child process is still running.
func (s *Session) IsAlive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alive
}

// ExitCode returns the recorded exit code; valid only once IsAlive is false.
func (s *Session) ExitCode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitCode
}

func (s *Session) readPTYOutput() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, err := s.ptyFile.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		s.handleOutputChunk(chunk)
	}
}

// handleOutputChunk implements spec.md §4.5's four-step output path.
func (s *Session) handleOutputChunk(chunk []byte) {
	if reply := s.query.scan(chunk, s.currentCols(), s.currentRows()); len(reply) > 0 {
		if _, err := s.ptyFile.Write(reply); err != nil {
			s.cfg.logger.Debug("failed to write terminal-query reply", "sessionID", s.ID, "error", err)
		} else if s.cfg.terminalQueryLogging {
			if !s.cfg.inputLoggingDisabled {
				s.inputHistory.Append(reply)
			}
			s.logSink.LogTerminalQueryResponse(s.ID, fmt.Sprintf("%d bytes", len(reply)))
		}
	}

	s.outputHistory.Append(chunk)
	s.logSink.LogOutput(s.ID, chunk)
	s.replay.append(chunk)

	s.writeToEngine(chunk)

	s.subs.emitOutput(OutputEvent{SessionID: s.ID, Data: chunk, At: time.Now()})
}

func (s *Session) writeToEngine(chunk []byte) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	err := engine.Write(chunk, func() {
		s.subs.emitScreen(ScreenEvent{SessionID: s.ID})
	})
	if err == nil {
		return
	}

	if s.cfg.engine == EnginePrimaryStrict {
		s.cfg.logger.Error("primary terminal engine failed in strict mode", "sessionID", s.ID, "error", err)
		return
	}

	s.cfg.logger.Warn("terminal engine failed, swapping to fallback", "sessionID", s.ID, "error", err)
	s.swapToFallback()
}

// swapToFallback implements spec.md §4.4: on any primary-engine exception,
// re-instantiate the fallback and replay the bounded sliding window into it.
func (s *Session) swapToFallback() {
	s.mu.Lock()
	if s.fallbackActive {
		s.mu.Unlock()
		return
	}
	cols, rows := s.cols, s.rows
	fallback := newPlainGridEngine(cols, rows, s.cfg.logger)
	old := s.engine
	s.engine = fallback
	s.fallbackActive = true
	s.mu.Unlock()

	_ = old.Dispose()
	_ = fallback.Write(s.replay.snapshot(), nil)
}

func (s *Session) currentCols() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cols
}

func (s *Session) currentRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

func (s *Session) waitProcessExit() {
	err := s.cmd.Wait()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	s.mu.Lock()
	s.alive = false
	s.exitCode = exitCode
	s.mu.Unlock()

	close(s.procWaitDone)

	s.logSink.LogExit(s.ID, exitCode)
	s.subs.emitExit(ExitEvent{SessionID: s.ID, ExitCode: exitCode})
}

// Send writes literal text to the PTY (spec.md §4.5: send(text)).
func (s *Session) Send(text string) error {
	return s.writeInput([]byte(text), func() {
		if !s.cfg.inputLoggingDisabled {
			s.inputHistory.Append([]byte(text))
		}
		s.logSink.LogInputText(s.ID, text)
	})
}

// SendKey encodes and writes one key (spec.md §4.5: sendKey(k)).
func (s *Session) SendKey(k KeyInput) error {
	encoded, err := encodeKey(k)
	if err != nil {
		return err
	}
	token := describeKey(k)
	return s.writeInput([]byte(encoded), func() {
		if !s.cfg.inputLoggingDisabled {
			s.inputHistory.Append([]byte(token + "\n"))
		}
		s.logSink.LogInputKey(s.ID, token)
	})
}

// SendKeys encodes and writes a sequence of keys (spec.md §4.5: sendKeys(list)).
func (s *Session) SendKeys(keys []KeyInput) error {
	encoded, err := encodeKeys(keys)
	if err != nil {
		return err
	}
	tokens := make([]string, len(keys))
	for i, k := range keys {
		tokens[i] = describeKey(k)
	}
	return s.writeInput([]byte(encoded), func() {
		if !s.cfg.inputLoggingDisabled {
			s.inputHistory.Append([]byte(strings.Join(tokens, "") + "\n"))
		}
		s.logSink.LogInputKeys(s.ID, tokens)
	})
}

func (s *Session) writeInput(data []byte, onLogged func()) error {
	s.mu.RLock()
	alive := s.alive
	s.mu.RUnlock()
	if !alive {
		return newError(KindLifecycle, "session is not alive")
	}

	if _, err := s.ptyFile.Write(data); err != nil {
		return wrapError(KindLifecycle, "failed to write to PTY", err)
	}
	if onLogged != nil {
		onLogged()
	}
	return nil
}

// Resize updates both the PTY and the terminal engine (spec.md §4.5).
func (s *Session) Resize(cols, rows int) error {
	if err := validateTerminalSize(cols, rows); err != nil {
		return err
	}

	s.mu.Lock()
	s.cols, s.rows = cols, rows
	engine := s.engine
	s.mu.Unlock()

	if err := pty.Setsize(s.ptyFile, buildWinSize(cols, rows)); err != nil {
		return wrapError(KindLifecycle, "failed to resize PTY", err)
	}
	engine.Resize(cols, rows)
	return nil
}

// Capture delegates to the terminal engine (spec.md §4.5).
func (s *Session) Capture(format CaptureFormat) (Capture, error) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	return engine.Capture(format)
}

// OnOutput subscribes to output events.
func (s *Session) OnOutput(fn func(OutputEvent)) unsubscribe { return s.subs.onOutput(fn) }

// OnScreen subscribes to screen events.
func (s *Session) OnScreen(fn func(ScreenEvent)) unsubscribe { return s.subs.onScreen(fn) }

// OnExit subscribes to exit events.
func (s *Session) OnExit(fn func(ExitEvent)) unsubscribe { return s.subs.onExit(fn) }

// Dispose kills the child if alive, disposes the engine, closes the log
// sink, and clears subscribers (spec.md §4.5, the single teardown path).
func (s *Session) Dispose() {
	s.cancel()

	s.mu.RLock()
	cmd := s.cmd
	alive := s.alive
	s.mu.RUnlock()

	if alive && cmd != nil && cmd.Process != nil {
		if err := killProcessGroup(cmd.Process.Pid, syscall.SIGTERM); err != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-s.procWaitDone:
		case <-time.After(2 * time.Second):
			if err := killProcessGroup(cmd.Process.Pid, syscall.SIGKILL); err != nil {
				_ = cmd.Process.Kill()
			}
			<-s.procWaitDone
		}
	}

	_ = s.ptyFile.Close()

	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if err := engine.Dispose(); err != nil {
		s.cfg.logger.Debug("engine dispose error", "sessionID", s.ID, "error", err)
	}

	if err := s.logSink.Close(); err != nil {
		s.cfg.logger.Debug("log sink close error", "sessionID", s.ID, "error", err)
	}

	s.subs.clear()
}
