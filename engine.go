package umux

import (
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/x/vt"
)

// CaptureFormat selects the representation returned by TerminalEngine.Capture.
type CaptureFormat string

const (
	CaptureText CaptureFormat = "text"
	CaptureANSI CaptureFormat = "ansi"
)

// Capture is the outcome of TerminalEngine.Capture (spec.md §6).
type Capture struct {
	Content string
	Format  CaptureFormat
	Cols    int
	Rows    int
}

// TerminalEngine is the contract a session's terminal state model satisfies
// (spec.md §4.4). Write may update state synchronously or schedule work; if
// scheduled, onFlushed fires once after the state reflects the new bytes.
// This engine wraps charmbracelet/x/vt, which updates synchronously, so
// onFlushed is always invoked before Write returns.
type TerminalEngine interface {
	Write(data []byte, onFlushed func()) error
	Resize(cols, rows int)
	Capture(format CaptureFormat) (Capture, error)
	Dispose() error
}

// csiOSCPattern strips CSI and OSC escape sequences for plain-text capture.
var csiOSCPattern = regexp.MustCompile(`\x1b(\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(\x07|\x1b\\)|[()][AB012]|[=>])`)

// vtEngine is the primary TerminalEngine, grounded on the teacher-adjacent
// `ehrlich-b-wingthing` pack entry's VTerm wrapper: it holds one
// charmbracelet/x/vt emulator and renders it two ways for Capture.
type vtEngine struct {
	mu           sync.Mutex
	emu          *vt.Emulator
	cols         int
	rows         int
	altScreen    bool
	cursorHidden bool
}

// newVTEngine constructs the primary engine for a session.
func newVTEngine(cols, rows int) *vtEngine {
	e := &vtEngine{emu: vt.NewEmulator(cols, rows), cols: cols, rows: rows}
	e.emu.SetCallbacks(vt.Callbacks{
		AltScreen: func(on bool) {
			e.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			e.cursorHidden = !visible
		},
	})
	return e
}

func (e *vtEngine) Write(data []byte, onFlushed func()) error {
	err := func() (err error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		defer func() {
			if recover() != nil {
				err = newError(KindLifecycle, "vt emulator panicked")
			}
		}()
		_, err = e.emu.Write(data)
		return err
	}()
	if err != nil {
		return wrapError(KindLifecycle, "terminal engine write failed", err)
	}
	if onFlushed != nil {
		onFlushed()
	}
	return nil
}

func (e *vtEngine) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emu.Resize(cols, rows)
	e.cols, e.rows = cols, rows
}

func (e *vtEngine) Capture(format CaptureFormat) (Capture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rendered := e.emu.Render()
	switch format {
	case CaptureANSI, "":
		if e.cursorHidden {
			rendered += "\x1b[?25l"
		} else {
			rendered += "\x1b[?25h"
		}
		return Capture{Content: rendered, Format: CaptureANSI, Cols: e.cols, Rows: e.rows}, nil
	case CaptureText:
		return Capture{Content: plainTextFromRendered(rendered), Format: CaptureText, Cols: e.cols, Rows: e.rows}, nil
	default:
		return Capture{}, newError(KindInvalidInput, "unknown capture format")
	}
}

func (e *vtEngine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emu.Close()
}

// plainTextFromRendered strips SGR/CSI/OSC control sequences from a rendered
// frame and trims trailing spaces per row, matching spec.md §4.4's
// "visible viewport with trailing spaces trimmed per row".
func plainTextFromRendered(rendered string) string {
	stripped := csiOSCPattern.ReplaceAllString(rendered, "")
	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(strings.TrimRight(line, "\r"), " \t")
	}
	return strings.Join(lines, "\n")
}
