package umux

import (
	"os"
	"os/exec"
	"regexp"
	"sync"
)

// HookTrigger is exactly one of onMatch, onReady, or onExit
// (spec.md §4.7: "trigger exactly one of output-match-regex/ready/exit").
type HookTrigger struct {
	OnMatch *regexp.Regexp
	OnReady bool
	OnExit  bool
}

// Hook fires a shell command when its trigger condition is observed on a
// session, identified only by a weak reference to the session id: firing a
// hook for a no-longer-existing session is a no-op (spec.md §3, §4.7).
type Hook struct {
	ID        string
	SessionID string
	Command   string
	Trigger   HookTrigger
	Once      bool
}

// HookManager is an unordered set of hooks keyed by id.
type HookManager struct {
	mu     sync.Mutex
	hooks  map[string]*Hook
	logger Logger
}

func NewHookManager(logger Logger) *HookManager {
	if logger == nil {
		logger = NopLogger{}
	}
	return &HookManager{hooks: make(map[string]*Hook), logger: logger}
}

// Add registers a hook and returns its id.
func (m *HookManager) Add(sessionID, command string, trigger HookTrigger, once bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := newHookID()
	m.hooks[id] = &Hook{ID: id, SessionID: sessionID, Command: command, Trigger: trigger, Once: once}
	return id
}

// Remove deregisters a hook by id.
func (m *HookManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hooks, id)
}

func (m *HookManager) handleOutput(sessionID string, data []byte) {
	m.fireMatching(sessionID, func(h *Hook) (bool, string) {
		if h.Trigger.OnMatch == nil {
			return false, ""
		}
		loc := h.Trigger.OnMatch.FindString(string(data))
		if loc == "" {
			return false, ""
		}
		return true, loc
	}, "match")
}

func (m *HookManager) handleReady(sessionID string) {
	m.fireMatching(sessionID, func(h *Hook) (bool, string) {
		return h.Trigger.OnReady, ""
	}, "ready")
}

func (m *HookManager) handleExit(sessionID string) {
	m.fireMatching(sessionID, func(h *Hook) (bool, string) {
		return h.Trigger.OnExit, ""
	}, "exit")
}

type firingHook struct {
	hook      *Hook
	matchText string
}

// fireMatching spawns every hook for sessionID whose condition fires, fire
// and forget (spec.md §4.7: "Hook command execution is fire-and-forget;
// failures are logged and do not propagate to the session.").
func (m *HookManager) fireMatching(sessionID string, cond func(*Hook) (bool, string), event string) {
	m.mu.Lock()
	var toFire []firingHook
	var toRemove []string
	for _, h := range m.hooks {
		if h.SessionID != sessionID {
			continue
		}
		matched, text := cond(h)
		if !matched {
			continue
		}
		toFire = append(toFire, firingHook{hook: h, matchText: text})
		if h.Once {
			toRemove = append(toRemove, h.ID)
		}
	}
	for _, id := range toRemove {
		delete(m.hooks, id)
	}
	m.mu.Unlock()

	for _, f := range toFire {
		m.spawn(f.hook, event, f.matchText)
	}
}

func (m *HookManager) spawn(h *Hook, event, matchText string) {
	cmd := exec.Command("/bin/sh", "-c", h.Command)
	cmd.Env = append(os.Environ(),
		"UMUX_SESSION_ID="+h.SessionID,
		"UMUX_EVENT="+event,
		"UMUX_MATCH="+matchText,
		"UMUX_HOOK_ID="+h.ID,
	)
	if err := cmd.Start(); err != nil {
		m.logger.Warn("hook command failed to start", "hookID", h.ID, "error", err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			m.logger.Debug("hook command exited non-zero", "hookID", h.ID, "error", err)
		}
	}()
}
