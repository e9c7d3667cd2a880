package umux

import (
	"sync"
	"time"
)

// Registry is the single owner of every session in a process (spec.md §4.7:
// "map from session id to session"). spawn/get/list/destroy plus the ready
// poller and hook manager live here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string

	cfg ManagerConfig

	hooks *HookManager
	probe ForegroundProbe

	pollStop chan struct{}
	pollDone chan struct{}

	// lastForeground tracks each session's last-seen foreground pid, seeded
	// on first observation without emitting ready (spec.md §4.7).
	lastForeground map[string]*int

	readySubs   []func(ReadyEvent)
	destroySubs []func(DestroyEvent)
}

// NewRegistry creates a registry and starts its ready poller.
func NewRegistry(cfg ManagerConfig) *Registry {
	cfg = cfg.applyDefaults()
	r := &Registry{
		sessions:       make(map[string]*Session),
		cfg:            cfg,
		hooks:          NewHookManager(cfg.Logger),
		probe:          newForegroundProbe(),
		pollStop:       make(chan struct{}),
		pollDone:       make(chan struct{}),
		lastForeground: make(map[string]*int),
	}
	go r.pollReady()
	return r
}

// Spawn creates, starts, and registers a new session.
func (r *Registry) Spawn(opts SessionOptions) (*Session, error) {
	sessCfg := newSessionConfig(r.cfg)
	id := newSessionID()

	if opts.LogSink == nil && r.cfg.LogDirectory != "" {
		sink, err := NewJSONLFileSink(r.cfg.LogDirectory, id, r.cfg.InputLoggingDisabled, r.cfg.Logger)
		if err == nil {
			opts.LogSink = sink
		} else {
			r.cfg.Logger.Warn("failed to open log sink, continuing without one", "error", err)
		}
	}

	sess, err := newSession(id, sessCfg, opts)
	if err != nil {
		return nil, err
	}

	sess.OnOutput(func(ev OutputEvent) {
		r.hooks.handleOutput(ev.SessionID, ev.Data)
	})
	sess.OnExit(func(ev ExitEvent) {
		r.hooks.handleExit(ev.SessionID)
	})

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.order = append(r.order, sess.ID)
	r.mu.Unlock()

	return sess, nil
}

// Get resolves a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, newError(KindNotFound, "unknown session id")
	}
	return sess, nil
}

// GetByName resolves a session by exact name, returning the first match in
// creation order (spec.md §6: "name collisions are the caller's problem").
func (r *Registry) GetByName(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if sess := r.sessions[id]; sess.Name == name {
			return sess, nil
		}
	}
	return nil, newError(KindNotFound, "unknown session name")
}

// List returns every live session in creation order.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Destroy disposes a session and removes it from the registry, emitting
// session:destroy (spec.md §4.7).
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return newError(KindNotFound, "unknown session id")
	}
	delete(r.sessions, id)
	for i, sid := range r.order {
		if sid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	delete(r.lastForeground, id)
	r.mu.Unlock()

	sess.Dispose()
	r.emitDestroy(DestroyEvent{SessionID: id})
	r.cfg.Logger.Info("session destroyed", "sessionID", id)
	return nil
}

// Hooks exposes the registry's hook manager so callers can add/remove hooks.
func (r *Registry) Hooks() *HookManager { return r.hooks }

// Shutdown disposes every session and cancels the ready poller (spec.md
// §4.7: "Shutdown disposes all sessions and cancels the ready poller.").
func (r *Registry) Shutdown() {
	close(r.pollStop)
	<-r.pollDone

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.order = nil
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Dispose()
	}
}

// pollReady implements spec.md §4.7's ready poller: a single background
// tick observes each session's foreground probe; a busy-to-idle transition
// emits ready{sessionId} once. Sessions with unknown prior state seed from
// the first tick without emitting.
func (r *Registry) pollReady() {
	defer close(r.pollDone)

	ticker := time.NewTicker(r.cfg.ReadyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.pollStop:
			return
		case <-ticker.C:
			r.pollOnce()
		}
	}
}

func (r *Registry) pollOnce() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		var fgPID *int
		if sess.IsAlive() {
			if info := r.probe.Foreground(sess.PTYLeaderPID()); info != nil {
				pid := info.PID
				fgPID = &pid
			}
		}

		r.mu.Lock()
		prev, seeded := r.lastForeground[sess.ID]
		r.lastForeground[sess.ID] = fgPID
		r.mu.Unlock()

		if !seeded {
			continue
		}

		wasBusy := prev != nil
		isIdle := fgPID == nil
		if wasBusy && isIdle {
			r.emitReady(ReadyEvent{SessionID: sess.ID})
			r.hooks.handleReady(sess.ID)
		}
	}
}

// OnReady subscribes to ready events across every session in this registry;
// used by the wait resolver (spec.md §4.6).
func (r *Registry) OnReady(fn func(ReadyEvent)) unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readySubs = append(r.readySubs, fn)
	idx := len(r.readySubs) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.readySubs[idx] = nil
	}
}

func (r *Registry) emitReady(ev ReadyEvent) {
	r.mu.RLock()
	subs := append([]func(ReadyEvent){}, r.readySubs...)
	r.mu.RUnlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

// OnDestroy subscribes to destroy events across every session in this
// registry, fired once a session has been disposed and removed (spec.md
// §4.7).
func (r *Registry) OnDestroy(fn func(DestroyEvent)) unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroySubs = append(r.destroySubs, fn)
	idx := len(r.destroySubs) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.destroySubs[idx] = nil
	}
}

func (r *Registry) emitDestroy(ev DestroyEvent) {
	r.mu.RLock()
	subs := append([]func(DestroyEvent){}, r.destroySubs...)
	r.mu.RUnlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}
