package umux

import (
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(ManagerConfig{
		Engine:            EngineFallbackOnly,
		ReadyPollInterval: 20 * time.Millisecond,
	})
	t.Cleanup(reg.Shutdown)
	return reg
}

func TestRegistry_SpawnGetListDestroy(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Spawn(SessionOptions{Program: "/bin/cat", Name: "alpha", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	got, err := reg.Get(sess.ID)
	if err != nil || got != sess {
		t.Fatalf("Get(%s) = %v, %v", sess.ID, got, err)
	}
	byName, err := reg.GetByName("alpha")
	if err != nil || byName != sess {
		t.Fatalf("GetByName(alpha) = %v, %v", byName, err)
	}

	list := reg.List()
	if len(list) != 1 || list[0] != sess {
		t.Fatalf("List() = %v, want [sess]", list)
	}

	if err := reg.Destroy(sess.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := reg.Get(sess.ID); !IsNotFound(err) {
		t.Fatalf("Get after Destroy err = %v, want NotFound", err)
	}
	if len(reg.List()) != 0 {
		t.Fatalf("List() after Destroy should be empty, got %v", reg.List())
	}
}

func TestRegistry_DestroyEmitsDestroyEvent(t *testing.T) {
	reg := newTestRegistry(t)

	sess, err := reg.Spawn(SessionOptions{Program: "/bin/cat", Name: "alpha", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	destroyCh := make(chan DestroyEvent, 1)
	reg.OnDestroy(func(ev DestroyEvent) { destroyCh <- ev })

	if err := reg.Destroy(sess.ID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	select {
	case ev := <-destroyCh:
		if ev.SessionID != sess.ID {
			t.Fatalf("DestroyEvent.SessionID = %q, want %q", ev.SessionID, sess.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DestroyEvent")
	}
}

func TestRegistry_GetUnknownIDIsNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Get("nope"); !IsNotFound(err) {
		t.Fatalf("Get(unknown) err = %v, want NotFound", err)
	}
	if _, err := reg.GetByName("nope"); !IsNotFound(err) {
		t.Fatalf("GetByName(unknown) err = %v, want NotFound", err)
	}
}

func TestRegistry_ReadyPollerEmitsOnBusyToIdleTransition(t *testing.T) {
	reg := newTestRegistry(t)
	sess, err := reg.Spawn(SessionOptions{Program: "/bin/sh", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	readyCh := make(chan ReadyEvent, 8)
	unsub := reg.OnReady(func(ev ReadyEvent) { readyCh <- ev })
	defer unsub()

	if err := sess.Send("sleep 0.3\n"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case ev := <-readyCh:
		if ev.SessionID != sess.ID {
			t.Fatalf("ReadyEvent.SessionID = %q, want %q", ev.SessionID, sess.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a ready event")
	}
}

func TestRegistry_ShutdownDisposesAllSessions(t *testing.T) {
	reg := NewRegistry(ManagerConfig{Engine: EngineFallbackOnly, ReadyPollInterval: 20 * time.Millisecond})

	sess, err := reg.Spawn(SessionOptions{Program: "/bin/cat", Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	reg.Shutdown()

	select {
	case <-sess.procWaitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session disposal during Shutdown")
	}
	if sess.IsAlive() {
		t.Fatal("session should not be alive after registry Shutdown")
	}
}
