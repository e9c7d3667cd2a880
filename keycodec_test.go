package umux

import "testing"

func TestEncodeKey_NamedKeys(t *testing.T) {
	cases := map[NamedKey]string{
		KeyEnter:     "\r",
		KeyTab:       "\t",
		KeyEscape:    "\x1b",
		KeyBackspace: "\x7f",
		KeyDelete:    "\x1b[3~",
		KeyUp:        "\x1b[A",
		KeyHome:      "\x1b[H",
		KeyF1:        "\x1bOP",
		KeyF12:       "\x1b[24~",
	}
	for name, want := range cases {
		got, err := encodeKey(NamedKeyInput(name))
		if err != nil {
			t.Fatalf("encodeKey(%s): %v", name, err)
		}
		if got != want {
			t.Fatalf("encodeKey(%s) = %q, want %q", name, got, want)
		}
	}
}

func TestEncodeKey_CtrlCharacter(t *testing.T) {
	got, err := encodeKey(ModifiedKeyInput(ModifiedKey{Key: "c", Ctrl: true}))
	if err != nil {
		t.Fatalf("encodeKey: %v", err)
	}
	if want := "\x03"; got != want {
		t.Fatalf("Ctrl+c = %q, want %q", got, want)
	}

	// Shift is absorbed: Ctrl+Shift+x == Ctrl+x.
	gotShift, err := encodeKey(ModifiedKeyInput(ModifiedKey{Key: "X", Ctrl: true, Shift: true}))
	if err != nil {
		t.Fatalf("encodeKey: %v", err)
	}
	gotPlain, _ := encodeKey(ModifiedKeyInput(ModifiedKey{Key: "x", Ctrl: true}))
	if gotShift != gotPlain {
		t.Fatalf("Ctrl+Shift+x = %q, want it to equal Ctrl+x = %q", gotShift, gotPlain)
	}
}

func TestEncodeKey_ArrowWithModifier(t *testing.T) {
	got, err := encodeKey(ModifiedKeyInput(ModifiedKey{Key: "Up", Ctrl: true}))
	if err != nil {
		t.Fatalf("encodeKey: %v", err)
	}
	if want := "\x1b[1;5A"; got != want {
		t.Fatalf("Ctrl+Up = %q, want %q", got, want)
	}
}

func TestEncodeKey_TabWithShift(t *testing.T) {
	got, err := encodeKey(ModifiedKeyInput(ModifiedKey{Key: "Tab", Shift: true}))
	if err != nil {
		t.Fatalf("encodeKey: %v", err)
	}
	if want := "\x1b[Z"; got != want {
		t.Fatalf("Shift+Tab = %q, want %q", got, want)
	}
}

func TestEncodeKey_AltCharacter(t *testing.T) {
	got, err := encodeKey(ModifiedKeyInput(ModifiedKey{Key: "d", Alt: true}))
	if err != nil {
		t.Fatalf("encodeKey: %v", err)
	}
	if want := "\x1bd"; got != want {
		t.Fatalf("Alt+d = %q, want %q", got, want)
	}
}

func TestEncodeKeys_Concatenates(t *testing.T) {
	got, err := encodeKeys([]KeyInput{TextKey("ls"), NamedKeyInput(KeyEnter)})
	if err != nil {
		t.Fatalf("encodeKeys: %v", err)
	}
	if want := "ls\r"; got != want {
		t.Fatalf("encodeKeys = %q, want %q", got, want)
	}
}

func TestEncodeKey_UnknownNamedKeyErrors(t *testing.T) {
	_, err := encodeKey(NamedKeyInput("NotAKey"))
	if !IsInvalidInput(err) {
		t.Fatalf("expected InvalidInput error, got %v", err)
	}
}

func TestDescribeKey_ModifierOrder(t *testing.T) {
	token := describeKey(ModifiedKeyInput(ModifiedKey{Key: "x", Ctrl: true, Alt: true, Shift: true, Meta: true}))
	if want := "<Ctrl+Alt+Shift+Meta+x>"; token != want {
		t.Fatalf("describeKey = %q, want %q", token, want)
	}
}
