package umux

import (
	"fmt"
	"strings"
)

// NamedKey is one of the fixed special keys recognized by the key codec
// (spec.md §4.2).
type NamedKey string

const (
	KeyEnter     NamedKey = "Enter"
	KeyTab       NamedKey = "Tab"
	KeyEscape    NamedKey = "Escape"
	KeyBackspace NamedKey = "Backspace"
	KeyDelete    NamedKey = "Delete"
	KeySpace     NamedKey = "Space"
	KeyUp        NamedKey = "Up"
	KeyDown      NamedKey = "Down"
	KeyRight     NamedKey = "Right"
	KeyLeft      NamedKey = "Left"
	KeyHome      NamedKey = "Home"
	KeyEnd       NamedKey = "End"
	KeyPageUp    NamedKey = "PageUp"
	KeyPageDown  NamedKey = "PageDown"
	KeyInsert    NamedKey = "Insert"
	KeyF1        NamedKey = "F1"
	KeyF2        NamedKey = "F2"
	KeyF3        NamedKey = "F3"
	KeyF4        NamedKey = "F4"
	KeyF5        NamedKey = "F5"
	KeyF6        NamedKey = "F6"
	KeyF7        NamedKey = "F7"
	KeyF8        NamedKey = "F8"
	KeyF9        NamedKey = "F9"
	KeyF10       NamedKey = "F10"
	KeyF11       NamedKey = "F11"
	KeyF12       NamedKey = "F12"
)

// baseSequences is the unmodified encoding table (spec.md §4.2).
var baseSequences = map[NamedKey]string{
	KeyEnter:     "\r",
	KeyTab:       "\t",
	KeyEscape:    "\x1b",
	KeyBackspace: "\x7f",
	KeyDelete:    "\x1b[3~",
	KeySpace:     " ",
	KeyUp:        "\x1b[A",
	KeyDown:      "\x1b[B",
	KeyRight:     "\x1b[C",
	KeyLeft:      "\x1b[D",
	KeyHome:      "\x1b[H",
	KeyEnd:       "\x1b[F",
	KeyPageUp:    "\x1b[5~",
	KeyPageDown:  "\x1b[6~",
	KeyInsert:    "\x1b[2~",
	KeyF1:        "\x1bOP",
	KeyF2:        "\x1bOQ",
	KeyF3:        "\x1bOR",
	KeyF4:        "\x1bOS",
	KeyF5:        "\x1b[15~",
	KeyF6:        "\x1b[17~",
	KeyF7:        "\x1b[18~",
	KeyF8:        "\x1b[19~",
	KeyF9:        "\x1b[20~",
	KeyF10:       "\x1b[21~",
	KeyF11:       "\x1b[23~",
	KeyF12:       "\x1b[24~",
}

// cursorLetter carries the CSI final byte for arrow/Home/End keys, used when
// building the modified-CSI form `CSI 1;{mod}{letter}`.
var cursorLetter = map[NamedKey]byte{
	KeyUp:    'A',
	KeyDown:  'B',
	KeyRight: 'C',
	KeyLeft:  'D',
	KeyHome:  'H',
	KeyEnd:   'F',
}

// KeyInput is the tagged union accepted by sendKey: exactly one of Text,
// Named, or Modified is populated.
type KeyInput struct {
	Text     string
	Named    NamedKey
	Modified *ModifiedKey
}

// ModifiedKey is a named key or single character plus modifier flags
// (spec.md §4.2).
type ModifiedKey struct {
	Key   string
	Ctrl  bool
	Alt   bool
	Shift bool
	Meta  bool
}

// TextKey builds a literal-text KeyInput.
func TextKey(text string) KeyInput { return KeyInput{Text: text} }

// NamedKeyInput builds a KeyInput for an unmodified named key.
func NamedKeyInput(k NamedKey) KeyInput { return KeyInput{Named: k} }

// ModifiedKeyInput builds a KeyInput carrying modifier flags.
func ModifiedKeyInput(m ModifiedKey) KeyInput { return KeyInput{Modified: &m} }

// encodeKey turns one KeyInput into the byte sequence written to the PTY.
func encodeKey(k KeyInput) (string, error) {
	switch {
	case k.Modified != nil:
		return encodeModified(*k.Modified)
	case k.Named != "":
		seq, ok := baseSequences[k.Named]
		if !ok {
			return "", newError(KindInvalidInput, fmt.Sprintf("unknown named key %q", k.Named))
		}
		return seq, nil
	default:
		return k.Text, nil
	}
}

// encodeKeys concatenates individual encodings with no separator
// (spec.md §4.2: sendKeys(list) = concat(encodeKey(ki))).
func encodeKeys(keys []KeyInput) (string, error) {
	var b strings.Builder
	for _, k := range keys {
		seq, err := encodeKey(k)
		if err != nil {
			return "", err
		}
		b.WriteString(seq)
	}
	return b.String(), nil
}

func encodeModified(m ModifiedKey) (string, error) {
	named := NamedKey(m.Key)
	isNamed := len(m.Key) != 1
	if !isNamed {
		if _, ok := baseSequences[named]; ok {
			isNamed = true
		}
	}

	// Character + Ctrl, no Alt, no Meta: fold to control code. Shift is
	// absorbed (Ctrl+Shift+x == Ctrl+x).
	if !isNamed && m.Ctrl && !m.Alt && !m.Meta {
		c := []rune(m.Key)
		if len(c) != 1 {
			return "", newError(KindInvalidInput, fmt.Sprintf("invalid character key %q", m.Key))
		}
		lower := c[0]
		if lower >= 'A' && lower <= 'Z' {
			lower = lower - 'A' + 'a'
		}
		if lower < 'a' || lower > 'z' {
			return "", newError(KindInvalidInput, fmt.Sprintf("ctrl+%q is not encodable", m.Key))
		}
		return string(rune(lower - 0x60)), nil
	}

	letter, isCursor := cursorLetter[named]
	if isCursor && (m.Ctrl || m.Alt || m.Shift || m.Meta) {
		mod := modMask(m)
		return fmt.Sprintf("\x1b[1;%d%c", mod, letter), nil
	}

	if named == KeyTab && (m.Ctrl || m.Alt || m.Shift || m.Meta) {
		if m.Shift && !m.Ctrl && !m.Alt && !m.Meta {
			return "\x1b[Z", nil
		}
		mod := modMask(m)
		return fmt.Sprintf("\x1b[1;%dZ", mod), nil
	}

	// Character + Alt, no Ctrl, no Meta: ESC prefix, case preserved.
	if !isNamed && m.Alt && !m.Ctrl && !m.Meta {
		return "\x1b" + m.Key, nil
	}

	// Named key + Alt, no Ctrl, no Meta: ESC prefix + base sequence.
	if isNamed && m.Alt && !m.Ctrl && !m.Meta {
		seq, ok := baseSequences[named]
		if !ok {
			return "", newError(KindInvalidInput, fmt.Sprintf("unknown named key %q", m.Key))
		}
		return "\x1b" + seq, nil
	}

	if isNamed {
		if seq, ok := baseSequences[named]; ok && !m.Ctrl && !m.Alt && !m.Meta {
			return seq, nil
		}
	}

	return "", newError(KindInvalidInput, fmt.Sprintf("unencodable key combination %+v", m))
}

// modMask computes the CSI modifier parameter: 1 + shift + 2*alt + 4*ctrl + 8*meta.
func modMask(m ModifiedKey) int {
	mod := 1
	if m.Shift {
		mod += 1
	}
	if m.Alt {
		mod += 2
	}
	if m.Ctrl {
		mod += 4
	}
	if m.Meta {
		mod += 8
	}
	return mod
}

// describeKey renders a human-readable input-history token for a key,
// modifier order Ctrl, Alt, Shift, Meta (spec.md §4.5).
func describeKey(k KeyInput) string {
	if k.Modified == nil {
		if k.Named != "" {
			return "<" + string(k.Named) + ">"
		}
		return k.Text
	}

	m := *k.Modified
	var parts []string
	if m.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if m.Alt {
		parts = append(parts, "Alt")
	}
	if m.Shift {
		parts = append(parts, "Shift")
	}
	if m.Meta {
		parts = append(parts, "Meta")
	}
	parts = append(parts, m.Key)
	return "<" + strings.Join(parts, "+") + ">"
}
