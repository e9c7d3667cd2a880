package umux

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			lines = append(lines, sc.Text())
		}
	}
	return lines
}

func sinkPath(t *testing.T, dir, sessionID string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), sessionID) {
			return filepath.Join(dir, e.Name())
		}
	}
	t.Fatalf("no log file found for session %s in %s", sessionID, dir)
	return ""
}

func TestJSONLFileSink_RecordShapes(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLFileSink(dir, "sess-abc1", false, NopLogger{})
	if err != nil {
		t.Fatalf("NewJSONLFileSink: %v", err)
	}

	sink.LogSpawn("sess-abc1", "my-session", "/home/user")
	sink.LogOutput("sess-abc1", []byte("hello\n"))
	sink.LogInputText("sess-abc1", "ls\n")
	sink.LogInputKey("sess-abc1", "<Enter>")
	sink.LogInputKeys("sess-abc1", []string{"<Ctrl+c>", "<Enter>"})
	sink.LogTerminalQueryResponse("sess-abc1", "CPR")
	sink.LogExit("sess-abc1", 0)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, sinkPath(t, dir, "sess-abc1"))
	if len(lines) != 7 {
		t.Fatalf("got %d log lines, want 7", len(lines))
	}

	spawn := gjson.Parse(lines[0])
	if spawn.Get("event").String() != "spawn" || spawn.Get("name").String() != "my-session" {
		t.Fatalf("unexpected spawn record: %s", lines[0])
	}

	output := gjson.Parse(lines[1])
	if output.Get("stream").String() != "output" || output.Get("data").String() != "hello\n" {
		t.Fatalf("unexpected output record: %s", lines[1])
	}

	inputText := gjson.Parse(lines[2])
	if inputText.Get("stream").String() != "input" || inputText.Get("kind").String() != "text" {
		t.Fatalf("unexpected input-text record: %s", lines[2])
	}

	inputKeys := gjson.Parse(lines[4])
	if got := inputKeys.Get("keys.1").String(); got != "<Enter>" {
		t.Fatalf("unexpected keys array element: %s (record %s)", got, lines[4])
	}

	exit := gjson.Parse(lines[6])
	if exit.Get("event").String() != "exit" || exit.Get("exitCode").Int() != 0 {
		t.Fatalf("unexpected exit record: %s", lines[6])
	}
}

func TestJSONLFileSink_InputLoggingDisabledSuppressesInputRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLFileSink(dir, "sess-disabled", true, NopLogger{})
	if err != nil {
		t.Fatalf("NewJSONLFileSink: %v", err)
	}

	sink.LogSpawn("sess-disabled", "name", "/")
	sink.LogInputText("sess-disabled", "should not appear")
	sink.LogInputKey("sess-disabled", "<Enter>")
	sink.LogTerminalQueryResponse("sess-disabled", "DA1")
	sink.LogOutput("sess-disabled", []byte("kept\n"))
	sink.LogExit("sess-disabled", 1)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, sinkPath(t, dir, "sess-disabled"))
	if len(lines) != 3 {
		t.Fatalf("got %d log lines, want 3 (spawn, output, exit)", len(lines))
	}
	for _, l := range lines {
		if gjson.Parse(l).Get("stream").String() == "input" {
			t.Fatalf("found suppressed input record: %s", l)
		}
	}
}
