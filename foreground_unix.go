//go:build unix

package umux

import (
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// posixForegroundProbe lists the immediate children of a PTY leader PID by
// scanning /proc and returns the first child whose process-state short form
// is running or sleeping (see isForegroundState). Membership in the
// terminal's foreground process group is not checked, so a background job
// of the shell also counts as a foreground process.
type posixForegroundProbe struct{}

func (posixForegroundProbe) Foreground(ptyLeaderPID int) (info *ForegroundInfo) {
	defer func() {
		if recover() != nil {
			info = nil
		}
	}()

	deadline := time.Now().Add(foregroundProbeDeadline)

	children := childPIDs(ptyLeaderPID, deadline)
	for _, pid := range children {
		if time.Now().After(deadline) {
			return nil
		}
		state, comm := processState(pid)
		if state == "" {
			continue
		}
		if isForegroundState(state) {
			return &ForegroundInfo{PID: pid, Command: comm}
		}
	}
	return nil
}

// childPIDs scans /proc for processes whose PPid matches parent, bounded by
// deadline. Best-effort: any read failure is skipped, never fatal.
func childPIDs(parent int, deadline time.Time) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	var children []int
	for _, entry := range entries {
		if time.Now().After(deadline) {
			break
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		ppid, ok := readPPid(pid)
		if ok && ppid == parent {
			children = append(children, pid)
		}
	}
	return children
}

func readPPid(pid int) (int, bool) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return 0, false
	}
	// Fields after the parenthesized comm name are space-separated; the
	// first is the state and the second (field 4 of the whole line) is PPid.
	closeParen := strings.LastIndexByte(string(data), ')')
	if closeParen < 0 || closeParen+2 >= len(data) {
		return 0, false
	}
	fields := strings.Fields(string(data[closeParen+2:]))
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

func processState(pid int) (state string, comm string) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return "", ""
	}
	open := strings.IndexByte(string(data), '(')
	closeParen := strings.LastIndexByte(string(data), ')')
	if open < 0 || closeParen < 0 || closeParen <= open {
		return "", ""
	}
	comm = string(data[open+1 : closeParen])
	rest := strings.Fields(string(data[closeParen+2:]))
	if len(rest) == 0 {
		return "", comm
	}
	return rest[0], comm
}

// isForegroundState treats a running or sleeping process as the candidate
// foreground occupant; zombie/stopped processes are skipped.
func isForegroundState(state string) bool {
	switch state {
	case "R", "S", "D":
		return true
	default:
		return false
	}
}

// newForegroundProbe returns the POSIX probe on unix platforms.
func newForegroundProbe() ForegroundProbe {
	return posixForegroundProbe{}
}

// killProcessGroup signals the whole process group spawned under a PTY
// leader, so grandchildren left behind by the shell are reaped too, not
// just the shell itself.
func killProcessGroup(pid int, sig syscall.Signal) error {
	return unix.Kill(-pid, unix.Signal(sig))
}
