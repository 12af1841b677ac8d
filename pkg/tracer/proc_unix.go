//go:build !windows
// +build !windows

package tracer

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the traced process in its own process group so a
// timeout or cancel can kill the whole subprocess tree.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid signals the whole group.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

func exitInfo(cmd *exec.Cmd) (code int, signal string) {
	ps := cmd.ProcessState
	if ps == nil {
		return -1, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	return ps.ExitCode(), ""
}
