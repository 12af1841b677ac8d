//go:build windows
// +build windows

package tracer

import "os/exec"

// setProcGroup is a no-op on Windows; killTree falls back to killing the
// direct child only.
func setProcGroup(cmd *exec.Cmd) {}

func killTree(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func exitInfo(cmd *exec.Cmd) (code int, signal string) {
	if cmd.ProcessState == nil {
		return -1, ""
	}
	return cmd.ProcessState.ExitCode(), ""
}
