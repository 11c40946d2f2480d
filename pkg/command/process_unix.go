// Copyright (c) 2025 A Bit of Help, Inc.

//go:build unix

package command

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts cmd as a group leader so cancellation reaches its children.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
