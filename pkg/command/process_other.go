// Copyright (c) 2025 A Bit of Help, Inc.

//go:build !unix

package command

import "os/exec"

// killProcessGroup leaves the default kill of the direct child; WaitDelay still bounds
// the wait on output held open by its children.
func killProcessGroup(cmd *exec.Cmd) {}
