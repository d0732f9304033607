//go:build unix

package deploy

import (
	"os/exec"
	"syscall"
)

// killProcessGroup puts the step shell in its own process group and makes
// cancellation kill the whole group, so commands it spawned die with it.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
