//go:build !windows

package daemon

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminate signals the whole session so a ping in flight goes down too.
func terminate(pid int) error {
	err := unix.Kill(-pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, unix.SIGTERM)
	}
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
