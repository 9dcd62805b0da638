//go:build !windows

package encoder

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// terminate asks the process to exit with SIGTERM.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := unix.Kill(p.Pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}
