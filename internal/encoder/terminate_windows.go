//go:build windows

package encoder

import "os"

// terminate kills the process; Windows has no catchable termination signal for console tools.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
