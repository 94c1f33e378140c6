package launcher

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// RunSupervisor execs the worker binary under a pty and copies its output
// into logFile, the same way a tmux pane would. This runs as the
// "internal run-worker-pty" re-exec target so the copy loop survives the
// launching CLI invocation's own exit; the detached grandchild IS the pty
// reader, not a process this package keeps a handle to.
func RunSupervisor(dir, logFile, bin string, args []string) error {
	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	cmd := exec.Command(bin, args...)
	cmd.Dir = dir

	ptmx, ptsFile, err := pty.Open()
	if err != nil {
		return err
	}
	defer ptmx.Close()

	cmd.Stdin = nil
	cmd.Stdout = ptsFile
	cmd.Stderr = ptsFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		ptsFile.Close()
		return err
	}
	ptsFile.Close()

	if _, err := io.Copy(out, ptmx); err != nil {
		var pathErr *os.PathError
		if !(errors.As(err, &pathErr) && pathErr.Err == syscall.EIO) {
			return err
		}
	}

	return cmd.Wait()
}
