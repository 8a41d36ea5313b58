//go:build windows

package platform

import (
	"os/exec"
	"strconv"
)

func prepareCommandForTermination(cmd *exec.Cmd) {}

// terminateProcessTree uses taskkill /T to take children down with the parent.
func terminateProcessTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	if err := kill.Run(); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
