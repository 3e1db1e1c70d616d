//go:build windows

package service

import (
	"errors"
	"os"
	"os/exec"
)

func shellCommand(script string) *exec.Cmd {
	return exec.Command("cmd", "/C", script)
}

// windows has no SIGTERM, terminate kills the process
func terminate(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
