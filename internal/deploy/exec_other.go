//go:build !unix

package deploy

import "os/exec"

func killProcessGroup(*exec.Cmd) {}
