package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(" +")

// RunWrapperctl executes a wrapperctl command with the given arguments string (split by spaces).
// Use RunWrapperctlArgs when arguments contain spaces that should be preserved.
func RunWrapperctl(ctx context.Context, env []string, binary, cmdArgs string, nolog bool) (stdout, stderr []byte, err error) {
	cmdArgs = strings.TrimSpace(cmdArgs)
	cmdArgs = multiSpaceRegex.ReplaceAllString(cmdArgs, " ")

	var args []string
	if cmdArgs != "" {
		args = strings.Split(cmdArgs, " ")
	}

	return RunWrapperctlArgs(ctx, env, binary, args, nolog)
}

// RunWrapperctlArgs executes a wrapperctl command with pre-split arguments.
func RunWrapperctlArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &outData
	cmd.Stderr = &errData
	cmd.Env = commandEnv(env, nolog)

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// StartWrapperctl starts a long running wrapperctl command, it's killed when ctx is done.
func StartWrapperctl(ctx context.Context, env []string, binary string, args []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = commandEnv(env, true)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// commandEnv returns os.Environ() with env on top, in exec.Cmd the last duplicated key wins.
func commandEnv(env []string, nolog bool) []string {
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "WRAPPERCTL_NO_LOG=true")
	}
	return newEnv
}
