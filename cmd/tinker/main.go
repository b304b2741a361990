package main

import (
	"fmt"
	"os"

	"github.com/roach88/tinker/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	code := cli.GetExitCode(err)
	// Exit code 1 means the command already reported its findings.
	if err != nil && code != cli.ExitFailure {
		fmt.Fprintln(os.Stderr, "tinker:", err)
	}
	os.Exit(code)
}
