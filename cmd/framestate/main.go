// Command framestate runs stateful queries over per-frame tracker output.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/framestate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
