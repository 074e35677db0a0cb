// Command reflow resolves and runs the callbacks of a reactive layout.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/reflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
