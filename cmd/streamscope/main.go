// Command streamscope records, replays and inspects reactive stream
// lifecycles.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/streamscope/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
