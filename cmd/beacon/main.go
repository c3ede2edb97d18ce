// Command beacon logs analytics events into a local queue and delivers
// scheduled payloads when a logged event matches their trigger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/beacon/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
