// Command actionbus runs, validates and tests CUE workflows on the
// in-process action bus.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/actionbus/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
