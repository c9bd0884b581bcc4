// Package main is the entry point for the snapstate CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/snapstate/internal/cli"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
