// Command rulefire compiles CUE rules, fires their consequences against a
// working memory and inspects the SQLite firing journal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/rulefire/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
