// Command rawexec sends one HTTP request over a raw HTTP/1.1 or HTTP/2 stream and
// prints the final response.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		stop()
		os.Exit(exitCode(err))
	}
}
