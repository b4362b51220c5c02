package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fmueller/vidscribe/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewExtractCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "Process interrupted by user")
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(1)
}
