package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, c := newRootCmd()
	err := root.ExecuteContext(ctx)
	c.close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
