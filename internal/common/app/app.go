package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
)

// CreateContextWithShutdown returns a context that will report done when a SIGINT or SIGTERM is received
func CreateContextWithShutdown() *seedcontext.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-c:
			logrus.Warnf("Received %s, aborting", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return seedcontext.New(ctx, logrus.NewEntry(logrus.StandardLogger()))
}
