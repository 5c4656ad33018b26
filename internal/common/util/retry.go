package util

import (
	"time"

	"github.com/socialseed/graphseed/internal/common/seedcontext"
)

// RetryUntilSuccess calls performAction until it returns nil or ctx is done, calling onError after each failure
// and waiting interval between attempts.
func RetryUntilSuccess(ctx *seedcontext.Context, performAction func() error, onError func(error), interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			err := performAction()
			if err == nil {
				return
			}
			onError(err)
			if interval > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(interval):
				}
			}
		}
	}
}
