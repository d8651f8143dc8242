package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/treeauth/pkg/authsdk"
)

// maxAttempts bounds how often a rejected node is prompted again.
const maxAttempts = 3

// walk answers nodes until the tree completes.
func walk(ctx context.Context, step *authsdk.Step, p *Prompter) (*authsdk.Step, error) {
	attempts := 0
	for !step.Done() {
		node := step.Node

		if err := p.Answer(node); err != nil {
			return nil, err
		}

		if cb := node.Callback(authsdk.PollingWaitCallback); cb != nil {
			if err := sleep(ctx, time.Duration(cb.WaitTime())*time.Millisecond); err != nil {
				return nil, err
			}
		}

		next, err := node.Next(ctx)
		var authErr *authsdk.AuthenticationError
		if errors.As(err, &authErr) && attempts+1 < maxAttempts {
			attempts++
			p.printf("%s, try again\n", authErr.Message)
			continue
		}
		if err != nil {
			return nil, err
		}

		attempts = 0
		step = next
	}
	return step, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("interrupted while polling: %w", ctx.Err())
	}
}
