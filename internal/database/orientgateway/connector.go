package orientgateway

import (
	"context"
	"sync"
	"time"

	"github.com/denismitr/tern-orientdb/internal/retry"
	"github.com/pkg/errors"
)

const (
	DefaultConnectionAttempts    = 10
	DefaultConnectionAttemptStep = time.Second

	maxConnectDelay = 10 * time.Second
)

type ConnectOptions struct {
	MaxAttempts int
	RetryStep   time.Duration
}

func (o ConnectOptions) policy() retry.Policy {
	return retry.Policy{MaxAttempts: o.MaxAttempts, Step: o.RetryStep, MaxDelay: maxConnectDelay}
}

func NewDefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

// RetryingConnector pings the server until it answers. Rejected credentials
// are not retried.
type RetryingConnector struct {
	sync.Mutex
	client    *Client
	options   ConnectOptions
	connected bool
}

func NewRetryingConnector(client *Client, options ConnectOptions) *RetryingConnector {
	if options.MaxAttempts < 1 {
		options.MaxAttempts = DefaultConnectionAttempts
	}

	if options.RetryStep <= 0 {
		options.RetryStep = DefaultConnectionAttemptStep
	}

	return &RetryingConnector{client: client, options: options}
}

func (c *RetryingConnector) Connect(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	if c.connected {
		return nil
	}

	err := c.options.policy().Do(ctx, func(attempt int) error {
		err := c.client.Connect(ctx)
		if err == nil || isUnauthorized(err) {
			return err
		}

		return retry.Retryable(errors.Wrapf(err, "could not reach orientdb on attempt %d", attempt))
	})

	if err != nil {
		return errors.Wrapf(err, "could not connect to database %s", c.client.Database())
	}

	c.connected = true

	return nil
}
