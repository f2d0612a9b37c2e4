package orientgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/internal/retry"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultLockKey         = "tern"
	DefaultLockMaxAttempts = 10
	DefaultLockRetryStep   = 500 * time.Millisecond
)

type LockOptions struct {
	Class       string
	Key         string
	MaxAttempts int
	RetryStep   time.Duration
}

func NewDefaultLockOptions(class string) LockOptions {
	return LockOptions{
		Class:       class + "_lock",
		Key:         DefaultLockKey,
		MaxAttempts: DefaultLockMaxAttempts,
		RetryStep:   DefaultLockRetryStep,
	}
}

// Locker is an advisory lock: a document in a class with a unique index on
// the lock name, owned by a random token so only the holder can release it.
// A crashed holder leaves the document behind and it has to be deleted by hand.
type Locker struct {
	client  *Client
	lg      logger.Logger
	options LockOptions
	owner   string
}

var _ database.Locker = (*Locker)(nil)

func NewLocker(client *Client, options LockOptions) (*Locker, error) {
	if err := validateClassName(options.Class); err != nil {
		return nil, err
	}

	if options.Key == "" {
		options.Key = DefaultLockKey
	}

	if options.MaxAttempts < 1 {
		options.MaxAttempts = DefaultLockMaxAttempts
	}

	if options.RetryStep <= 0 {
		options.RetryStep = DefaultLockRetryStep
	}

	return &Locker{
		client:  client,
		lg:      logger.NullLogger{},
		options: options,
		owner:   uuid.New().String(),
	}, nil
}

func (l *Locker) Owner() string {
	return l.owner
}

func (l *Locker) Lock(ctx context.Context) error {
	if err := l.ensureClass(ctx); err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s SET name = :name, owner = :owner, acquired_at = sysdate()",
		l.options.Class,
	)
	params := map[string]interface{}{"name": l.options.Key, "owner": l.owner}

	policy := retry.Policy{MaxAttempts: l.options.MaxAttempts, Step: l.options.RetryStep}
	err := policy.Do(ctx, func(attempt int) error {
		l.lg.SQL(query, params)

		err := l.client.Command(ctx, query, params, nil)
		if err != nil && isDuplicateKey(err) {
			l.lg.Debugf("lock %s is held by another process, attempt %d", l.options.Key, attempt)
			return retry.Retryable(err)
		}

		return err
	})

	if err != nil {
		if errors.Is(err, retry.ErrTooManyAttempts) {
			return errors.Wrapf(database.ErrLockTimeout, "lock %s: %s", l.options.Key, err.Error())
		}

		return errors.Wrapf(err, "could not acquire lock %s", l.options.Key)
	}

	l.lg.Debugf("lock %s acquired by %s", l.options.Key, l.owner)

	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = :name AND owner = :owner", l.options.Class)
	params := map[string]interface{}{"name": l.options.Key, "owner": l.owner}
	l.lg.SQL(query, params)

	if err := l.client.Command(ctx, query, params, nil); err != nil {
		return errors.Wrapf(err, "could not release lock %s", l.options.Key)
	}

	return nil
}

func (l *Locker) ensureClass(ctx context.Context) error {
	c := l.options.Class
	scripts := []string{
		fmt.Sprintf("CREATE CLASS %s IF NOT EXISTS;", c),
		fmt.Sprintf("CREATE PROPERTY %s.name IF NOT EXISTS STRING;", c),
		fmt.Sprintf("CREATE PROPERTY %s.owner IF NOT EXISTS STRING;", c),
		fmt.Sprintf("CREATE PROPERTY %s.acquired_at IF NOT EXISTS DATETIME;", c),
		fmt.Sprintf("CREATE INDEX %s.name IF NOT EXISTS ON %s (name) UNIQUE;", c, c),
	}

	if err := l.client.Batch(ctx, scripts, false); err != nil {
		return errors.Wrapf(err, "could not prepare lock class %s", c)
	}

	return nil
}
