package tern

import (
	"time"

	"github.com/denismitr/tern-orientdb/internal/database/orientgateway"
	"github.com/go-resty/resty/v2"
)

type orientConfig struct {
	client  orientgateway.ClientConfig
	options orientgateway.Options
	lock    bool
	lockKey string
}

type OrientOptionFunc func(*orientConfig)

// UseOrientDB runs migrations against an OrientDB database through its HTTP API
func UseOrientDB(url, database string, opts ...OrientOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		cfg := orientConfig{
			client:  orientgateway.ClientConfig{URL: url, Database: database},
			options: orientgateway.NewDefaultOptions(),
		}

		for _, o := range opts {
			o(&cfg)
		}

		if cfg.lock {
			lo := orientgateway.NewDefaultLockOptions(cfg.options.Class)
			if cfg.lockKey != "" {
				lo.Key = cfg.lockKey
			}
			cfg.options.Lock = &lo
		}

		client, err := orientgateway.NewClient(cfg.client)
		if err != nil {
			return err
		}

		g, err := orientgateway.New(client, cfg.options)
		if err != nil {
			return err
		}

		m.gateway = g
		return nil
	}
}

func WithOrientCredentials(username, password string) OrientOptionFunc {
	return func(c *orientConfig) {
		c.client.Username = username
		c.client.Password = password
	}
}

// WithOrientTimeout limits every single HTTP request
func WithOrientTimeout(timeout time.Duration) OrientOptionFunc {
	return func(c *orientConfig) {
		c.client.Timeout = timeout
	}
}

func WithOrientRESTClient(rest *resty.Client) OrientOptionFunc {
	return func(c *orientConfig) {
		c.client.RESTClient = rest
	}
}

// WithOrientRepositoryClass sets the class keeping the migration log
func WithOrientRepositoryClass(class string) OrientOptionFunc {
	return func(c *orientConfig) {
		c.options.Class = class
	}
}

func WithOrientConnectAttempts(maxAttempts int, step time.Duration) OrientOptionFunc {
	return func(c *orientConfig) {
		c.options.Connect = orientgateway.ConnectOptions{MaxAttempts: maxAttempts, RetryStep: step}
	}
}

// WithOrientLock guards every run with an advisory lock document,
// key defaults to "tern" when empty
func WithOrientLock(key string) OrientOptionFunc {
	return func(c *orientConfig) {
		c.lock = true
		c.lockKey = key
	}
}

func WithOrientTransactionalScripts() OrientOptionFunc {
	return func(c *orientConfig) {
		c.options.Transactional = true
	}
}
