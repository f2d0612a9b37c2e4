package orientgateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

var ErrRequestFailed = errors.New("orientdb request failed")

type ClientConfig struct {
	URL      string `validate:"required,url"`
	Database string `validate:"required"`
	Username string
	Password string
	Timeout  time.Duration `validate:"min=0"`

	// RESTClient is optional, a fresh resty client is created when nil
	RESTClient *resty.Client
}

// Client talks to the OrientDB HTTP API of a single database
type Client struct {
	rest     *resty.Client
	database string
}

// ServerError is returned when OrientDB answers with a non 2xx status
type ServerError struct {
	Status  int
	Content string
}

func (e *ServerError) Error() string {
	return "orientdb responded with " + http.StatusText(e.Status) + ": " + e.Content
}

func (e *ServerError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

type commandRequest struct {
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type batchRequest struct {
	Transaction bool             `json:"transaction"`
	Operations  []batchOperation `json:"operations"`
}

type batchOperation struct {
	Type     string   `json:"type"`
	Language string   `json:"language"`
	Script   []string `json:"script"`
}

type errorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Reason  int    `json:"reason"`
		Content string `json:"content"`
	} `json:"errors"`
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid orientdb client config")
	}

	rest := cfg.RESTClient
	if rest == nil {
		rest = resty.New()
	}

	rest.SetBaseURL(strings.TrimRight(cfg.URL, "/"))
	rest.SetHeader("Accept", "application/json")
	rest.SetPathParam("database", cfg.Database)
	rest.JSONMarshal = json.Marshal
	rest.JSONUnmarshal = json.Unmarshal

	if cfg.Username != "" {
		rest.SetBasicAuth(cfg.Username, cfg.Password)
	}

	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}

	return &Client{rest: rest, database: cfg.Database}, nil
}

func (c *Client) Database() string {
	return c.database
}

// Connect checks that the database is reachable and the credentials are accepted
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetError(&errorResponse{}).
		Get("/connect/{database}")

	return c.check(resp, err, "connect")
}

// Command runs a single SQL command, result must be a pointer to a struct
// with a Result slice field matching the returned documents
func (c *Client) Command(ctx context.Context, command string, params map[string]interface{}, result interface{}) error {
	req := c.rest.R().
		SetContext(ctx).
		SetBody(commandRequest{Command: command, Parameters: params}).
		SetError(&errorResponse{})

	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Post("/command/{database}/sql")

	return c.check(resp, err, "command")
}

// Batch runs the statements as one SQL script
func (c *Client) Batch(ctx context.Context, scripts []string, transaction bool) error {
	body := batchRequest{
		Transaction: transaction,
		Operations: []batchOperation{
			{Type: "script", Language: "sql", Script: scripts},
		},
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&errorResponse{}).
		Post("/batch/{database}")

	return c.check(resp, err, "batch")
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return errors.Wrapf(ErrRequestFailed, "%s on database %s: %s", op, c.database, err.Error())
	}

	if !resp.IsError() {
		return nil
	}

	serverErr := &ServerError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorResponse); ok && len(body.Errors) > 0 {
		serverErr.Content = body.Errors[0].Content
	} else {
		serverErr.Content = strings.TrimSpace(resp.String())
	}

	return errors.Wrapf(serverErr, "%s on database %s", op, c.database)
}

func isUnauthorized(err error) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.Unauthorized()
}

func isClassNotFound(err error) bool {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		return false
	}

	content := strings.ToLower(serverErr.Content)
	return strings.Contains(content, "class not found")
}

func isDuplicateKey(err error) bool {
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		return false
	}

	content := strings.ToLower(serverErr.Content)
	return strings.Contains(content, "duplicatedexception") || strings.Contains(content, "duplicated key")
}
