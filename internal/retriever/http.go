// Package retriever fetches raw API documents.
//
// The orchestrator only sees the Retriever interface; HTTP is the production
// implementation and tests substitute their own.
package retriever

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/logging"
)

// Request identifies one API call.
type Request struct {
	Section string
	API     string
	Args    map[string]string
}

// Path returns the request path relative to the base URL.
func (r Request) Path() string {
	return "/" + r.Section + "/" + r.API + ".xml.aspx"
}

// Retriever returns the raw bytes of a document.
type Retriever interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Func adapts a function to Retriever.
type Func func(ctx context.Context, req Request) ([]byte, error)

func (f Func) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Options configures an HTTP retriever.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	UserAgent     string
}

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultUserAgent     = "evesync"
	maxRetryAttempts     = 10
	maxRetryBackoffTotal = 2 * time.Minute
)

// HTTP retrieves documents from the remote API over HTTP.
type HTTP struct {
	client   *resty.Client
	baseURL  string
	attempts uint64
	backoff  time.Duration
}

// NewHTTP creates an HTTP retriever.
func NewHTTP(opts Options) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	attempts := opts.RetryAttempts
	if attempts < 0 || attempts > maxRetryAttempts {
		attempts = maxRetryAttempts
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/xml, text/xml").
		SetRetryCount(0)

	return &HTTP{
		client:   client,
		baseURL:  opts.BaseURL,
		attempts: uint64(attempts), // #nosec G115 -- bounded above
		backoff:  opts.RetryBackoff,
	}
}

// Fetch posts the request arguments as a form and returns the body of a
// successful response. Transport failures and retryable statuses are retried
// with exponential backoff.
func (h *HTTP) Fetch(ctx context.Context, req Request) ([]byte, error) {
	logger := logging.WithFields(ctx, "section", req.Section, "api", req.API)

	backoff := retry.WithMaxRetries(h.attempts,
		retry.WithMaxDuration(maxRetryBackoffTotal, retry.NewExponential(h.backoff)))

	var (
		body    []byte
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, err := h.fetchOnce(ctx, req)
		if err != nil {
			if IsRetryable(err) && ctx.Err() == nil {
				logger.Warn("fetch failed, retrying", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("fetched document", "bytes", len(body), "attempts", attempt)
	return body, nil
}

func (h *HTTP) fetchOnce(ctx context.Context, req Request) ([]byte, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetFormData(req.Args).
		Post(req.Path())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &UnreachableError{URL: h.baseURL + req.Path(), Err: err}
	}

	if resp.IsError() || resp.StatusCode() >= 300 {
		return nil, remoteError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func remoteError(status int, body []byte) *RemoteError {
	re := &RemoteError{Status: status, Retryable: retryableStatus(status)}
	if doc, err := document.Parse(body); err == nil && doc.HasError {
		re.Code = doc.ErrorCode
		re.Message = doc.ErrorText
	} else if len(body) > 0 && len(body) <= 256 {
		re.Message = strings.TrimSpace(string(body))
	}
	return re
}

var _ Retriever = (*HTTP)(nil)
