package wikibase

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Observer receives the outcome of every remote call.
type Observer interface {
	ObserveRequest(service string, d time.Duration, err error)
}

// Options configures the HTTP side of both clients. The zero value is usable.
type Options struct {
	HTTPClient *http.Client
	// Limiter throttles requests; it may be shared between clients.
	Limiter  *rate.Limiter
	Observer Observer
	Logger   *slog.Logger
}

const defaultTimeout = 30 * time.Second

type transport struct {
	service  string
	client   *http.Client
	limiter  *rate.Limiter
	observer Observer
	logger   *slog.Logger
}

func newTransport(service string, opts Options) *transport {
	t := &transport{
		service:  service,
		client:   opts.HTTPClient,
		limiter:  opts.Limiter,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if t.client == nil {
		t.client = &http.Client{Timeout: defaultTimeout}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// do sends req and returns the status code and body. Only failures to get a
// response are reported as errors.
func (t *transport) do(op string, req *http.Request) (status int, body []byte, err error) {
	start := time.Now()
	defer func() {
		if t.observer != nil {
			t.observer.ObserveRequest(t.service, time.Since(start), err)
		}
	}()

	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return 0, nil, &TransportError{Service: t.service, Op: op, Err: err}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Service: t.service, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Service: t.service, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	t.logger.Debug("remote call", "service", t.service, "op", op, "status", resp.StatusCode, "bytes", len(body))
	return resp.StatusCode, body, nil
}

func success(status int) bool { return status >= 200 && status <= 299 }

// snippet shortens a response body for error messages.
func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
