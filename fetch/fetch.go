// Package fetch streams HTTP resources through a decode pipeline.
//
// Requests advertise gzip themselves, so the Go transport leaves the body
// compressed and the pipeline inflates it chunk by chunk as it arrives.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/etnz/library-versions/chunk"
	"github.com/etnz/library-versions/pipeline"
)

// DefaultAttempts is the number of tries ReadAll makes for a resource whose
// body ends early.
const DefaultAttempts = 2

// StatusError is returned when a server answers with anything but 200 OK.
type StatusError struct {
	URL    string
	Status string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Status)
}

// Client fetches resources and decodes them while they download.
// The zero value is usable.
type Client struct {
	// HTTP is the client used for requests, http.DefaultClient if nil.
	HTTP *http.Client
	// Metrics, if set, receives pipeline metrics labelled by host.
	Metrics *pipeline.Metrics
	// Logger defaults to a no-op logger.
	Logger log.Logger
	// Attempts bounds the tries of ReadAll. Zero means DefaultAttempts.
	Attempts int
	// UserAgent is sent with every request when set.
	UserAgent string
	// Header is added to every request, for instance an Authorization.
	Header http.Header
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.NewNopLogger()
}

func (c *Client) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	// Setting it ourselves turns off transparent decompression.
	req.Header.Set("Accept-Encoding", "gzip")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Status: resp.Status, Code: resp.StatusCode}
	}
	return resp, nil
}

// Request describes one resource to decode.
type Request struct {
	URL string
	// Config of the pipeline. A Content-Encoding sent by the server replaces
	// Config.ContentEncoding.
	Config pipeline.Config
	// Header is added to this request only.
	Header http.Header
}

// Stream fetches req.URL and hands its body to fn as a chunk source, along
// with the pipeline configured for it. The body is closed when fn returns.
func (c *Client) Stream(ctx context.Context, req Request, fn func(*pipeline.Pipeline, chunk.Source) error) error {
	resp, err := c.get(ctx, req.URL, req.Header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	cfg := req.Config
	if ce := resp.Header.Get("Content-Encoding"); ce != "" {
		cfg.ContentEncoding = ce
	}
	p, err := pipeline.New(cfg, pipeline.WithMetrics(c.Metrics, host(req.URL)))
	if err != nil {
		return fmt.Errorf("%s: %w", req.URL, err)
	}
	level.Debug(c.logger()).Log("msg", "streaming", "url", req.URL, "status", resp.StatusCode, "content_encoding", cfg.ContentEncoding)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	feed := p.Open(ctx, resp.Body)
	defer feed.Close()
	if err := fn(p, feed); err != nil {
		return fmt.Errorf("%s: %w", req.URL, err)
	}
	return nil
}

// Lines emits the lines of req.URL as they are decoded.
func (c *Client) Lines(ctx context.Context, req Request, emit func(string) error) error {
	return c.Stream(ctx, req, func(p *pipeline.Pipeline, src chunk.Source) error {
		return p.Lines(ctx, src, emit)
	})
}

// Open returns the decoded body of req.URL as a stream, for consumers that
// need an io.Reader (archive readers, JSON decoders). The caller must Close
// it; closing early aborts the download.
func (c *Client) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.get(ctx, req.URL, req.Header)
	if err != nil {
		cancel()
		return nil, err
	}
	cfg := req.Config
	if ce := resp.Header.Get("Content-Encoding"); ce != "" {
		cfg.ContentEncoding = ce
	}
	p, err := pipeline.New(cfg, pipeline.WithMetrics(c.Metrics, host(req.URL)))
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%s: %w", req.URL, err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer resp.Body.Close()
		err := p.Bytes(ctx, chunk.FromReader(resp.Body, cfg.ChunkSize), func(b []byte) error {
			if _, err := pw.Write(b); err != nil {
				// The reader was closed.
				return pipeline.ErrStop
			}
			return nil
		})
		if err != nil {
			err = fmt.Errorf("%s: %w", req.URL, err)
		}
		pw.CloseWithError(err)
	}()
	return &stream{PipeReader: pr, cancel: cancel}, nil
}

type stream struct {
	*io.PipeReader
	cancel context.CancelFunc
}

func (s *stream) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}

// ReadAll returns the decoded body of req.URL. A body that ends early is
// fetched again, up to Attempts times in total.
func (c *Client) ReadAll(ctx context.Context, req Request) ([]byte, error) {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var err error
	for i := 1; i <= attempts; i++ {
		var body []byte
		err = c.Stream(ctx, req, func(p *pipeline.Pipeline, src chunk.Source) error {
			var rerr error
			body, rerr = p.ReadAll(ctx, src)
			return rerr
		})
		if err == nil {
			return body, nil
		}
		if !pipeline.Retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		level.Warn(c.logger()).Log("msg", "retrying truncated download", "url", req.URL, "attempt", i, "err", err)
	}
	return nil, err
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
