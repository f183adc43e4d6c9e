// Package transfer implements the HTTP(S) download adapter used by the
// Royal Mail and Parascript crawlers: HEAD-based discovery, retried rated
// fetches, and all-or-nothing download sessions.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"golang.org/x/time/rate"
)

// Client is the HTTP transfer adapter. A nil rate limiter means unthrottled
// downloads.
type Client struct {
	http     *http.Client
	retry    *RetryPolicy
	limiter  *rate.Limiter
	username string
	password string
	logger   arbor.ILogger
}

// Options configures a transfer client
type Options struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
	RateLimitBytes int
	Username       string
	Password       string
}

// NewClient creates a transfer client with retry and optional byte-rate
// throttling
func NewClient(opts Options, logger arbor.ILogger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	var limiter *rate.Limiter
	if opts.RateLimitBytes > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitBytes), opts.RateLimitBytes)
	}

	return &Client{
		http:     &http.Client{Timeout: timeout},
		retry:    NewRetryPolicy(opts.RetryAttempts, opts.RetryBackoff),
		limiter:  limiter,
		username: opts.Username,
		password: opts.Password,
		logger:   logger,
	}
}

// Stat issues a HEAD request and returns a descriptor for the remote file.
// Period fields are left for the caller, which knows the URL scheme.
func (c *Client) Stat(ctx context.Context, url string) (interfaces.RemoteFile, error) {
	var rf interfaces.RemoteFile

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return rf, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return rf, fmt.Errorf("head %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rf, fmt.Errorf("head %s: status %d", url, resp.StatusCode)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			rf.Size = formatSize(n)
		}
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			rf.UploadedAt = t
		}
	}

	return rf, nil
}

// Fetch downloads a file to destPath through the retry policy. The download
// streams to a temporary sibling and renames on success, so destPath either
// holds a complete file or does not exist.
func (c *Client) Fetch(ctx context.Context, url string, destPath string) (int64, error) {
	var written int64

	_, err := c.retry.Execute(ctx, c.logger, func() (int, error) {
		n, status, err := c.fetchOnce(ctx, url, destPath)
		written = n
		return status, err
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// OpenSession returns a session that stages downloads until Commit
func (c *Client) OpenSession(ctx context.Context) (interfaces.TransferSession, error) {
	staging, err := os.MkdirTemp("", "colligo-session-*")
	if err != nil {
		return nil, fmt.Errorf("create session staging: %w", err)
	}

	c.logger.Debug().Str("staging", staging).Msg("Transfer session opened")
	return &session{client: c, staging: staging}, nil
}

func (c *Client) fetchOnce(ctx context.Context, url, destPath string) (int64, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, resp.StatusCode, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	tmpPath := destPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, resp.StatusCode, err
	}

	var body io.Reader = resp.Body
	if c.limiter != nil {
		body = &ratedReader{ctx: ctx, r: resp.Body, limiter: c.limiter}
	}

	written, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, resp.StatusCode, err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, resp.StatusCode, err
	}

	return written, resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// session stages fetched files in a temporary directory. Commit moves them
// to their final destinations in one pass; Close without Commit discards
// everything.
type session struct {
	client    *Client
	staging   string
	committed bool
	staged    []stagedFile
}

type stagedFile struct {
	stagingPath string
	destPath    string
}

func (s *session) Fetch(ctx context.Context, url string, destPath string) (int64, error) {
	stagingPath := filepath.Join(s.staging, filepath.Base(destPath))
	written, err := s.client.Fetch(ctx, url, stagingPath)
	if err != nil {
		return 0, err
	}

	s.staged = append(s.staged, stagedFile{stagingPath: stagingPath, destPath: destPath})
	return written, nil
}

func (s *session) Commit() error {
	for _, f := range s.staged {
		if err := os.MkdirAll(filepath.Dir(f.destPath), 0755); err != nil {
			return fmt.Errorf("commit session: %w", err)
		}
		if err := os.Rename(f.stagingPath, f.destPath); err != nil {
			return fmt.Errorf("commit session: %w", err)
		}
	}

	s.committed = true
	s.client.logger.Debug().Int("files", len(s.staged)).Msg("Transfer session committed")
	return nil
}

func (s *session) Close() error {
	if !s.committed && len(s.staged) > 0 {
		s.client.logger.Warn().
			Int("files", len(s.staged)).
			Msg("Transfer session closed without commit - discarding staged downloads")
	}
	return os.RemoveAll(s.staging)
}

// ratedReader throttles reads through a byte-rate limiter
type ratedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (rr *ratedReader) Read(p []byte) (int, error) {
	if burst := rr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := rr.r.Read(p)
	if n > 0 {
		if werr := rr.limiter.WaitN(rr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
