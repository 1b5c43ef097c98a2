// Package source opens the pipeline's CSV input from a local path or a
// remote http(s) or ftp location.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/lox/aqicast/internal/httputil"
	"github.com/lox/aqicast/internal/metrics"
)

const (
	ftpTimeout    = 30 * time.Second
	retryMaxTime  = 2 * time.Minute
	maxErrorBytes = 512
)

// Opener resolves locations into readers.
type Opener struct {
	client       *http.Client
	retryMaxTime time.Duration
}

func NewOpener() *Opener {
	return &Opener{
		client:       httputil.NewClient(),
		retryMaxTime: retryMaxTime,
	}
}

// Open resolves location and returns a reader over its contents. The caller
// must close it.
func Open(ctx context.Context, location string) (io.ReadCloser, error) {
	return NewOpener().Open(ctx, location)
}

func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	scheme := Scheme(location)
	var (
		rc  io.ReadCloser
		err error
	)
	switch scheme {
	case "http", "https":
		rc, err = o.openHTTP(ctx, location)
	case "ftp":
		rc, err = o.openFTP(ctx, location)
	default:
		rc, err = os.Open(location)
		if err != nil {
			err = fmt.Errorf("open %s: %w", location, err)
		}
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SourceFetchesTotal.WithLabelValues(scheme, status).Inc()
	return rc, err
}

// Scheme classifies location as "http", "https", "ftp" or "file".
func Scheme(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return "file"
	}
	switch s := strings.ToLower(u.Scheme); s {
	case "http", "https", "ftp":
		return s
	}
	return "file"
}

func (o *Opener) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	var body []byte
	operation := func() error {
		req, err := httputil.NewRequest(ctx, location)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := o.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("fetch %s: %w", location, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("fetch %s: status %d", location, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", location, resp.StatusCode, strings.TrimSpace(string(b))))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = o.retryMaxTime
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (o *Opener) openFTP(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse ftp url: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, errors.New("ftp url has no file path")
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	return &ftpReader{resp: resp, conn: conn}, nil
}

type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	err := r.resp.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}
