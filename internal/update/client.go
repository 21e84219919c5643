package update

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxResponseSize = 20 << 20

// httpClient wraps the transport used by the workers: timeouts, proxy,
// conditional headers and per-host rate limiting.
type httpClient struct {
	client    *http.Client
	noProxy   *http.Client
	timeout   time.Duration
	userAgent string
	logger    zerolog.Logger

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func newHTTPClient(timeout time.Duration, userAgent, proxyURL string, logger zerolog.Logger) *httpClient {
	baseTransport := func() *http.Transport {
		return &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		}
	}

	transport := baseTransport()
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		} else {
			logger.Warn().Str("proxy", proxyURL).Msg("Ignoring unparseable proxy URL")
		}
	}

	return &httpClient{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		noProxy:   &http.Client{Timeout: timeout, Transport: baseTransport()},
		timeout:   timeout,
		userAgent: userAgent,
		logger:    logger.With().Str("component", "http_client").Logger(),
	}
}

// limiter returns the per-host rate limiter, creating it on first use.
// Two requests per second with a small burst is polite enough for feeds.
func (hc *httpClient) limiter(host string) *rate.Limiter {
	hc.limiterMu.Lock()
	defer hc.limiterMu.Unlock()
	if hc.limiters == nil {
		hc.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := hc.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(2), 4)
		hc.limiters[host] = l
	}
	return l
}

// download performs the HTTP GET for a request, handling conditional
// headers, gzip and permanent redirects.
func (hc *httpClient) download(r *Request) {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	if parsed, err := url.Parse(r.Source); err == nil && parsed.Host != "" {
		if err := hc.limiter(parsed.Host).Wait(ctx); err != nil {
			r.ReturnCode = ErrTimeout
			return
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Source, nil)
	if err != nil {
		r.ReturnCode = ErrNetPermanent
		return
	}

	req.Header.Set("User-Agent", hc.userAgent)
	req.Header.Set("Accept", "application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	if r.State.ETag != "" {
		req.Header.Set("If-None-Match", r.State.ETag)
	}
	if r.State.LastModified != "" {
		req.Header.Set("If-Modified-Since", r.State.LastModified)
	}
	if r.State.Cookies != "" {
		req.Header.Set("Cookie", r.State.Cookies)
	}
	if r.Options.Username != "" {
		req.SetBasicAuth(r.Options.Username, r.Options.Password)
	}

	client := hc.client
	if r.Options.NoProxy {
		client = hc.noProxy
	}

	// a permanent redirect (301/308) rewrites the request's Source; the
	// subscription's own Source is not changed
	client = &http.Client{
		Timeout:   client.Timeout,
		Transport: client.Transport,
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			// next.Response is the redirect response that led to next
			if next.Response != nil {
				switch next.Response.StatusCode {
				case http.StatusMovedPermanently, http.StatusPermanentRedirect:
					r.Source = next.URL.String()
				}
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		r.ReturnCode = classifyNetError(err)
		hc.logger.Debug().Err(err).Str("source", r.Source).
			Str("return_code", r.ReturnCode.String()).Msg("Download failed")
		return
	}
	defer resp.Body.Close()

	r.HTTPStatus = resp.StatusCode
	r.ContentType = resp.Header.Get("Content-Type")

	switch {
	case resp.StatusCode == http.StatusNotModified:
		// nothing changed, keep the stored conditional state
		return
	case resp.StatusCode == http.StatusUnauthorized:
		r.ReturnCode = ErrAuthFailed
		return
	case resp.StatusCode >= 400:
		r.ReturnCode = ErrNetPermanent
		return
	}

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			r.ReturnCode = ErrUnknown
			return
		}
		defer gz.Close()
		reader = gz
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxResponseSize))
	if err != nil {
		r.ReturnCode = classifyNetError(err)
		return
	}

	r.Data = data
	if etag := resp.Header.Get("ETag"); etag != "" {
		r.State.ETag = etag
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		r.State.LastModified = lastModified
	}
}

// classifyNetError maps transport errors onto retriable return codes.
func classifyNetError(err error) ReturnCode {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrHostNotFound
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrConnFailed
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrSockErr
	}

	return ErrUnknown
}

// execCommand runs a '|' source and captures its stdout. Exit code zero
// maps to HTTP 200, everything else to 404.
func execCommand(r *Request, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	command := strings.TrimPrefix(r.Source, "|")
	logger.Debug().Str("command", command).Msg("Executing feed command")

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.Output()
	if err != nil {
		r.HTTPStatus = 404
		return
	}

	r.Data = out
	r.HTTPStatus = 200
}

// loadFile reads a file:// URL or a bare path. A missing file maps to 404,
// an unreadable or empty one to 403.
func loadFile(r *Request) {
	filename := strings.TrimPrefix(r.Source, "file://")
	if anchor := strings.IndexByte(filename, '#'); anchor >= 0 {
		filename = filename[:anchor]
	}

	if _, err := os.Stat(filename); err != nil {
		r.HTTPStatus = 404
		return
	}

	data, err := os.ReadFile(filename)
	if err != nil || len(data) == 0 {
		r.HTTPStatus = 403
		return
	}

	r.Data = data
	r.HTTPStatus = 200
}

// applyFilter pipes the fetched body through the request's filter. A
// filter ending in .xsl is applied as an XSLT stylesheet (via xsltproc),
// anything else is run as a shell command reading the body from a
// temporary file. Empty filter output leaves the body unchanged.
func applyFilter(r *Request, timeout time.Duration, logger zerolog.Logger) {
	tmp, err := os.CreateTemp("", "feed-filter-")
	if err != nil {
		r.FilterErrors = err.Error()
		r.ReturnCode = ErrFilter
		return
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(r.Data); err != nil {
		tmp.Close()
		r.FilterErrors = err.Error()
		r.ReturnCode = ErrFilter
		return
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var cmd *exec.Cmd
	if strings.HasSuffix(r.FilterCmd, ".xsl") {
		cmd = exec.CommandContext(ctx, "xsltproc", r.FilterCmd, tmpName)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", r.FilterCmd+" < "+tmpName)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		r.FilterErrors = strings.TrimSpace(stderr.String())
		if r.FilterErrors == "" {
			r.FilterErrors = err.Error()
		}
		r.ReturnCode = ErrFilter
		logger.Warn().Str("filter", r.FilterCmd).Str("errors", r.FilterErrors).
			Msg("Feed filter failed")
		return
	}

	if stdout.Len() > 0 {
		r.Data = stdout.Bytes()
	}
}
