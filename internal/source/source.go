// Package source reads the public alert feed. Candidate endpoints are tried
// in order and the first one that returns records wins.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/gabihorn/beiter-alert-bot/internal/alert"
	"github.com/gabihorn/beiter-alert-bot/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20

	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultAcceptLanguage = "he-IL,he;q=0.9,en;q=0.8"
)

// DefaultURLs are the Home Front Command feeds, in priority order.
var DefaultURLs = []string{
	"https://www.oref.org.il/WarningMessages/alert/alerts.json",
	"https://www.oref.org.il/WarningMessages/alert/Alerts.json",
}

// ErrSourceUnavailable is returned when every candidate endpoint failed.
var ErrSourceUnavailable = errors.New("alert source unavailable")

var utf8BOM = []byte("\xef\xbb\xbf")

// Config describes the feed endpoints and request headers.
type Config struct {
	URLs           []string
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
}

// HTTPSource fetches alert records over HTTP.
type HTTPSource struct {
	cfg     Config
	client  *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New builds an HTTPSource with its own client bounded by cfg.Timeout.
func New(cfg Config, logger zerolog.Logger, m *metrics.Metrics) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	return &HTTPSource{
		cfg:     cfg,
		client:  newHTTPClient(cfg.Timeout),
		logger:  logger.With().Str("component", "source").Logger(),
		metrics: m,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

func (s *HTTPSource) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("User-Agent", s.cfg.UserAgent)
	h.Set("Accept-Language", s.cfg.AcceptLanguage)
	h.Set("Referer", "https://www.oref.org.il/")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Cache-Control", "no-cache")
	return h
}

// Fetch returns the records of the first endpoint that has any. Endpoints that
// answer with nothing are skipped silently; failing ones are logged. The error
// wraps ErrSourceUnavailable only when every endpoint failed.
func (s *HTTPSource) Fetch(ctx context.Context) ([]alert.Record, error) {
	if len(s.cfg.URLs) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", ErrSourceUnavailable)
	}

	var errs []error
	for _, u := range s.cfg.URLs {
		recs, err := s.fetchOne(ctx, u)
		if err != nil {
			s.metrics.Fetch(metrics.OutcomeError)
			s.logger.Warn().Err(err).Str("url", u).Msg("fetch failed")
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		if len(recs) == 0 {
			s.metrics.Fetch(metrics.OutcomeEmpty)
			s.logger.Debug().Str("url", u).Msg("no alerts")
			continue
		}
		s.metrics.Fetch(metrics.OutcomeOK)
		s.logger.Debug().Str("url", u).Int("records", len(recs)).Msg("fetched")
		return recs, nil
	}

	if len(errs) == len(s.cfg.URLs) {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, errors.Join(errs...))
	}
	return []alert.Record{}, nil
}

func (s *HTTPSource) fetchOne(ctx context.Context, url string) ([]alert.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = s.headers()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body to keep the connection reusable and the log useful.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return ParseRecords(body)
}

// ParseRecords decodes a feed body. An array yields one record per object, a
// single object yields one record, and an empty body or null yields none.
// Anything that is not JSON is an error.
func ParseRecords(body []byte) ([]alert.Record, error) {
	body = bytes.TrimSpace(bytes.TrimPrefix(body, utf8BOM))
	if len(body) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON body")
	}

	root := gjson.ParseBytes(body)
	if root.Type == gjson.Null {
		return nil, nil
	}
	var out []alert.Record
	switch {
	case root.IsArray():
		root.ForEach(func(_, v gjson.Result) bool {
			if v.IsObject() {
				out = append(out, toRecord(v, false))
			}
			return true
		})
	case root.IsObject():
		out = append(out, toRecord(root, true))
	default:
		return nil, fmt.Errorf("unexpected JSON %s", root.Type)
	}
	return out, nil
}

func toRecord(v gjson.Result, live bool) alert.Record {
	return alert.Record{
		Data: textField(v.Get("data")),
		Date: dateField(v, live),
		Raw:  []byte(v.Raw),
	}
}

// textField accepts a string or a list of strings (the live feed lists every
// alerted town in one object).
func textField(r gjson.Result) string {
	switch {
	case r.Type == gjson.String:
		return r.Str
	case r.IsArray():
		var parts []string
		for _, p := range r.Array() {
			if p.Type == gjson.String && p.Str != "" {
				parts = append(parts, p.Str)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// dateField prefers alertDate. Only the single-object live shape falls back
// to its id; history entries without a date stay empty.
func dateField(v gjson.Result, live bool) string {
	if d := v.Get("alertDate"); d.Type == gjson.String {
		return d.Str
	}
	if !live {
		return ""
	}
	if id := v.Get("id"); id.Exists() && id.Type != gjson.Null {
		return id.String()
	}
	return ""
}
