// Package scraper fetches average real-estate prices per square meter from
// the agenz.ma price pages.
//
// The pages are Next.js applications: the price rows live as JSON in the
// __NEXT_DATA__ script tag. Older versions of the page rendered an HTML
// price table instead, which is still understood as a fallback.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"

	"golang.org/x/time/rate"
)

// DefaultURL is the national price page
const DefaultURL = "https://agenz.ma/fr/prix-immobilier-maroc"

const (
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	defaultAcceptLanguage = "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"

	// maxBodySize bounds the page read into memory.
	maxBodySize = 16 << 20
)

// Config holds the scraper settings
type Config struct {
	URLs              []string      `json:"urls"`
	Dataset           Dataset       `json:"dataset"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
	UserAgent         string        `json:"user_agent"`
	AcceptLanguage    string        `json:"accept_language"`
}

// DefaultConfig returns the scraper defaults: the national page, the
// province dataset and one request per second.
func DefaultConfig() *Config {
	return &Config{
		URLs:              []string{DefaultURL},
		Dataset:           DatasetProvinces,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		Burst:             1,
		UserAgent:         defaultUserAgent,
		AcceptLanguage:    defaultAcceptLanguage,
	}
}

// Validate checks the scraper configuration
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("at least one URL is required")
	}
	if !c.Dataset.IsValid() {
		return fmt.Errorf("unknown dataset %q", c.Dataset)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1")
	}
	return nil
}

// Scraper downloads price pages and extracts their listings
type Scraper struct {
	config  *Config
	client  *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewScraper creates a scraper. A nil config selects DefaultConfig.
func NewScraper(config *Config, log logger.Logger) (*Scraper, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "scraper", config, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:  log.WithComponent("scraper"),
	}, nil
}

// Fetch downloads one page
func (s *Scraper) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, url, err)
	}
	userAgent := s.config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", defaultAccept)
	if s.config.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", s.config.AcceptLanguage)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "fetch "+url, ctx.Err())
		}
		if os.IsTimeout(err) {
			return nil, errors.NetworkError(errors.CodeTimeout, url, err)
		}
		return nil, errors.NetworkError(errors.CodeConnectionFailed, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NetworkError(errors.CodeUnexpectedStatus, url, fmt.Errorf("status %s", resp.Status)).
			WithContext("status_code", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if os.IsTimeout(err) {
			return nil, errors.NetworkError(errors.CodeTimeout, url, err)
		}
		return nil, errors.NetworkError(errors.CodeConnectionFailed, url, err)
	}

	s.logger.WithFields(logger.Fields{
		"url":         url,
		"bytes":       len(body),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Fetched page")
	return body, nil
}

// Scrape downloads one page and extracts its listings
func (s *Scraper) Scrape(ctx context.Context, url string) ([]*models.PriceListing, error) {
	body, err := s.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	listings, source, err := ParsePage(body, s.config.Dataset)
	if err != nil {
		if normErr, ok := errors.AsNormalizerError(err); ok && normErr.Code == errors.CodePayloadNotFound {
			return nil, errors.NetworkError(errors.CodePayloadNotFound, url, normErr)
		}
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"url":      url,
		"source":   source,
		"dataset":  s.config.Dataset,
		"listings": len(listings),
	}).Info("Extracted listings")
	return listings, nil
}

// URLFailure records a page that could not be scraped
type URLFailure struct {
	URL   string                  `json:"url"`
	Error *errors.NormalizerError `json:"error"`
}

// Result is the outcome of ScrapeAll
type Result struct {
	Listings []*models.PriceListing `json:"listings"`
	Pages    int                    `json:"pages"`
	Failures []*URLFailure          `json:"failures,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// ScrapeAll scrapes every configured URL in order, pacing requests with the
// rate limiter. A failed page is recorded and skipped; the call fails only
// when no page could be scraped or the context ends.
func (s *Scraper) ScrapeAll(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}
	op := logger.NewOperationLogger("scrape", s.logger).WithFields(logger.Fields{
		"dataset": s.config.Dataset,
		"urls":    len(s.config.URLs),
	})

	for _, url := range s.config.URLs {
		if err := s.limiter.Wait(ctx); err != nil {
			cancelled := errors.InternalError(errors.CodeCancelled, "scrape", err)
			op.Error(cancelled, "Scrape cancelled")
			return result, cancelled
		}

		op.Step(url)
		listings, err := s.Scrape(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				cancelled := errors.InternalError(errors.CodeCancelled, "scrape", ctx.Err())
				op.Error(cancelled, "Scrape cancelled")
				return result, cancelled
			}
			normErr := errors.WrapIfNeeded(err, errors.CategoryNetwork, errors.CodeConnectionFailed, "scrape "+url)
			op.Warning(fmt.Sprintf("Skipping page %s: %v", url, normErr))
			result.Failures = append(result.Failures, &URLFailure{URL: url, Error: normErr})
			continue
		}
		result.Pages++
		result.Listings = append(result.Listings, listings...)
	}
	result.Duration = time.Since(start)

	if result.Pages == 0 {
		errs := make([]*errors.NormalizerError, len(result.Failures))
		for i, f := range result.Failures {
			errs[i] = f.Error
		}
		err := errors.PipelineError(errors.CodeNoListings, "scrape", errors.NewErrorSummary(errs))
		op.Error(err, "No page could be scraped")
		return result, err
	}

	op.Success(fmt.Sprintf("Scraped %d listings from %d pages", len(result.Listings), result.Pages))
	return result, nil
}
