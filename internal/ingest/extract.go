package ingest

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	extractFilePrefix = "GrantsDBExtract"
	extractDateLayout = "20060102"

	// Anything smaller than this is an error page, not an archive.
	minArchiveBytes = 1024

	downloadMaxRetries = 2
)

var errExtractNotFound = errors.New("extract not published for date")

var extractLinkRegex = regexp.MustCompile(`GrantsDBExtract\d{8}v\d\.zip$`)

// ExtractDownloader resolves and fetches the bulk extract archive for a
// given publication date and unpacks the contained XML document into the
// staging directory. It is the only component that writes to the
// filesystem; the transformer only reads from the staging directory.
type ExtractDownloader struct {
	Client          *http.Client
	BaseURL         string // direct archive URL prefix
	ListingURL      string // optional "latest extracts" page, scraped for links
	StagingDir      string
	FallbackPath    string // last-resort offline XML document
	MaxLookbackDays int
}

func NewExtractDownloader(baseURL, listingURL, stagingDir, fallbackPath string) *ExtractDownloader {
	return &ExtractDownloader{
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
		BaseURL:         strings.TrimRight(baseURL, "/"),
		ListingURL:      listingURL,
		StagingDir:      stagingDir,
		FallbackPath:    fallbackPath,
		MaxLookbackDays: 7,
	}
}

// Acquire returns the path to the extracted XML document for date,
// walking the fallback chain in order: network primary suffix, network
// alternate suffix, previous day (bounded), offline fallback, failure.
// A document already present in staging is returned without touching the
// network, so repeated invocations for the same date are idempotent.
func (d *ExtractDownloader) Acquire(ctx context.Context, date time.Time, useAlternateVersion, useOfflineFallback bool) (string, error) {
	if err := os.MkdirAll(d.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}

	versions := []string{"v2", "v1"}
	if useAlternateVersion {
		versions = []string{"v1", "v2"}
	}

	path, err := d.acquireForDate(ctx, date, versions, d.MaxLookbackDays)
	if err == nil {
		return path, nil
	}

	if useOfflineFallback && d.FallbackPath != "" {
		if _, statErr := os.Stat(d.FallbackPath); statErr == nil {
			log.Printf("[Extract] network acquisition failed (%v), using offline fallback %s", err, d.FallbackPath)
			return d.FallbackPath, nil
		}
	}

	return "", fmt.Errorf("all acquisition tiers exhausted for %s: %w", date.Format(extractDateLayout), err)
}

func (d *ExtractDownloader) acquireForDate(ctx context.Context, date time.Time, versions []string, lookback int) (string, error) {
	var lastErr error
	for i, version := range versions {
		base := d.fileBase(date, version)
		xmlPath := filepath.Join(d.StagingDir, base+".xml")
		if _, err := os.Stat(xmlPath); err == nil {
			log.Printf("[Extract] cache hit: %s", xmlPath)
			return xmlPath, nil
		}

		// The listing page only ever advertises the primary suffix, and
		// only the first tier consults it; lookback days go straight to
		// constructed URLs.
		url := d.BaseURL + "/" + base + ".zip"
		if i == 0 && lookback == d.MaxLookbackDays && d.ListingURL != "" {
			if resolved, err := d.resolveLatestURL(); err == nil && resolved != "" {
				url = resolved
				base = strings.TrimSuffix(filepath.Base(resolved), ".zip")
				xmlPath = filepath.Join(d.StagingDir, base+".xml")
				if _, err := os.Stat(xmlPath); err == nil {
					return xmlPath, nil
				}
			} else if err != nil {
				log.Printf("[Extract] listing resolution failed, constructing URL from date: %v", err)
			}
		}

		path, err := d.fetchAndExtract(ctx, url, base)
		if err == nil {
			return path, nil
		}
		lastErr = err
		log.Printf("[Extract] %s failed: %v", base, err)
	}

	if lookback > 0 {
		prev := date.AddDate(0, 0, -1)
		log.Printf("[Extract] falling back to previous day %s (%d lookback days left)", prev.Format(extractDateLayout), lookback-1)
		return d.acquireForDate(ctx, prev, versions, lookback-1)
	}

	return "", lastErr
}

func (d *ExtractDownloader) fileBase(date time.Time, version string) string {
	return extractFilePrefix + date.Format(extractDateLayout) + version
}

// resolveLatestURL scrapes the extract listing page and returns the
// newest archive link; the file-name date embedded in the link makes
// lexicographic order chronological.
func (d *ExtractDownloader) resolveLatestURL() (string, error) {
	c := colly.NewCollector()

	var links []string
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if extractLinkRegex.MatchString(href) {
			links = append(links, href)
		}
	})

	if err := c.Visit(d.ListingURL); err != nil {
		return "", fmt.Errorf("visiting listing page: %w", err)
	}
	if len(links) == 0 {
		return "", fmt.Errorf("no extract links on listing page %s", d.ListingURL)
	}

	sort.Strings(links)
	return links[len(links)-1], nil
}

// fetchAndExtract downloads one archive, validates it and unpacks the
// single XML entry into staging.
func (d *ExtractDownloader) fetchAndExtract(ctx context.Context, url, base string) (string, error) {
	zipPath := filepath.Join(d.StagingDir, base+".zip")
	if err := d.download(ctx, url, zipPath); err != nil {
		return "", err
	}

	if err := validateArchive(zipPath); err != nil {
		return "", fmt.Errorf("archive validation failed for %s: %w", url, err)
	}

	xmlPath := filepath.Join(d.StagingDir, base+".xml")
	if err := unzipDocument(zipPath, xmlPath); err != nil {
		return "", fmt.Errorf("unpacking %s: %w", zipPath, err)
	}

	log.Printf("[Extract] downloaded and extracted %s", xmlPath)
	return xmlPath, nil
}

func (d *ExtractDownloader) download(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= downloadMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/zip,application/octet-stream;q=0.9,*/*;q=0.8")

		resp, err := d.Client.Do(req)
		if err != nil {
			lastErr = err
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			return fmt.Errorf("%w: %s (status %d)", errExtractNotFound, url, resp.StatusCode)
		}
		if shouldRetryStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		err = writeFile(dest, resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("writing archive: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// validateArchive checks that the payload is a plausible extract archive:
// minimum size and exactly one XML entry.
func validateArchive(zipPath string) error {
	info, err := os.Stat(zipPath)
	if err != nil {
		return err
	}
	if info.Size() < minArchiveBytes {
		return fmt.Errorf("archive too small (%d bytes)", info.Size())
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("not a zip archive: %w", err)
	}
	defer zr.Close()

	xmlEntries := 0
	for _, f := range zr.File {
		if strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			xmlEntries++
		}
	}
	if xmlEntries != 1 {
		return fmt.Errorf("expected exactly one XML entry, found %d", xmlEntries)
	}
	return nil
}

func unzipDocument(zipPath, xmlPath string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(xmlPath, rc)
		rc.Close()
		return err
	}
	return fmt.Errorf("no XML entry in %s", zipPath)
}

func isTimeout(err error) bool {
	netErr, ok := err.(interface{ Timeout() bool })
	return ok && netErr.Timeout()
}

// shouldRetryStatus reports whether a status code is transient.
func shouldRetryStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
