// collectors/hmd.go
package collectors

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Themichaelreimer/medistat/cache"
	"github.com/Themichaelreimer/medistat/config"
	"github.com/Themichaelreimer/medistat/datalake"
	"github.com/Themichaelreimer/medistat/logger"
	"github.com/Themichaelreimer/medistat/models"
	"github.com/Themichaelreimer/medistat/parser"
	"github.com/Themichaelreimer/medistat/resolver"
)

// Store is the slice of the database the HMD collector needs beyond what
// the datalake and resolver already cover. Satisfied by *database.Store.
type Store interface {
	GetOrCreateSource(ctx context.Context, name, link string) (*models.Source, error)
	GetSourceByName(ctx context.Context, name string) (*models.Source, error)
	GetUnprocessedRawRecords(ctx context.Context, sourceID int64) ([]models.RawRecord, error)
	MarkRawRecordProcessed(ctx context.Context, recordID int64) error
	InsertData(ctx context.Context, data []models.Datum) error
}

// NOTE: In order to use this collector, you MUST register with the Human
// Mortality Database and set your credentials in the following environment
// variables:
//
//	HMD_USERNAME="..."
//	HMD_PASSWORD="..."
const (
	hmdSourceName = "Human Mortality Database"
	hmdSourceLink = "https://www.mortality.org/"

	// The bulk zip sits behind a login and is ~160MB; the payload and its
	// server timestamp are cached so repeat invocations inside the TTL
	// window skip the whole login/download round trip.
	bulkDataCacheKey      = "hmd_bulk_data"
	bulkTimestampCacheKey = "hmd_bulk_data_ts"
)

// HMD collects bulk demographic/mortality statistics from the Human
// Mortality Database.
type HMD struct {
	Log      *logger.Logger
	Cfg      config.HMDConfig
	Store    Store
	Lake     *datalake.Lake
	Resolver *resolver.Resolver
	Cache    cache.Cache
}

func NewHMD(log *logger.Logger, cfg config.HMDConfig, store Store, lake *datalake.Lake, res *resolver.Resolver, c cache.Cache) *HMD {
	return &HMD{
		Log:      log.With("collector", "hmd"),
		Cfg:      cfg,
		Store:    store,
		Lake:     lake,
		Resolver: res,
		Cache:    c,
	}
}

func (h *HMD) Name() string { return "hmd" }

// Extract logs into the HMD website, downloads the bulk archive, and saves
// it unmodified in the datalake. Returns whether there is new data.
func (h *HMD) Extract(ctx context.Context) (bool, error) {
	username := os.Getenv("HMD_USERNAME")
	password := os.Getenv("HMD_PASSWORD")
	if username == "" {
		return false, fmt.Errorf("please set the HMD_USERNAME environment variable in order to continue")
	}
	if password == "" {
		return false, fmt.Errorf("please set the HMD_PASSWORD environment variable in order to continue")
	}

	source, err := h.Store.GetOrCreateSource(ctx, hmdSourceName, hmdSourceLink)
	if err != nil {
		return false, err
	}

	payload, publishedAt, err := h.getZippedData(ctx, username, password)
	if err != nil {
		return false, err
	}

	has, err := h.Lake.HasAlready(ctx, source, payload)
	if err != nil {
		return false, err
	}
	if has {
		h.Log.Info("bulk payload already stored, no new data", "hash", datalake.HashBytes(payload))
		return false, nil
	}

	rec, err := h.Lake.Store(ctx, source, payload, publishedAt, hmdSourceLink)
	if err != nil {
		return false, err
	}
	h.Log.Info("stored new bulk payload", "path", rec.FilePath, "bytes", len(payload))
	return true, nil
}

// Transform unpacks every unprocessed bulk archive, parses the highest
// resolution ("1x1") tables inside it, and persists the resulting datums.
// Returns the total number of new datums.
func (h *HMD) Transform(ctx context.Context, records []models.RawRecord) (int, error) {
	if records == nil {
		source, err := h.Store.GetSourceByName(ctx, hmdSourceName)
		if err != nil {
			return 0, err
		}
		if source == nil {
			h.Log.Info("source not known yet, nothing to transform")
			return 0, nil
		}
		records, err = h.Store.GetUnprocessedRawRecords(ctx, source.ID)
		if err != nil {
			return 0, err
		}
	}

	total := 0
	for _, rec := range records {
		count, err := h.transformRecord(ctx, &rec)
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

func (h *HMD) transformRecord(ctx context.Context, rec *models.RawRecord) (int, error) {
	payload, err := h.Lake.Read(rec)
	if err != nil {
		return 0, err
	}
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("failed to open bulk archive for record %d: %w", rec.ID, err)
	}

	count := 0
	for _, file := range zr.File {
		// File names carry an "nxm" age/period grouping marker. Only the
		// highest resolution grouping is ingested; coarser groupings of
		// the same data are ignored.
		if !strings.Contains(file.Name, ".txt") || !strings.Contains(file.Name, "1x1") {
			continue
		}

		fileCount, err := h.processTable(ctx, rec, file)
		if err != nil {
			return count, err
		}
		count += fileCount
	}

	// No transaction ties the datum inserts above to this mark. A crash
	// in between leaves the record unprocessed and the rerun re-inserts
	// its datums.
	if err := h.Store.MarkRawRecordProcessed(ctx, rec.ID); err != nil {
		return count, err
	}
	h.Log.Info("processed raw record", "record", rec.ID, "datums", count)
	return count, nil
}

// processTable parses one file out of the archive and bulk-inserts its
// datums. The batch is bounded per file to bound memory.
func (h *HMD) processTable(ctx context.Context, rec *models.RawRecord, file *zip.File) (int, error) {
	f, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open %s in archive: %w", file.Name, err)
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s from archive: %w", file.Name, err)
	}

	parsed, skips := parser.ParseTable(file.Name, string(raw))
	for _, skip := range skips {
		h.Log.Warn("skipped table row", "file", file.Name, "line", skip.Line, "reason", skip.Reason)
	}

	batch := make([]models.Datum, 0, len(parsed))
	for _, p := range parsed {
		seriesID, err := h.Resolver.ResolveSeries(ctx, p.Tags)
		if err != nil {
			return 0, err
		}
		batch = append(batch, models.Datum{
			SeriesID:    seriesID,
			Date:        p.Date,
			Age:         p.Age,
			Value:       p.Value,
			RawRecordID: rec.ID,
		})
	}
	if err := h.Store.InsertData(ctx, batch); err != nil {
		return 0, err
	}

	h.Log.Debug("parsed table", "file", file.Name, "datums", len(batch), "skipped", len(skips))
	return len(batch), nil
}

// getZippedData logs into the HMD website and downloads the zip file
// containing the current state of the dataset, reusing the cached copy
// when one is fresh. Returns the payload and the server's publish
// timestamp for it.
func (h *HMD) getZippedData(ctx context.Context, username, password string) ([]byte, time.Time, error) {
	if payload, ok, err := h.Cache.Get(ctx, bulkDataCacheKey); err != nil {
		return nil, time.Time{}, err
	} else if ok {
		if tsRaw, tsOK, err := h.Cache.Get(ctx, bulkTimestampCacheKey); err == nil && tsOK {
			if ts, err := time.Parse(time.RFC3339, string(tsRaw)); err == nil {
				h.Log.Info("using cached bulk payload", "bytes", len(payload))
				return payload, ts, nil
			}
		}
		// Timestamp key missing or unreadable; fall through to a fresh
		// download rather than invent a publish time.
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: 10 * time.Minute}

	csrf, err := h.fetchLoginToken(ctx, client)
	if err != nil {
		return nil, time.Time{}, err
	}

	form := url.Values{
		"Email":                      {username},
		"Password":                   {password},
		"ReturnURL":                  {hmdSourceLink},
		"__RequestVerificationToken": {csrf},
	}
	loginReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to build login request: %w", err)
	}
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	loginRes, err := client.Do(loginReq)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("login request failed: %w", err)
	}
	io.Copy(io.Discard, loginRes.Body)
	loginRes.Body.Close()
	if loginRes.StatusCode != http.StatusOK {
		return nil, time.Time{}, fmt.Errorf("login failed: status code %d", loginRes.StatusCode)
	}

	h.Log.Info("logged in, downloading bulk archive", "url", h.Cfg.BulkDownloadURL)
	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Cfg.BulkDownloadURL, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to build download request: %w", err)
	}
	dlRes, err := client.Do(dlReq)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("bulk download failed: %w", err)
	}
	defer dlRes.Body.Close()
	if dlRes.StatusCode != http.StatusOK {
		return nil, time.Time{}, fmt.Errorf("bulk download failed: status code %d", dlRes.StatusCode)
	}

	payload, err := io.ReadAll(dlRes.Body)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read bulk download body: %w", err)
	}

	publishedAt := time.Now().UTC()
	if dateHeader := dlRes.Header.Get("Date"); dateHeader != "" {
		if ts, err := http.ParseTime(dateHeader); err == nil {
			publishedAt = ts.UTC()
		}
	}

	if err := h.Cache.Set(ctx, bulkDataCacheKey, payload, h.Cfg.DownloadCacheTTL); err != nil {
		return nil, time.Time{}, err
	}
	if err := h.Cache.Set(ctx, bulkTimestampCacheKey, []byte(publishedAt.Format(time.RFC3339)), h.Cfg.DownloadCacheTTL); err != nil {
		return nil, time.Time{}, err
	}

	return payload, publishedAt, nil
}

// fetchLoginToken requests the login page and scrapes the hidden
// __RequestVerificationToken input out of the form. A missing token is
// fatal: without it the login post cannot succeed.
func (h *HMD) fetchLoginToken(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Cfg.LoginURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build login page request: %w", err)
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get login page: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get login page: status code %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse login page html: %w", err)
	}
	token, ok := doc.Find(`input[name="__RequestVerificationToken"]`).Attr("value")
	if !ok || token == "" {
		return "", fmt.Errorf("could not detect CSRF token inside login page html")
	}
	return token, nil
}
