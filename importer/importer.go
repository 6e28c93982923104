// Package importer loads a GENCODE release into a record store, downloading and caching it
// on first use.
package importer

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	llama "github.com/gamazeps/encode-llama"
	"github.com/gamazeps/encode-llama/gtf"
	"github.com/rs/zerolog/log"
)

// URLTemplate is the GENCODE human annotation download, formatted with the release twice.
const URLTemplate = "https://ftp.ebi.ac.uk/pub/databases/gencode/Gencode_human/release_%d/gencode.v%d.annotation.gtf.gz"

// Options configures Load.
type Options struct {
	Version int
	DataDir string
	// URL overrides the download location of the gzipped GTF file.
	URL string
	// Refresh downloads the release even when it is cached.
	Refresh bool
	Client  *http.Client
}

// ReleaseURL returns the download URL of a release.
func ReleaseURL(version int) string {
	return fmt.Sprintf(URLTemplate, version, version)
}

// Load returns the records of a GENCODE release from the cache, importing it first when the
// cache does not hold that release.
func Load(ctx context.Context, opts Options) (*llama.RecordStore, error) {
	if opts.Version <= 0 {
		return nil, fmt.Errorf("importer: invalid GENCODE version %d", opts.Version)
	}
	version := strconv.Itoa(opts.Version)
	path := CachePath(opts.DataDir, opts.Version)

	cache, err := OpenCache(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	if !opts.Refresh {
		cached, err := cache.Version(ctx)
		if err != nil {
			return nil, err
		}
		if cached == version {
			start := time.Now()
			records, err := cache.Records(ctx)
			if err != nil {
				return nil, err
			}
			log.Debug().Str("path", path).Int("records", len(records)).Dur("took", time.Since(start)).Msg("importer: loaded from cache")
			return llama.NewRecordStore(version, records), nil
		}
	}

	url := opts.URL
	if url == "" {
		url = ReleaseURL(opts.Version)
	}
	records, err := Download(ctx, opts.Client, url)
	if err != nil {
		return nil, err
	}
	if err := cache.Save(ctx, version, records); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("records", len(records)).Msg("importer: cached release")
	return llama.NewRecordStore(version, records), nil
}

// Download fetches and parses a gzipped GTF file.
func Download(ctx context.Context, client *http.Client, url string) ([]llama.Record, error) {
	if client == nil {
		client = &http.Client{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("importer: create request: %w", err)
	}

	log.Info().Str("url", url).Msg("importer: downloading annotation")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("importer: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("importer: download %s: status %d: %s", url, resp.StatusCode, body)
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("importer: gunzip: %w", err)
	}
	defer zr.Close()

	records, err := gtf.Parse(zr)
	if err != nil {
		return nil, fmt.Errorf("importer: parse %s: %w", url, err)
	}
	return records, nil
}
