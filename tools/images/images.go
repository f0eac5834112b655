package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mohammad-safakhou/pagesift/config"
	"github.com/mohammad-safakhou/pagesift/internal/helpers"
	"github.com/mohammad-safakhou/pagesift/models"
)

// Extensions by Content-Type for the supported formats.
var extByContentType = map[string]string{
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

var supportedExtensions = map[string]bool{
	".webp": true, ".avif": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
}

var errUnsupportedFormat = errors.New("unsupported image format")

type entry struct {
	once  sync.Once
	asset models.ImageAsset
}

// Acquirer downloads candidate images with per-run deduplication by source
// URL. A second request for a URL already in the table returns the existing
// asset without a new download, including under concurrent access.
type Acquirer struct {
	client     *retryablehttp.Client
	dir        string
	publicBase string
	pause      time.Duration

	mu     sync.Mutex
	assets map[string]*entry

	gateMu   sync.Mutex
	lastDone time.Time

	logger *log.Logger
}

func NewAcquirer(cfg config.ImagesConfig) (*Acquirer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.Timeout
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500, nil
	}
	return &Acquirer{
		client:     client,
		dir:        cfg.Dir,
		publicBase: strings.TrimSuffix(cfg.PublicBase, "/"),
		pause:      cfg.Pause,
		assets:     map[string]*entry{},
		logger:     log.New(log.Writer(), "[IMAGES] ", log.LstdFlags),
	}, nil
}

// Acquire resolves one image URL to an asset. It never fails the caller: a
// download problem yields a failed asset whose public reference is the
// original remote URL.
func (a *Acquirer) Acquire(ctx context.Context, srcURL string) models.ImageAsset {
	key := srcURL
	if canonical, err := helpers.CanonicalURL(srcURL); err == nil {
		key = canonical
	}

	a.mu.Lock()
	e, ok := a.assets[key]
	if !ok {
		e = &entry{}
		a.assets[key] = e
	}
	a.mu.Unlock()

	e.once.Do(func() {
		asset, err := a.download(ctx, srcURL)
		if err != nil {
			a.logger.Printf("image download failed %s: %v", srcURL, err)
			asset = models.ImageAsset{SourceURL: srcURL, PublicRef: srcURL, Status: models.ImageFailed}
		}
		e.asset = asset
	})
	return e.asset
}

// Assets returns a snapshot of the run's asset table.
func (a *Acquirer) Assets() []models.ImageAsset {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.ImageAsset, 0, len(a.assets))
	for _, e := range a.assets {
		out = append(out, e.asset)
	}
	return out
}

func (a *Acquirer) download(ctx context.Context, srcURL string) (models.ImageAsset, error) {
	// Space consecutive downloads out to avoid hammering a single origin.
	if err := a.waitTurn(ctx); err != nil {
		return models.ImageAsset{}, err
	}

	safe := helpers.SanitizeURL(srcURL)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, safe, nil)
	if err != nil {
		return models.ImageAsset{}, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return models.ImageAsset{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.ImageAsset{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	ext, err := pickExtension(resp.Header.Get("Content-Type"), safe)
	if err != nil {
		return models.ImageAsset{}, err
	}
	filename := localName(safe, ext)
	dest := filepath.Join(a.dir, filename)

	tmp, err := os.CreateTemp(a.dir, ".download-*")
	if err != nil {
		return models.ImageAsset{}, err
	}
	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil || ctx.Err() != nil {
		// Partial downloads are discarded, never left half-written.
		os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = errors.Join(closeErr, ctx.Err())
		}
		return models.ImageAsset{}, copyErr
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return models.ImageAsset{}, err
	}

	return models.ImageAsset{
		SourceURL:   srcURL,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		LocalPath:   dest,
		PublicRef:   a.publicBase + "/" + filename,
		Format:      strings.TrimPrefix(ext, "."),
		Status:      models.ImageDownloaded,
	}, nil
}

func (a *Acquirer) waitTurn(ctx context.Context) error {
	a.gateMu.Lock()
	wait := a.pause - time.Since(a.lastDone)
	a.lastDone = time.Now().Add(maxDuration(wait, 0))
	a.gateMu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func pickExtension(contentType, srcURL string) (string, error) {
	if ct, _, ok := strings.Cut(contentType, ";"); ok || ct != "" {
		if ext, found := extByContentType[strings.TrimSpace(ct)]; found {
			return ext, nil
		}
	}
	if parsed, err := url.Parse(srcURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); supportedExtensions[ext] {
			if ext == ".jpeg" {
				ext = ".jpg"
			}
			return ext, nil
		}
	}
	return "", errUnsupportedFormat
}

// localName derives a stable filename from the URL: an 8-char fingerprint
// prefix keeps distinct URLs with the same basename apart.
func localName(srcURL, ext string) string {
	stem := "image"
	if parsed, err := url.Parse(srcURL); err == nil {
		base := path.Base(parsed.Path)
		if s := strings.TrimSuffix(base, path.Ext(base)); s != "" && s != "." && s != "/" {
			stem = s
		}
	}
	return helpers.URLFingerprint(srcURL) + "_" + stem + ext
}
