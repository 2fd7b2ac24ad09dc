// Package spkgfetch acquires sources into the content-addressed cache.
// Files are keyed by URL basename, verified by sha256 before use, and
// quarantined with a timestamp suffix when verification fails.
package spkgfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkgsig"
)

// Fetcher downloads sources with mirror fallback and retry with backoff.
type Fetcher struct {
	cfg    *spkgconf.Config
	client *http.Client
	trust  map[string]string // empty disables signature checks
}

// New creates a fetcher. Trust material is loaded from the keys directory;
// an empty directory disables the optional signature check.
func New(cfg *spkgconf.Config) *Fetcher {
	trust, err := spkgsig.LoadTrust(cfg.Paths.KeysDir())
	if err != nil {
		log.WithError(err).Warn("fetch: cannot load trust material")
		trust = nil
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Minute},
		trust:  trust,
	}
}

// FetchOne ensures the file for url is present and verified in outDir and
// returns its path. A cached file with the right hash causes no network
// activity. A cached file with the wrong hash is quarantined and fetched
// again; a second mismatch aborts.
func (f *Fetcher) FetchOne(ctx context.Context, url, sha256 string, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(outDir, filepath.Base(url))

	mismatches := 0
	if _, err := os.Stat(dest); err == nil {
		got, err := spkgdb.HashFile(dest)
		if err != nil {
			return "", err
		}
		if got == sha256 {
			log.WithField("file", filepath.Base(dest)).Debug("fetch: cache hit")
			return dest, nil
		}
		quarantine(dest)
		mismatches++
	}

	candidates := []string{url}
	for _, m := range f.cfg.Mirrors {
		candidates = append(candidates, m+"/"+filepath.Base(url))
	}

	var lastErr error
	for _, cand := range candidates {
		err := f.downloadWithRetry(ctx, cand, dest)
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("url", cand).Warn("fetch: candidate failed")
			continue
		}

		got, err := spkgdb.HashFile(dest)
		if err != nil {
			return "", err
		}
		if got != sha256 {
			quarantine(dest)
			mismatches++
			lastErr = &HashMismatch{Path: dest, Want: sha256, Got: got}
			if mismatches >= 2 {
				return "", lastErr
			}
			continue
		}

		if err := f.checkSignature(ctx, cand, dest); err != nil {
			return "", err
		}
		return dest, nil
	}

	return "", &FetchExhausted{URL: url, Last: lastErr}
}

func (f *Fetcher) downloadWithRetry(ctx context.Context, url, dest string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(f.cfg.RetryBackoff * float64(time.Second))
	bo.MaxElapsedTime = 0

	op := func() error {
		return f.downloadPart(ctx, url, dest)
	}
	return backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.cfg.RetryCount)), ctx))
}

// downloadPart streams url into dest.part, resuming via HTTP range when the
// server supports it, and renames into place on success.
func (f *Fetcher) downloadPart(ctx context.Context, url, dest string) error {
	part := dest + ".part"

	var offset int64
	if fi, err := os.Stat(part); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
		return backoff.Permanent(fmt.Errorf("http %s for %s", resp.Status, url))
	default:
		return fmt.Errorf("http %s for %s", resp.Status, url)
	}

	out, err := os.OpenFile(part, flags, 0644)
	if err != nil {
		return backoff.Permanent(err)
	}
	_, err = io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// keep the .part for resume
		return err
	}
	return os.Rename(part, dest)
}

// checkSignature fetches url.sig when trust material is configured. A
// missing signature is not an error; a present but invalid one is.
func (f *Fetcher) checkSignature(ctx context.Context, url, dest string) error {
	if len(f.trust) == 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+".sig", nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Debug("fetch: no detached signature")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	sig, err := io.ReadAll(io.LimitReader(resp.Body, spkgsig.SignatureSize))
	if err != nil {
		return err
	}
	sigPath := dest + ".sig"
	if err := os.WriteFile(sigPath, sig, 0644); err != nil {
		return err
	}
	res, err := spkgsig.VerifyFile(dest, sigPath, f.trust)
	if err != nil {
		return fmt.Errorf("signature check failed for %s: %w", dest, err)
	}
	log.WithFields(log.Fields{"file": filepath.Base(dest), "signer": res.Name}).
		Info("fetch: signature verified")
	return nil
}

func quarantine(path string) {
	bad := fmt.Sprintf("%s.bad.%d", path, time.Now().Unix())
	if err := os.Rename(path, bad); err != nil {
		log.WithError(err).Warn("fetch: quarantine failed")
		return
	}
	log.WithField("file", filepath.Base(bad)).Warn("fetch: quarantined corrupt file")
}
