package spkgfetch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Request is one entry of a batch fetch.
type Request struct {
	URL    string
	SHA256 string
}

// FetchList fetches all requests into outDir, at most MaxFetches in
// flight. The returned paths are in request order.
func (f *Fetcher) FetchList(ctx context.Context, reqs []Request, outDir string) ([]string, error) {
	paths := make([]string, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxFetches)

	for i, r := range reqs {
		g.Go(func() error {
			p, err := f.FetchOne(ctx, r.URL, r.SHA256, outDir)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// ParseListFile reads a batch list: one "url sha256" pair per line, blank
// lines and #-comments ignored.
func ParseListFile(path string) ([]Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reqs []Request
	s := bufio.NewScanner(f)
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"url sha256\"", path, line)
		}
		reqs = append(reqs, Request{URL: fields[0], SHA256: fields[1]})
	}
	return reqs, s.Err()
}
