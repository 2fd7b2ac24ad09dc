package spkgfetch

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgextract"
)

// FetchGit exports ref of the repository at url as a byte-reproducible
// compressed tree archive named <name>-<shortref>.git.tar.<comp> in outDir.
// Returns the archive path and the commit time, which callers use as
// SOURCE_DATE_EPOCH.
func (f *Fetcher) FetchGit(ctx context.Context, url, ref, name, outDir string) (string, int64, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", 0, err
	}

	tmp, err := os.MkdirTemp("", "spkg-git-")
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(tmp)

	log.WithFields(log.Fields{"url": url, "ref": ref}).Info("fetch: cloning")
	repo, err := git.PlainCloneContext(ctx, tmp, false, &git.CloneOptions{
		URL:        url,
		Depth:      1,
		Tags:       git.AllTags,
		NoCheckout: true,
	})
	if err != nil {
		return "", 0, fmt.Errorf("clone %s: %w", url, err)
	}

	h, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		// the ref may be outside the shallow horizon, deepen and retry
		ferr := repo.FetchContext(ctx, &git.FetchOptions{Tags: git.AllTags})
		if ferr != nil && ferr != git.NoErrAlreadyUpToDate {
			return "", 0, fmt.Errorf("resolve %s: %w", ref, err)
		}
		h, err = repo.ResolveRevision(plumbing.Revision(ref))
		if err != nil {
			return "", 0, fmt.Errorf("resolve %s: %w", ref, err)
		}
	}

	commit, err := repo.CommitObject(*h)
	if err != nil {
		return "", 0, err
	}
	epoch := commit.Committer.When.Unix()

	short := h.String()[:12]
	archive := filepath.Join(outDir,
		fmt.Sprintf("%s-%s.git.tar.%s", name, short, spkgextract.DefaultCompression))
	if _, err := os.Stat(archive); err == nil {
		return archive, epoch, nil
	}

	tmpArchive := archive + ".part"
	if err := exportTree(commit, name+"-"+short, tmpArchive); err != nil {
		os.Remove(tmpArchive)
		return "", 0, err
	}
	if err := os.Rename(tmpArchive, archive); err != nil {
		return "", 0, err
	}
	return archive, epoch, nil
}

// exportTree writes the commit tree as a compressed tar with entries in
// sorted path order and all metadata pinned to the commit, so the same ref
// always yields the same bytes.
func exportTree(commit *object.Commit, prefix, out string) error {
	tree, err := commit.Tree()
	if err != nil {
		return err
	}

	var files []*object.File
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	w, err := spkgextract.CreateCompressed(out)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(w)

	for _, f := range files {
		hdr := &tar.Header{
			Name:    prefix + "/" + f.Name,
			Format:  tar.FormatPAX,
			ModTime: commit.Committer.When.UTC(),
		}

		switch f.Mode {
		case filemode.Symlink:
			target, err := readBlob(f)
			if err != nil {
				return err
			}
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = strings.TrimRight(target, "\n")
		case filemode.Executable:
			hdr.Typeflag = tar.TypeReg
			hdr.Mode = 0755
			hdr.Size = f.Size
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Mode = 0644
			hdr.Size = f.Size
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeReg {
			r, err := f.Blob.Reader()
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, r)
			r.Close()
			if err != nil {
				return err
			}
		}
	}

	if err := tw.Close(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func readBlob(f *object.File) (string, error) {
	r, err := f.Blob.Reader()
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	return string(b), err
}
