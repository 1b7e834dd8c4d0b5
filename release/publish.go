package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

type Options struct {
	// Source is the store to publish: a SQLite file or a directory.
	Source string
	Out    string
	Repo   string
	Tag    string
	Name   string
	Body   string
	Draft  bool
	// Now is used for the default tag and archive name.
	Now time.Time
}

type Result struct {
	Archive     string
	ArchiveSize int64
	Release     *Release
	Asset       *Asset
}

// Publish archives opts.Source and uploads it to a new release. With no tag the
// release is tagged v<YYYYmmdd-HHMMSS>.
func (g *GitHub) Publish(ctx context.Context, opts Options) (*Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	ts := opts.Now.UTC().Format("20060102-150405")

	src, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, err
	}

	out := opts.Out
	if out == "" {
		base := filepath.Base(src)
		out = filepath.Join("dist", fmt.Sprintf("%s-%s.tar.gz", strings.TrimSuffix(base, filepath.Ext(base)), ts))
	}

	repo := opts.Repo
	if repo == "" {
		repo = DetectRepo(ctx)
	}
	if repo == "" {
		return nil, errors.New("could not determine repo: pass --repo owner/repo or set GITHUB_REPOSITORY")
	}
	if g.Token == "" {
		return nil, errors.New("missing GitHub token: pass --token or set GITHUB_TOKEN")
	}

	tag := opts.Tag
	if tag == "" {
		tag = "v" + ts
	}

	g.Logger.Info("Packaging vector store", "source", src, "archive", out)
	size, err := Archive(src, out)
	if err != nil {
		return nil, err
	}

	g.Logger.Info("Creating release", "repo", repo, "tag", tag)
	rel, err := g.CreateRelease(ctx, repo, ReleaseRequest{
		TagName: tag,
		Name:    opts.Name,
		Draft:   opts.Draft,
		Body:    opts.Body,
	})
	if err != nil {
		return nil, err
	}
	if rel.UploadURL == "" {
		return nil, ErrMissingUploadURL
	}

	g.Logger.Info("Uploading asset", "name", filepath.Base(out), "size", humanize.Bytes(uint64(size)))
	asset, err := g.UploadAsset(ctx, rel.UploadURL, out)
	if err != nil {
		return nil, err
	}

	return &Result{
		Archive:     out,
		ArchiveSize: size,
		Release:     rel,
		Asset:       asset,
	}, nil
}
