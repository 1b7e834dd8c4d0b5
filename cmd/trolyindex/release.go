package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mhrlife/troly-index/config"
	"github.com/mhrlife/troly-index/release"
	"github.com/mhrlife/troly-index/vectordb"
)

var (
	releaseSource string
	releaseOut    string
	releaseRepo   string
	releaseTag    string
	releaseName   string
	releaseBody   string
	releaseDraft  bool
	releaseToken  string
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Package the vector store and upload it to a GitHub release",
	RunE:  runRelease,
}

func init() {
	releaseCmd.Flags().StringVar(&releaseSource, "source", "", "store file or directory to archive (default: the configured SQLite store)")
	releaseCmd.Flags().StringVar(&releaseOut, "out", "", "output .tar.gz path (default dist/<store>-<timestamp>.tar.gz)")
	releaseCmd.Flags().StringVar(&releaseRepo, "repo", "", "GitHub repo as owner/repo (auto-detected if omitted)")
	releaseCmd.Flags().StringVar(&releaseTag, "tag", "", "release tag (default v<YYYYmmdd-HHMMSS>)")
	releaseCmd.Flags().StringVar(&releaseName, "name", "", "release name (default: tag)")
	releaseCmd.Flags().StringVar(&releaseBody, "body", "", "release notes")
	releaseCmd.Flags().BoolVar(&releaseDraft, "draft", false, "create the release as a draft")
	releaseCmd.Flags().StringVar(&releaseToken, "token", "", "GitHub token (default GITHUB_TOKEN)")
}

func runRelease(cmd *cobra.Command, args []string) error {
	source := releaseSource
	if source == "" {
		if state.cfg.Store.Backend != config.StoreSQLite {
			return fmt.Errorf("the %s store has no file to publish: pass --source", state.cfg.Store.Backend)
		}
		source = state.cfg.Store.Path
	}

	// The archive must not depend on pages still sitting in the WAL.
	if state.cfg.Store.Backend == config.StoreSQLite && filepath.Clean(source) == filepath.Clean(state.cfg.Store.Path) {
		if err := vectordb.CheckpointSQLite(cmd.Context(), source); err != nil {
			return err
		}
	}

	token := releaseToken
	if token == "" {
		token = state.cfg.Release.GitHubToken
	}
	repo := releaseRepo
	if repo == "" {
		repo = state.cfg.Release.Repository
	}

	gh := release.NewGitHub(token)
	gh.Logger = state.logger

	result, err := gh.Publish(cmd.Context(), release.Options{
		Source: source,
		Out:    releaseOut,
		Repo:   repo,
		Tag:    releaseTag,
		Name:   releaseName,
		Body:   releaseBody,
		Draft:  releaseDraft,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Done.")
	if result.Release.HTMLURL != "" {
		fmt.Fprintf(out, "Release page: %s\n", result.Release.HTMLURL)
	}
	if result.Asset.BrowserDownloadURL != "" {
		fmt.Fprintf(out, "Asset URL: %s\n", result.Asset.BrowserDownloadURL)
	}

	return nil
}
