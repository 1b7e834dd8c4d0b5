package release

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// DetectRepo returns the owner/repo to publish to: GITHUB_REPOSITORY when
// set, otherwise the origin remote of the git repository in the working
// directory. It returns "" when neither is available.
func DetectRepo(ctx context.Context) string {
	if repo := os.Getenv("GITHUB_REPOSITORY"); repo != "" {
		return repo
	}

	out, err := exec.CommandContext(ctx, "git", "config", "--get", "remote.origin.url").Output()
	if err != nil {
		return ""
	}

	return NormalizeRemote(strings.TrimSpace(string(out)))
}

// NormalizeRemote turns git@github.com:owner/repo.git and
// https://github.com/owner/repo.git into owner/repo.
func NormalizeRemote(url string) string {
	url = strings.TrimSuffix(url, ".git")

	if rest, ok := strings.CutPrefix(url, "git@github.com:"); ok {
		return rest
	}
	if _, rest, ok := strings.Cut(url, "github.com/"); ok {
		return rest
	}

	return ""
}
