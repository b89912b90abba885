// Package gitops shells out to git to prepare a job's working copy and
// talks to the GitLab API to open the resulting pull request.
package gitops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RepoConfig identifies the target repository and the branch a job's
// changes land on.
type RepoConfig struct {
	Owner      string
	Name       string
	BaseBranch string
	CloneURL   string // https URL without embedded credentials
	Token      string
}

// Workspace is a checked-out, branch-ready working copy for one job.
type Workspace struct {
	Path          string
	FeatureBranch string
}

type Repo struct {
	runner CommandRunner
	dataDir string
}

func NewRepo(runner CommandRunner, dataDir string) *Repo {
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	return &Repo{runner: runner, dataDir: dataDir}
}

// PrepareWorkingCopy clones (or fast-forwards) cfg's repo at BaseBranch and
// creates a feature branch named "auto/<first 8 hex of jobID>".
func (r *Repo) PrepareWorkingCopy(ctx context.Context, cfg RepoConfig, jobID int64) (*Workspace, error) {
	repoPath := filepath.Join(r.dataDir, cfg.Owner+"-"+cfg.Name)
	featureBranch := FeatureBranchName(jobID)

	if isGitDir(repoPath) {
		if err := r.runGit(ctx, repoPath, "fetch", "origin", cfg.BaseBranch); err != nil {
			return nil, fmt.Errorf("fetching base branch: %w", err)
		}
		if err := r.runGit(ctx, repoPath, "checkout", cfg.BaseBranch); err != nil {
			return nil, fmt.Errorf("checking out base branch: %w", err)
		}
		if err := r.runGit(ctx, repoPath, "reset", "--hard", "origin/"+cfg.BaseBranch); err != nil {
			return nil, fmt.Errorf("fast-forwarding base branch: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(repoPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating repo parent dir: %w", err)
		}
		cloneURL, err := EmbedToken(cfg.CloneURL, cfg.Token)
		if err != nil {
			return nil, err
		}
		if err := r.runGit(ctx, "", "clone", "--branch", cfg.BaseBranch, cloneURL, repoPath); err != nil {
			return nil, fmt.Errorf("cloning repository: %w", err)
		}
	}

	if err := r.runGit(ctx, repoPath, "checkout", "-B", featureBranch); err != nil {
		return nil, fmt.Errorf("creating feature branch: %w", err)
	}

	return &Workspace{Path: repoPath, FeatureBranch: featureBranch}, nil
}

// CommitAll stages every change in ws and commits it. An empty diff (no
// staged changes) is a logged no-op, not an error.
func (r *Repo) CommitAll(ctx context.Context, ws *Workspace, message string) error {
	if err := r.runGit(ctx, ws.Path, "add", "-A"); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}

	status, err := r.runner.Run(ctx, Command{Name: "git", Args: []string{"status", "--porcelain"}, Dir: ws.Path})
	if err != nil {
		return fmt.Errorf("checking status: %w", err)
	}
	if strings.TrimSpace(string(status)) == "" {
		return nil
	}

	if err := r.runGit(ctx, ws.Path, "commit", "-m", message); err != nil {
		return fmt.Errorf("committing changes: %w", err)
	}
	return nil
}

// Push pushes the feature branch to origin. The remote URL already carries
// the embedded token from PrepareWorkingCopy's clone step.
func (r *Repo) Push(ctx context.Context, ws *Workspace) error {
	if err := r.runGit(ctx, ws.Path, "push", "-u", "origin", ws.FeatureBranch); err != nil {
		return fmt.Errorf("pushing feature branch: %w", err)
	}
	return nil
}

// FeatureBranchName derives the per-job branch name from the job id's hex
// representation.
func FeatureBranchName(jobID int64) string {
	hex := fmt.Sprintf("%x", jobID)
	if len(hex) < 8 {
		hex = strings.Repeat("0", 8-len(hex)) + hex
	}
	return "auto/" + hex[:8]
}

// runGit shells out to git with GIT_TERMINAL_PROMPT disabled so an auth
// failure surfaces as an error instead of hanging on a prompt. Credentials
// travel via the credential-helper-free embedded-token form of the remote
// URL set at clone time, matching how the CI-token pattern works against
// GitLab.
func (r *Repo) runGit(ctx context.Context, dir string, args ...string) error {
	output, err := r.runner.Run(ctx, Command{
		Name: "git",
		Args: args,
		Dir:  dir,
		Env: []string{
			"GIT_TERMINAL_PROMPT=0",
			"GIT_ASKPASS=",
		},
	})
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(output))
	}
	return nil
}

func isGitDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

// EmbedToken rewrites a plain https clone URL to carry a GitLab access
// token, the simplest auth path that avoids provisioning SSH deploy keys
// per job.
func EmbedToken(cloneURL, token string) (string, error) {
	if token == "" {
		return cloneURL, nil
	}
	if !strings.HasPrefix(cloneURL, "https://") {
		return "", fmt.Errorf("token auth requires an https clone url, got %q", cloneURL)
	}
	return "https://oauth2:" + token + "@" + strings.TrimPrefix(cloneURL, "https://"), nil
}
