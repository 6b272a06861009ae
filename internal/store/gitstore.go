package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/config"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/transport"
	"github.com/go-git/go-git/v6/plumbing/transport/http"
	log "github.com/sirupsen/logrus"
	sdkauth "github.com/yschimke/oksocial/sdk/auth"
)

// gcInterval defines minimum time between garbage collection runs.
const gcInterval = 5 * time.Minute

// GitTokenStore keeps the credentials document inside a git working tree and
// commits every change. With a remote configured each commit is force pushed;
// history is squashed to one commit so replaced tokens do not linger.
type GitTokenStore struct {
	mu       sync.Mutex
	files    *sdkauth.FileTokenStore
	repoDir  string
	remote   string
	username string
	password string
	lastGC   time.Time
	ready    bool
}

// NewGitTokenStore creates a store whose working tree lives in repoDir. remote may be empty.
func NewGitTokenStore(repoDir, remote, username, password string) *GitTokenStore {
	if abs, err := filepath.Abs(strings.TrimSpace(repoDir)); err == nil {
		repoDir = abs
	}
	return &GitTokenStore{
		files:    sdkauth.NewFileTokenStore(repoDir),
		repoDir:  repoDir,
		remote:   strings.TrimSpace(remote),
		username: username,
		password: password,
	}
}

func (s *GitTokenStore) Kind() string { return "git" }

// RepoDir returns the working tree path.
func (s *GitTokenStore) RepoDir() string {
	return s.repoDir
}

// EnsureRepository prepares the local git working tree by cloning, opening or
// initialising the repository.
func (s *GitTokenStore) EnsureRepository() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked()
}

func (s *GitTokenStore) ensureLocked() error {
	if s.ready {
		return nil
	}
	if s.repoDir == "" {
		return fmt.Errorf("git token store: repository directory not configured")
	}
	gitDir := filepath.Join(s.repoDir, ".git")
	authMethod := s.gitAuth()
	if _, err := os.Stat(gitDir); errors.Is(err, fs.ErrNotExist) {
		if errMk := os.MkdirAll(s.repoDir, 0o700); errMk != nil {
			return fmt.Errorf("git token store: create repo dir: %w", errMk)
		}
		if s.remote == "" {
			if _, errInit := git.PlainInit(s.repoDir, false); errInit != nil {
				return fmt.Errorf("git token store: init repo: %w", errInit)
			}
		} else if _, errClone := git.PlainClone(s.repoDir, &git.CloneOptions{Auth: authMethod, URL: s.remote}); errClone != nil {
			if !errors.Is(errClone, transport.ErrEmptyRemoteRepository) {
				return fmt.Errorf("git token store: clone remote: %w", errClone)
			}
			_ = os.RemoveAll(gitDir)
			repo, errInit := git.PlainInit(s.repoDir, false)
			if errInit != nil {
				return fmt.Errorf("git token store: init empty repo: %w", errInit)
			}
			if _, errCreate := repo.CreateRemote(&config.RemoteConfig{
				Name: "origin",
				URLs: []string{s.remote},
			}); errCreate != nil && !errors.Is(errCreate, git.ErrRemoteExists) {
				return fmt.Errorf("git token store: configure remote: %w", errCreate)
			}
		}
	} else if err != nil {
		return fmt.Errorf("git token store: stat repo: %w", err)
	} else if s.remote != "" {
		repo, errOpen := git.PlainOpen(s.repoDir)
		if errOpen != nil {
			return fmt.Errorf("git token store: open repo: %w", errOpen)
		}
		worktree, errWorktree := repo.Worktree()
		if errWorktree != nil {
			return fmt.Errorf("git token store: worktree: %w", errWorktree)
		}
		if errPull := worktree.Pull(&git.PullOptions{Auth: authMethod, RemoteName: "origin"}); errPull != nil {
			switch {
			case errors.Is(errPull, git.NoErrAlreadyUpToDate),
				errors.Is(errPull, git.ErrUnstagedChanges),
				errors.Is(errPull, git.ErrNonFastForwardUpdate):
				// Local state wins.
			case errors.Is(errPull, transport.ErrAuthenticationRequired),
				errors.Is(errPull, plumbing.ErrReferenceNotFound),
				errors.Is(errPull, transport.ErrEmptyRemoteRepository):
				log.Debugf("git token store: skipping pull: %v", errPull)
			default:
				return fmt.Errorf("git token store: pull: %w", errPull)
			}
		}
	}
	s.ready = true
	return nil
}

func (s *GitTokenStore) Read(ctx context.Context, key string) (string, bool, error) {
	if err := s.EnsureRepository(); err != nil {
		return "", false, err
	}
	return s.files.Read(ctx, key)
}

func (s *GitTokenStore) Write(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(); err != nil {
		return err
	}
	if err := s.files.Write(ctx, key, value); err != nil {
		return err
	}
	return s.commitAndPushLocked(fmt.Sprintf("Update %s credentials", key), sdkauth.CredentialsFileName)
}

func (s *GitTokenStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(); err != nil {
		return err
	}
	if err := s.files.Remove(ctx, key); err != nil {
		return err
	}
	if _, err := os.Stat(s.files.Path()); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.commitAndPushLocked(fmt.Sprintf("Remove %s credentials", key), sdkauth.CredentialsFileName)
}

func (s *GitTokenStore) List(ctx context.Context) ([]string, error) {
	if err := s.EnsureRepository(); err != nil {
		return nil, err
	}
	return s.files.List(ctx)
}

func (s *GitTokenStore) gitAuth() transport.AuthMethod {
	if s.username == "" && s.password == "" {
		return nil
	}
	user := s.username
	if user == "" {
		user = "git"
	}
	return &http.BasicAuth{Username: user, Password: s.password}
}

func (s *GitTokenStore) commitAndPushLocked(message string, relPaths ...string) error {
	repo, err := git.PlainOpen(s.repoDir)
	if err != nil {
		return fmt.Errorf("git token store: open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("git token store: worktree: %w", err)
	}
	for _, rel := range relPaths {
		if _, err = worktree.Add(rel); err != nil {
			return fmt.Errorf("git token store: add %s: %w", rel, err)
		}
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("git token store: status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	signature := &object.Signature{
		Name:  "oksocial",
		Email: "oksocial@local",
		When:  time.Now(),
	}
	commitHash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}
		return fmt.Errorf("git token store: commit: %w", err)
	}
	headRef, errHead := repo.Head()
	if errHead != nil {
		if !errors.Is(errHead, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("git token store: get head: %w", errHead)
		}
	} else if errRewrite := rewriteHeadAsSingleCommit(repo, headRef.Name(), commitHash, message, signature); errRewrite != nil {
		return errRewrite
	}
	s.maybeRunGC(repo)
	if s.remote == "" {
		return nil
	}
	if err = repo.Push(&git.PushOptions{Auth: s.gitAuth(), Force: true}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("git token store: push: %w", err)
	}
	return nil
}

// rewriteHeadAsSingleCommit replaces the branch tip with a parentless copy of commitHash.
func rewriteHeadAsSingleCommit(repo *git.Repository, branch plumbing.ReferenceName, commitHash plumbing.Hash, message string, signature *object.Signature) error {
	commitObj, err := repo.CommitObject(commitHash)
	if err != nil {
		return fmt.Errorf("git token store: inspect head commit: %w", err)
	}
	squashed := &object.Commit{
		Author:       *signature,
		Committer:    *signature,
		Message:      message,
		TreeHash:     commitObj.TreeHash,
		ParentHashes: nil,
		Encoding:     commitObj.Encoding,
		ExtraHeaders: commitObj.ExtraHeaders,
	}
	mem := &plumbing.MemoryObject{}
	mem.SetType(plumbing.CommitObject)
	if err := squashed.Encode(mem); err != nil {
		return fmt.Errorf("git token store: encode squashed commit: %w", err)
	}
	newHash, err := repo.Storer.SetEncodedObject(mem)
	if err != nil {
		return fmt.Errorf("git token store: write squashed commit: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, newHash)); err != nil {
		return fmt.Errorf("git token store: update branch reference: %w", err)
	}
	return nil
}

func (s *GitTokenStore) maybeRunGC(repo *git.Repository) {
	now := time.Now()
	if now.Sub(s.lastGC) < gcInterval {
		return
	}
	s.lastGC = now

	pruneOpts := git.PruneOptions{
		OnlyObjectsOlderThan: now,
		Handler:              repo.DeleteObject,
	}
	if err := repo.Prune(pruneOpts); err != nil && !errors.Is(err, git.ErrLooseObjectsNotSupported) {
		return
	}
	_ = repo.RepackObjects(&git.RepackConfig{})
}
