package gitpush

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Identity is the author used for deploy commits.
type Identity struct {
	Name  string
	Email string
}

// LoadIdentity reads user.name and user.email from the global git
// configuration. GIT_AUTHOR_NAME and GIT_AUTHOR_EMAIL take precedence.
func LoadIdentity() (*Identity, error) {
	cfg, err := gitconfig.LoadConfig(gitconfig.GlobalScope)
	if err != nil {
		return nil, fmt.Errorf("loading git config: %w", err)
	}
	id := &Identity{Name: cfg.User.Name, Email: cfg.User.Email}
	if v := os.Getenv("GIT_AUTHOR_NAME"); v != "" {
		id.Name = v
	}
	if v := os.Getenv("GIT_AUTHOR_EMAIL"); v != "" {
		id.Email = v
	}
	return id, nil
}

// ErrUntagged is returned by HeadTag when no tag points at HEAD.
var ErrUntagged = errors.New("HEAD is not tagged; require_git_tag is set for this target")

func openProject(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening project repository: %w", err)
	}
	return repo, nil
}

// HeadTag returns the name of a tag pointing at the project's HEAD commit.
// Lightweight and annotated tags both count.
func HeadTag(dir string) (string, error) {
	repo, err := openProject(dir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}

	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("listing tags: %w", err)
	}
	var found string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tag, err := repo.TagObject(ref.Hash()); err == nil {
			c, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = c.Hash
		}
		if target == head.Hash() {
			found = ref.Name().Short()
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", ErrUntagged
	}
	return found, nil
}

// HeadCommit returns the abbreviated HEAD hash of the project repository.
func HeadCommit(dir string) (string, error) {
	repo, err := openProject(dir)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String()[:7], nil
}
