package trigger

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ChangedFiles returns the repository-relative paths that differ between two
// revisions. baseRev and headRev accept anything git rev-parse accepts
// (branch names, tags, SHAs). The result feeds Rules.Evaluate as the event's
// changed paths.
func ChangedFiles(repoPath, baseRev, headRev string) ([]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", repoPath, err)
	}

	baseTree, err := treeAt(repo, baseRev)
	if err != nil {
		return nil, err
	}
	headTree, err := treeAt(repo, headRev)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(baseTree, headTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", baseRev, headRev, err)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			paths = append(paths, name)
		}
	}
	return paths, nil
}

func treeAt(repo *git.Repository, rev string) (*object.Tree, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", rev, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree for %s: %w", hash, err)
	}
	return tree, nil
}
