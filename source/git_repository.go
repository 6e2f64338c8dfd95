package source

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"
)

// GitRepository serves a simulation artifact from a git repository, cloned
// in memory and pulled on every refresh. Useful for tracked circuit configs
// and target files that evolve with the project.
type GitRepository struct {
	sync.RWMutex                   // synchronizes access to data during refresh
	Name          string           // name of the artifact source
	URL           *url.URL         // git repository URL
	Path          string           // path of the artifact within the repository
	Branch        string           // branch to check out; empty uses the default
	Auth          *http.BasicAuth  // credentials for private repositories
	gitRepository *git.Repository  // in-memory clone
	fs            billy.Filesystem // filesystem backing the clone
	data          map[string]interface{}
	rawData       []byte
}

// GetName returns the name of the artifact source.
func (g *GitRepository) GetName() string {
	return g.Name
}

// GetRawData returns the artifact bytes as last fetched.
func (g *GitRepository) GetRawData() []byte {
	g.RLock()
	defer g.RUnlock()
	return g.rawData
}

// Refresh clones the repository on first use, pulls afterwards, and reads
// the artifact from the in-memory worktree.
func (g *GitRepository) Refresh() error {
	g.Lock()
	defer g.Unlock()

	if g.fs == nil {
		g.fs = memfs.New()
		logrus.Debugf("Cloning %s into memory", g.URL.String())
		r, err := git.CloneContext(context.Background(), memory.NewStorage(), g.fs, &git.CloneOptions{
			URL:  g.URL.String(),
			Auth: g.Auth,
		})
		if err != nil {
			return err
		}

		if g.Branch != "" {
			w, err := r.Worktree()
			if err != nil {
				return err
			}

			err = r.Fetch(&git.FetchOptions{
				RefSpecs: []config.RefSpec{"refs/*:refs/*", "HEAD:refs/heads/HEAD"},
			})
			if err != nil {
				return err
			}

			err = w.Checkout(&git.CheckoutOptions{
				Branch: plumbing.NewBranchReferenceName(g.Branch),
				Force:  true,
			})
			if err != nil {
				return err
			}
		}

		logrus.Debug("Cloned")
		g.gitRepository = r
	} else {
		w, err := g.gitRepository.Worktree()
		if err != nil {
			return err
		}
		logrus.Debug("Pulling")

		pullOptions := &git.PullOptions{
			Auth: g.Auth,
		}
		if g.Branch != "" {
			pullOptions = &git.PullOptions{
				ReferenceName: plumbing.NewBranchReferenceName(g.Branch),
				Force:         true,
				SingleBranch:  true,
				Auth:          g.Auth,
			}
		}

		err = w.PullContext(context.Background(), pullOptions)

		if err != nil && err != git.NoErrAlreadyUpToDate {
			return err
		}
		if err == git.NoErrAlreadyUpToDate {
			logrus.Debug("Already up to date")
		} else {
			logrus.Debug("Pulled")
		}
	}

	file, err := g.fs.Open(g.Path)
	if err != nil {
		logrus.WithError(err).Error("error opening artifact in worktree")
		return err
	}
	defer func(file billy.File) {
		err := file.Close()
		if err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	fileContent, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	decoded, _ := decodeArtifact(fileContent)
	g.data = decoded
	g.rawData = fileContent

	return nil
}

// GetData returns one decoded entry of a document artifact.
func (g *GitRepository) GetData(key string) (value interface{}, isPresent bool) {
	g.RLock()
	defer g.RUnlock()
	value, isPresent = g.data[key]
	return value, isPresent
}
