package source

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// FileRepository serves a simulation artifact from the local filesystem.
type FileRepository struct {
	sync.RWMutex        // synchronizes access to data during refresh
	Name         string // name of the artifact source
	Path         string // path of the artifact file
	data         map[string]interface{}
	rawData      []byte
}

// NewFileRepository creates a repository over a local artifact file.
func NewFileRepository(name, path string) *FileRepository {
	return &FileRepository{Name: name, Path: path}
}

// GetName returns the name of the artifact source.
func (f *FileRepository) GetName() string {
	return f.Name
}

// GetData returns one decoded entry of a document artifact.
func (f *FileRepository) GetData(key string) (value interface{}, isPresent bool) {
	f.RLock()
	defer f.RUnlock()
	value, isPresent = f.data[key]
	return value, isPresent
}

// GetRawData returns the artifact bytes as last read.
func (f *FileRepository) GetRawData() []byte {
	f.RLock()
	defer f.RUnlock()
	return f.rawData
}

// Refresh re-reads the artifact file. Document artifacts are decoded for
// GetData; BlueConfig text, target and spike files stay raw.
func (f *FileRepository) Refresh() error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		logrus.WithError(err).Debug("error reading artifact file")
		return err
	}

	decoded, isDocument := decodeArtifact(data)
	if !isDocument {
		logrus.Debugf("artifact %s is not a document, keeping raw bytes", f.Name)
	}

	f.Lock()
	f.data = decoded
	f.rawData = data
	f.Unlock()

	return nil
}
