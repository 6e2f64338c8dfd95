package source

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
)

// GcpStorageRepository serves a simulation artifact stored in a GCS bucket.
// STORAGE_EMULATOR_HOST is honoured by the client, which the tests use.
type GcpStorageRepository struct {
	sync.RWMutex          // synchronizes access to data during refresh
	Name           string // name of the artifact source
	BucketName     string // GCS bucket holding the artifact
	ObjectName     string // object name of the artifact
	Client         *storage.Client
	data           map[string]interface{}
	rawData        []byte
	clientOnce     sync.Once
	clientInitErr  error
}

// Refresh fetches the artifact from the bucket. Document artifacts are
// decoded for GetData; other artifacts stay raw.
func (g *GcpStorageRepository) Refresh() error {
	ctx := context.Background()

	// Lazy client setup unless one was pre-configured.
	if g.Client == nil {
		g.clientOnce.Do(func() {
			g.Client, g.clientInitErr = storage.NewClient(ctx)
		})
		if g.clientInitErr != nil {
			return g.clientInitErr
		}
	}

	// Network I/O happens outside the lock.
	bucket := g.Client.Bucket(g.BucketName)
	obj := bucket.Object(g.ObjectName)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return err
	}
	defer reader.Close()

	fileContent, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	decoded, _ := decodeArtifact(fileContent)

	// Only lock for atomic data swap
	g.Lock()
	g.data = decoded
	g.rawData = fileContent
	g.Unlock()

	return nil
}

// GetName returns the name of the artifact source.
func (g *GcpStorageRepository) GetName() string {
	return g.Name
}

// GetData returns one decoded entry of a document artifact.
func (g *GcpStorageRepository) GetData(key string) (value interface{}, isPresent bool) {
	g.RLock()
	defer g.RUnlock()
	value, isPresent = g.data[key]
	return value, isPresent
}

// GetRawData returns the artifact bytes as last fetched.
func (g *GcpStorageRepository) GetRawData() []byte {
	g.RLock()
	defer g.RUnlock()
	return g.rawData
}
