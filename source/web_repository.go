package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
)

// WebRepository serves a simulation artifact fetched from an HTTP endpoint,
// e.g. another instance of this service or a static artifact host.
type WebRepository struct {
	sync.RWMutex          // synchronizes access to data during refresh
	Name         string   // name of the artifact source
	URL          *url.URL // endpoint serving the artifact
	APIKey       string   // optional X-API-Key header value
	data         map[string]interface{}
	rawData      []byte
}

// NewWebRepository creates a repository over an HTTP endpoint.
func NewWebRepository(rawURL string) (*WebRepository, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &WebRepository{Name: u.Host, URL: u}, nil
}

// GetUrl returns the endpoint URL.
func (w *WebRepository) GetUrl() *url.URL {
	return w.URL
}

// GetName returns the name of the artifact source.
func (w *WebRepository) GetName() string {
	return w.Name
}

// GetData returns one decoded entry of a document artifact.
func (w *WebRepository) GetData(key string) (value interface{}, isPresent bool) {
	w.RLock()
	defer w.RUnlock()
	value, isPresent = w.data[key]
	return value, isPresent
}

// GetRawData returns the artifact bytes as last fetched.
func (w *WebRepository) GetRawData() []byte {
	w.RLock()
	defer w.RUnlock()
	return w.rawData
}

// Refresh fetches the artifact from the endpoint. Document artifacts are
// decoded for GetData; other artifacts stay raw.
func (w *WebRepository) Refresh() error {
	ctx := context.Background()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL.String(), nil)
	if err != nil {
		logrus.Debug("error creating request")
		return err
	}

	if w.APIKey != "" {
		request.Header.Set("X-API-Key", w.APIKey)
	}

	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		logrus.Debug("error doing request")
		return err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Debug("error reading artifact")
		return err
	}

	decoded, _ := decodeArtifact(data)

	// Only lock for atomic data swap
	w.Lock()
	w.data = decoded
	w.rawData = data
	w.Unlock()

	return nil
}
