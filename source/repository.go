// Package source fetches simulation artifacts from pluggable locations:
// local files, git repositories, S3 and GCS buckets, and HTTP endpoints.
// Artifacts are the files a simulation setup needs next to its main config:
// BlueConfig or SONATA configs, node sets, target files and replay spike
// data.
package source

import (
	"gopkg.in/yaml.v3"
)

// Repository is a named artifact location. GetData serves decoded entries
// when the artifact is a YAML/JSON document; raw artifacts (BlueConfig text,
// target files, spike data) are available through GetRawData only.
type Repository interface {
	// GetName returns the name of the artifact source.
	GetName() string
	// GetData returns one decoded entry of a document artifact.
	GetData(key string) (value interface{}, isPresent bool)
	// GetRawData returns the artifact bytes as last fetched.
	GetRawData() []byte
	// Refresh fetches the artifact again.
	Refresh() error
}

// decodeArtifact decodes document artifacts into a map. Non-document
// artifacts are kept raw: a nil map and false are returned, not an error.
func decodeArtifact(data []byte) (map[string]interface{}, bool) {
	var decoded map[string]interface{}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}
