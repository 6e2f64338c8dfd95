package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AwsS3Repository serves a simulation artifact stored in an S3 bucket.
// Circuit releases are typically synced to object storage by the build
// pipeline; this fetches one artifact of such a release.
type AwsS3Repository struct {
	sync.RWMutex        // synchronizes access to data during refresh
	Name         string // name of the artifact source
	BucketName   string // S3 bucket holding the artifact
	ObjectName   string // object key of the artifact
	// AccessKeyID/SecretAccessKey configure static credentials; left empty
	// the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	Client          *s3.Client // S3 client, lazily created when nil
	data            map[string]interface{}
	rawData         []byte
	clientOnce      sync.Once
	clientInitErr   error
}

// Refresh fetches the artifact from the bucket. Document artifacts are
// decoded for GetData; other artifacts stay raw.
func (a *AwsS3Repository) Refresh() error {
	ctx := context.Background()

	// Lazy client setup unless one was pre-configured.
	if a.Client == nil {
		a.clientOnce.Do(func() {
			var opts []func(*config.LoadOptions) error
			if a.AccessKeyID != "" {
				opts = append(opts, config.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider(a.AccessKeyID, a.SecretAccessKey, "")))
			}
			cfg, err := config.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			a.Client = s3.NewFromConfig(cfg)
		})
		if a.clientInitErr != nil {
			return a.clientInitErr
		}
	}

	// Network I/O happens outside the lock.
	result, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(a.ObjectName),
	})
	if err != nil {
		return err
	}
	defer result.Body.Close()

	fileContent, err := io.ReadAll(result.Body)
	if err != nil {
		return err
	}

	decoded, _ := decodeArtifact(fileContent)

	// Only lock for atomic data swap
	a.Lock()
	a.data = decoded
	a.rawData = fileContent
	a.Unlock()

	return nil
}

// GetName returns the name of the artifact source.
func (a *AwsS3Repository) GetName() string {
	return a.Name
}

// GetData returns one decoded entry of a document artifact.
func (a *AwsS3Repository) GetData(key string) (value interface{}, isPresent bool) {
	a.RLock()
	defer a.RUnlock()
	value, isPresent = a.data[key]
	return value, isPresent
}

// GetRawData returns the artifact bytes as last fetched.
func (a *AwsS3Repository) GetRawData() []byte {
	a.RLock()
	defer a.RUnlock()
	return a.rawData
}
