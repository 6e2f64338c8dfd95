package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neurosimlabs/neurodamus/server"
	"github.com/neurosimlabs/neurodamus/source"
)

var (
	serveAddr    string
	serveAuthKey string
	serveRefresh time.Duration
	serveRanks   int
	serveFiles   []string
	serveWebs    []string
	serveGcs     []string
	serveS3      []string
)

// serve publishes configuration artifacts over HTTP. Each repository flag
// takes name=location and registers the artifact under /{name}.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve configuration artifacts and resolved plans over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := buildRepositories()
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			return fmt.Errorf("at least one repository is required")
		}

		srv := server.NewServer(context.Background(), repos, serveRefresh)
		srv.AuthKey = serveAuthKey
		srv.Ranks = serveRanks
		defer srv.Stop()
		return srv.Start(serveAddr)
	},
}

func buildRepositories() ([]source.Repository, error) {
	var repos []source.Repository
	for _, spec := range serveFiles {
		name, path, err := splitSpec(spec)
		if err != nil {
			return nil, err
		}
		repos = append(repos, source.NewFileRepository(name, path))
	}
	for _, spec := range serveWebs {
		name, rawURL, err := splitSpec(spec)
		if err != nil {
			return nil, err
		}
		repo, err := source.NewWebRepository(rawURL)
		if err != nil {
			return nil, err
		}
		repo.Name = name
		repos = append(repos, repo)
	}
	for _, spec := range serveGcs {
		name, location, err := splitSpec(spec)
		if err != nil {
			return nil, err
		}
		bucket, object, err := splitLocation(location)
		if err != nil {
			return nil, err
		}
		repos = append(repos, &source.GcpStorageRepository{
			Name:       name,
			BucketName: bucket,
			ObjectName: object,
		})
	}
	for _, spec := range serveS3 {
		name, location, err := splitSpec(spec)
		if err != nil {
			return nil, err
		}
		bucket, object, err := splitLocation(location)
		if err != nil {
			return nil, err
		}
		repos = append(repos, &source.AwsS3Repository{
			Name:       name,
			BucketName: bucket,
			ObjectName: object,
		})
	}
	return repos, nil
}

func splitSpec(spec string) (name, value string, err error) {
	i := strings.Index(spec, "=")
	if i <= 0 || i == len(spec)-1 {
		return "", "", fmt.Errorf("invalid repository spec %q, want name=location", spec)
	}
	return spec[:i], spec[i+1:], nil
}

func splitLocation(location string) (bucket, object string, err error) {
	i := strings.Index(location, "/")
	if i <= 0 || i == len(location)-1 {
		return "", "", fmt.Errorf("invalid object location %q, want bucket/object", location)
	}
	return location[:i], location[i+1:], nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveAuthKey, "auth-key", "", "require this X-API-KEY header on artifact requests")
	serveCmd.Flags().DurationVar(&serveRefresh, "refresh", 30*time.Second, "artifact refresh interval")
	serveCmd.Flags().IntVar(&serveRanks, "ranks", 1, "number of ranks used when resolving plans")
	serveCmd.Flags().StringArrayVar(&serveFiles, "file", nil, "file repository, name=path")
	serveCmd.Flags().StringArrayVar(&serveWebs, "web", nil, "web repository, name=url")
	serveCmd.Flags().StringArrayVar(&serveGcs, "gcs", nil, "GCS repository, name=bucket/object")
	serveCmd.Flags().StringArrayVar(&serveS3, "s3", nil, "S3 repository, name=bucket/object")
	rootCmd.AddCommand(serveCmd)
}
