package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/fullstorydev/emulators/storage/gcsemu"

	"github.com/neurosimlabs/neurodamus/source"
)

const testArtifact = `circuit_target: Column
base_seed: 10
celsius: 34.5
mod_overrides:
  - TTX
  - GluSynapse
layer1:
  population: All
  node_ids:
    - 1
    - 2
    - 3
`

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node_sets.yaml")
	if err := os.WriteFile(path, []byte(testArtifact), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func checkArtifact(t *testing.T, client *Client) {
	t.Helper()

	target, err := client.GetString("circuit_target")
	if err != nil {
		t.Errorf("Error getting circuit_target: %s", err.Error())
	}
	if target != "Column" {
		t.Errorf("Expected circuit_target to be Column, got %s", target)
	}

	seed, err := client.GetInt("base_seed")
	if err != nil {
		t.Errorf("Error getting base_seed: %s", err.Error())
	}
	if seed != 10 {
		t.Errorf("Expected base_seed to be 10, got %d", seed)
	}

	celsius, err := client.GetFloat("celsius")
	if err != nil {
		t.Errorf("Error getting celsius: %s", err.Error())
	}
	if celsius != 34.5 {
		t.Errorf("Expected celsius to be 34.5, got %g", celsius)
	}

	overrides, err := client.GetStrings("mod_overrides")
	if err != nil {
		t.Errorf("Error getting mod_overrides: %s", err.Error())
	}
	if !reflect.DeepEqual(overrides, []string{"TTX", "GluSynapse"}) {
		t.Errorf("Expected mod_overrides [TTX GluSynapse], got %v", overrides)
	}

	type nodeSet struct {
		Population string   `yaml:"population"`
		NodeIDs    []uint64 `yaml:"node_ids"`
	}
	var layer nodeSet
	if err := client.GetEntry("layer1", &layer); err != nil {
		t.Errorf("Error getting layer1: %s", err.Error())
	}
	if layer.Population != "All" {
		t.Errorf("Expected population All, got %s", layer.Population)
	}
	if !reflect.DeepEqual(layer.NodeIDs, []uint64{1, 2, 3}) {
		t.Errorf("Expected node ids [1 2 3], got %v", layer.NodeIDs)
	}

	if _, err := client.GetString("missing"); err == nil {
		t.Error("Expected error for missing entry")
	}
}

func TestNewClientFileRepository(t *testing.T) {
	path := writeArtifact(t)
	repo := source.NewFileRepository("node-sets", path)

	client, err := NewClient(context.Background(), repo, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	checkArtifact(t, client)
}

func TestNewClientGcpStorageRepository(t *testing.T) {
	// start an in-memory Storage test server (for unit tests)
	svr, err := gcsemu.NewServer("127.0.0.1:9024", gcsemu.Options{})
	if err != nil {
		t.Fatalf("Error starting in-memory storage server: %s", err.Error())
	}
	defer svr.Close()
	t.Setenv("STORAGE_EMULATOR_HOST", "http://127.0.0.1:9024")

	ctx := context.Background()
	gcs, err := storage.NewClient(ctx)
	if err != nil {
		t.Fatalf("Error creating storage client: %s", err.Error())
	}

	bucket := gcs.Bucket("circuit-releases")
	if err := bucket.Create(ctx, "test-project", nil); err != nil {
		t.Fatalf("Failed to create bucket: %v", err)
	}

	w := bucket.Object("node_sets.yaml").NewWriter(ctx)
	if _, err := w.Write([]byte(testArtifact)); err != nil {
		t.Fatalf("Failed to upload artifact: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	repo := &source.GcpStorageRepository{
		Name:       "node-sets",
		BucketName: "circuit-releases",
		ObjectName: "node_sets.yaml",
		Client:     gcs,
	}
	client, err := NewClient(ctx, repo, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	checkArtifact(t, client)
}

type countingRepository struct {
	refreshCount int
	shouldError  bool
}

func (r *countingRepository) GetData(_ string) (interface{}, bool) {
	return r.refreshCount, true
}

func (r *countingRepository) GetRawData() []byte {
	return []byte("test")
}

func (r *countingRepository) Refresh() error {
	r.refreshCount++
	if r.shouldError {
		return errors.New("error")
	}
	return nil
}

func (r *countingRepository) GetName() string {
	return "test"
}

func TestNewClientInitialRefreshError(t *testing.T) {
	_, err := NewClient(context.Background(), &countingRepository{shouldError: true}, 1*time.Second)
	if err == nil {
		t.Error("Expected error, got nil")
	}
}

func TestRefreshLoop(t *testing.T) {
	client := &Client{Repository: &countingRepository{}, RefreshInterval: 100 * time.Millisecond}

	var count int
	if err := client.GetEntry("test", &count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("Expected count to be 0, got %d", count)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	refresh(ctx, client)

	if err := client.GetEntry("test", &count); err != nil {
		t.Fatal(err)
	}
	if count < 1 {
		t.Errorf("Expected at least 1 refresh, got %d", count)
	}
}
