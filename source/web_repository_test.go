package source

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebRepository(t *testing.T) {
	// Serve a target file, a raw artifact.
	testData := "Target Cell Mosaic\n{\n    a1 a2\n}\n"
	var gotAPIKey string
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Write([]byte(testData))
	}))
	defer testServer.Close()

	repo, err := NewWebRepository(testServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	repo.APIKey = "secret"

	url := repo.GetUrl()
	if url.String() != testServer.URL {
		t.Errorf("expected %q, got %q", testServer.URL, url.String())
	}

	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
	}
	if gotAPIKey != "secret" {
		t.Errorf("expected X-API-Key header, got %q", gotAPIKey)
	}
	if string(repo.GetRawData()) != testData {
		t.Errorf("expected %q, got %q", testData, string(repo.GetRawData()))
	}
}

func TestWebRepositoryDocument(t *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"node_set": "Column"}`))
	}))
	defer testServer.Close()

	repo, err := NewWebRepository(testServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
	}
	nodeSet, ok := repo.GetData("node_set")
	if !ok || nodeSet != "Column" {
		t.Errorf("expected node_set Column, got %v (%v)", nodeSet, ok)
	}
}
