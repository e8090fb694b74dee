package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/internal/pubsub"
	"github.com/rawblock/dag-consensus/internal/quarantine"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

func newTestRouter(t *testing.T) (*httptest.Server, *consensus.MemStorage) {
	t.Helper()
	storage := consensus.NewMemStorage()
	reg := quarantine.New()
	hub := pubsub.NewHub()
	go hub.Run()

	r := SetupRouter(storage, reg, hub)
	return httptest.NewServer(r), storage
}

func TestHandleHealthReturnsOK(t *testing.T) {
	srv, _ := newTestRouter(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandleGetRecordNotFound(t *testing.T) {
	srv, _ := newTestRouter(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/records/" + dag.ZeroHash.String())
	if err != nil {
		t.Fatalf("GET /records: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleQuarantineRoundTrip(t *testing.T) {
	srv, _ := newTestRouter(t)
	defer srv.Close()

	hash := dag.HashFromHexMust("0000000000000000000000000000000000000000000000000000000000000042")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/quarantine/"+hash.String(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /quarantine: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/quarantine")
	if err != nil {
		t.Fatalf("GET /quarantine: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
