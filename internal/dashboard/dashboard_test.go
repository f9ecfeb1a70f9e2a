package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeSource struct{ status Status }

func (f fakeSource) Status() Status { return f.status }

func TestHealthzReturnsOK(t *testing.T) {
	srv := New(fakeSource{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatusReturnsSourceSnapshot(t *testing.T) {
	want := Status{QueueDepth: 3, WorkersBusy: 2, FoldersPending: 1, LastScan: time.Now().UTC().Truncate(time.Second)}
	srv := New(fakeSource{status: want})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.QueueDepth != want.QueueDepth || got.WorkersBusy != want.WorkersBusy || got.FoldersPending != want.FoldersPending {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSetSourceSwapsLiveStatus(t *testing.T) {
	srv := New(nil)
	srv.SetSource(fakeSource{status: Status{QueueDepth: 7}})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.QueueDepth != 7 {
		t.Fatalf("got %+v, want QueueDepth=7", got)
	}
}
