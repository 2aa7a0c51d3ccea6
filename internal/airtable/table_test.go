package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/biolinkhq/vcmatch/internal/backoff"

	"go.uber.org/zap"
)

func fastPolicy(attempts uint) backoff.Policy {
	return backoff.Policy{
		Attempts:  attempts,
		Delay:     time.Millisecond,
		MaxDelay:  time.Millisecond,
		MaxJitter: time.Millisecond,
	}
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(zap.NewNop(), "test-key", "appBase").WithRetryPolicy(fastPolicy(1))
	client.APIURL = server.URL
	return client, server
}

func TestListFollowsPagination(t *testing.T) {
	var requests int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if got := r.URL.Query().Get("pageSize"); got != "100" {
			t.Errorf("unexpected page size: %q", got)
		}
		if got := r.URL.Query().Get("filterByFormula"); got != "{Run Match} = TRUE()" {
			t.Errorf("unexpected formula: %q", got)
		}
		if got := r.URL.Query().Get("sort[0][direction]"); got != "desc" {
			t.Errorf("unexpected sort direction: %q", got)
		}

		call := atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		if call == 1 {
			json.NewEncoder(w).Encode(recordsResponse{
				Records: []Record{{ID: "rec1"}, {ID: "rec2"}},
				Offset:  "page2",
			})
			return
		}

		if got := r.URL.Query().Get("offset"); got != "page2" {
			t.Errorf("offset cursor not forwarded: %q", got)
		}
		json.NewEncoder(w).Encode(recordsResponse{Records: []Record{{ID: "rec3"}}})
	}))

	records, err := client.Table("Startup Submissions").List(context.Background(), ListOptions{
		Formula:   "{Run Match} = TRUE()",
		SortField: "Created Time",
		SortDesc:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("got %d records, expected 3", len(records))
	}
	if records[2].ID != "rec3" {
		t.Fatalf("pages out of order: %+v", records)
	}
}

func TestBatchCreateFallsBackToSingleCreates(t *testing.T) {
	var posts int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body recordsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}

		call := atomic.AddInt32(&posts, 1)
		switch call {
		case 1:
			// First chunk of ten succeeds.
			if len(body.Records) != MaxBatchSize {
				t.Errorf("first chunk size = %d, expected %d", len(body.Records), MaxBatchSize)
			}
			json.NewEncoder(w).Encode(recordsResponse{Records: body.Records})
		case 2:
			// Second chunk is rejected wholesale.
			if len(body.Records) != 2 {
				t.Errorf("second chunk size = %d, expected 2", len(body.Records))
			}
			http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
		case 3:
			// First record of the failed chunk retried individually.
			json.NewEncoder(w).Encode(recordsResponse{Records: body.Records})
		default:
			http.Error(w, "unprocessable", http.StatusUnprocessableEntity)
		}
	}))

	fields := make([]map[string]any, 12)
	for i := range fields {
		fields[i] = map[string]any{"Startup Name": "Acme Bio"}
	}

	created, err := client.Table("Matches").BatchCreate(context.Background(), fields)
	if err == nil {
		t.Fatalf("expected an error for the record that could not be written")
	}
	if created != 11 {
		t.Fatalf("created = %d, expected 11", created)
	}
	if atomic.LoadInt32(&posts) != 4 {
		t.Fatalf("posts = %d, expected 4", posts)
	}
}

func TestRetryOnTransientStatus(t *testing.T) {
	var requests int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(Record{ID: "rec1", Fields: map[string]any{}})
	}))
	client.WithRetryPolicy(fastPolicy(3))

	record, err := client.Table("VC Database").Get(context.Background(), "rec1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID != "rec1" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if atomic.LoadInt32(&requests) != 2 {
		t.Fatalf("requests = %d, expected 2", requests)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var requests int32

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "missing", http.StatusNotFound)
	}))
	client.WithRetryPolicy(fastPolicy(3))

	if _, err := client.Table("VC Database").Get(context.Background(), "recMissing"); err == nil {
		t.Fatalf("expected error for 404")
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Fatalf("requests = %d, expected 1 (no retry on terminal status)", requests)
	}
}

func TestUpdateRequiresID(t *testing.T) {
	client := New(zap.NewNop(), "test-key", "appBase")
	if err := client.Table("VC Database").Update(context.Background(), "", nil); err == nil {
		t.Fatalf("expected error for empty record id")
	}
}
