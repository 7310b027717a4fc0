package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/testutil"
)

func newTestSubgraph(t *testing.T, url string, pageSize int) *SubgraphCatalog {
	t.Helper()
	c, err := NewSubgraphCatalog(SubgraphConfig{
		Endpoints:       map[int64]string{1: url},
		PageSize:        pageSize,
		MaxRetries:      2,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      time.Millisecond,
		RateLimitPerSec: 1000,
		Logger:          testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSubgraphCatalog() failed: %v", err)
	}
	return c
}

func farmJSON(n int) string {
	return fmt.Sprintf(`{"id":%q,"rewardLocker":%q,"pools":[{"pid":"0","pool":%q,"rewardTokens":[%q]}]}`,
		testutil.Addr(uint64(n)).Hex(), testutil.Addr(800).Hex(), testutil.Addr(uint64(n)+500).Hex(), testutil.Addr(900).Hex())
}

func TestSubgraphCatalog_Farms(t *testing.T) {
	var gotQuery graphQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotQuery); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprintf(w, `{"data":{"farms":[%s,%s]}}`, farmJSON(1), farmJSON(2))
	}))
	defer server.Close()

	c := newTestSubgraph(t, server.URL, 10)
	farms, err := c.Farms(context.Background(), 1)
	if err != nil {
		t.Fatalf("Farms() failed: %v", err)
	}
	if len(farms) != 2 {
		t.Fatalf("got %d farms, want 2", len(farms))
	}
	if farms[1].Address != testutil.Addr(2) {
		t.Errorf("farm[1] = %s, want %s", farms[1].Address.Hex(), testutil.Addr(2).Hex())
	}
	if farms[0].Pools[0].PoolAddress != testutil.Addr(501) {
		t.Errorf("pool = %s", farms[0].Pools[0].PoolAddress.Hex())
	}
	if !strings.Contains(gotQuery.Query, "farms(") {
		t.Errorf("unexpected query %q", gotQuery.Query)
	}
}

func TestSubgraphCatalog_Paginates(t *testing.T) {
	var calls atomic.Int32
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		cursors = append(cursors, fmt.Sprint(req.Variables["lastID"]))

		switch calls.Add(1) {
		case 1:
			fmt.Fprintf(w, `{"data":{"farms":[%s,%s]}}`, farmJSON(1), farmJSON(2))
		default:
			fmt.Fprintf(w, `{"data":{"farms":[%s]}}`, farmJSON(3))
		}
	}))
	defer server.Close()

	c := newTestSubgraph(t, server.URL, 2)
	farms, err := c.Farms(context.Background(), 1)
	if err != nil {
		t.Fatalf("Farms() failed: %v", err)
	}
	if len(farms) != 3 {
		t.Fatalf("got %d farms, want 3", len(farms))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(cursors) != 2 || cursors[0] != "" || cursors[1] != testutil.Addr(2).Hex() {
		t.Errorf("cursors = %v", cursors)
	}
}

func TestSubgraphCatalog_RetryBehavior(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		wantCalls int32
		wantErr   bool
	}{
		{name: "server error then success", responses: []int{500, 200}, wantCalls: 2},
		{name: "rate limited then success", responses: []int{429, 200}, wantCalls: 2},
		{name: "client error is not retried", responses: []int{400}, wantCalls: 1, wantErr: true},
		{name: "retries exhausted", responses: []int{502, 502, 502}, wantCalls: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1)) - 1
				status := tt.responses[len(tt.responses)-1]
				if n < len(tt.responses) {
					status = tt.responses[n]
				}
				w.WriteHeader(status)
				if status == http.StatusOK {
					fmt.Fprintf(w, `{"data":{"farms":[%s]}}`, farmJSON(1))
				}
			}))
			defer server.Close()

			c := newTestSubgraph(t, server.URL, 10)
			_, err := c.Farms(context.Background(), 1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Farms() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestSubgraphCatalog_GraphQLErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"errors":[{"message":"indexing_error"}]}`)
	}))
	defer server.Close()

	c := newTestSubgraph(t, server.URL, 10)
	_, err := c.Farms(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "indexing_error") {
		t.Fatalf("Farms() error = %v, want graphql error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSubgraphCatalog_InvalidFarm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"farms":[{"id":"nope","pools":[]}]}}`)
	}))
	defer server.Close()

	c := newTestSubgraph(t, server.URL, 10)
	if _, err := c.Farms(context.Background(), 1); err == nil {
		t.Fatal("expected error for invalid farm address")
	}
}

func TestSubgraphCatalog_UnknownChain(t *testing.T) {
	c := newTestSubgraph(t, "http://127.0.0.1:0", 10)
	_, err := c.Farms(context.Background(), 56)
	if !errors.Is(err, blockchain.ErrUnknownChain) {
		t.Errorf("Farms() error = %v, want ErrUnknownChain", err)
	}
}

func TestNewSubgraphCatalog_RequiresEndpoint(t *testing.T) {
	if _, err := NewSubgraphCatalog(SubgraphConfig{}); err == nil {
		t.Error("expected error without endpoints")
	}
}
