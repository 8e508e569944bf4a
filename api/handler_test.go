package api_test

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"gavel/api"
	"gavel/auction"
	"gavel/chain"
	"gavel/cryptoutil"
	"gavel/metadata"
	"gavel/store/memstore"

	"github.com/go-kit/log"
)

type testFixture struct {
	server   *httptest.Server
	chain    *chain.TestChain
	service  *auction.CoreService
	metadata []byte
	ref      string
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	doc := []byte(`{"title":"estate clock","description":"mantel clock, runs fast"}`)
	ref := cryptoutil.ContentRef(doc)

	docServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/") == ref {
			w.Write(doc)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(docServer.Close)

	resolver, err := metadata.NewHTTPResolver(docServer.URL)
	if err != nil {
		t.Fatal(err)
	}

	var (
		c       = chain.NewTestChain("gavel-test", 50)
		s       = memstore.NewStore()
		logger  = log.NewNopLogger()
		service = auction.NewCoreService(c, s, logger)
		handler = api.NewHandler(service, metadata.WithRingCache(resolver), logger)
	)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testFixture{
		server:   server,
		chain:    c,
		service:  service,
		metadata: doc,
		ref:      ref,
	}
}

func (f *testFixture) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(f.server.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}

	return resp, decoded
}

func (f *testFixture) getJSON(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}

	return resp, decoded
}

func (f *testFixture) createAuction(t *testing.T) string {
	t.Helper()

	resp, body := f.postJSON(t, "/v0/auctions", map[string]any{
		"owner":         "gv1owner",
		"bid_increment": 10,
		"start_block":   100,
		"end_block":     200,
		"metadata_ref":  f.ref,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create auction: HTTP %d: %v", resp.StatusCode, body)
	}

	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create auction: no ID in response: %v", body)
	}

	return id
}

func TestHandlerLifecycle(t *testing.T) {
	f := newTestFixture(t)
	id := f.createAuction(t)

	t.Run("ping", func(t *testing.T) {
		resp, _ := f.getJSON(t, "/-/ping")
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	t.Run("get pending auction", func(t *testing.T) {
		resp, body := f.getJSON(t, "/v0/auctions/"+id)
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d", want, have)
		}
		if want, have := "pending", body["phase"]; want != have {
			t.Errorf("phase: want %v, have %v", want, have)
		}
		if want, have := "gavel-test", body["chain_id"]; want != have {
			t.Errorf("chain ID: want %v, have %v", want, have)
		}
	})

	t.Run("bid before start", func(t *testing.T) {
		resp, _ := f.postJSON(t, "/v0/auctions/"+id+"/bids", map[string]any{"bidder": "gv1alice", "amount": 100})
		if want, have := http.StatusTooEarly, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	f.chain.SetHeight(100)

	t.Run("bid", func(t *testing.T) {
		resp, body := f.postJSON(t, "/v0/auctions/"+id+"/bids", map[string]any{"bidder": "gv1alice", "amount": 100})
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d: %v", want, have, body)
		}
		if want, have := "gv1alice", body["highest_bidder"]; want != have {
			t.Errorf("highest bidder: want %v, have %v", want, have)
		}
		if want, have := float64(10), body["highest_binding_bid"]; want != have {
			t.Errorf("binding bid: want %v, have %v", want, have)
		}
	})

	t.Run("outbid", func(t *testing.T) {
		resp, body := f.postJSON(t, "/v0/auctions/"+id+"/bids", map[string]any{"bidder": "gv1bob", "amount": 150})
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d: %v", want, have, body)
		}
		if want, have := "gv1bob", body["highest_bidder"]; want != have {
			t.Errorf("highest bidder: want %v, have %v", want, have)
		}
		if want, have := float64(110), body["highest_binding_bid"]; want != have {
			t.Errorf("binding bid: want %v, have %v", want, have)
		}
	})

	t.Run("bid too low", func(t *testing.T) {
		resp, _ := f.postJSON(t, "/v0/auctions/"+id+"/bids", map[string]any{"bidder": "gv1carol", "amount": 100})
		if want, have := http.StatusConflict, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	t.Run("owner cannot bid", func(t *testing.T) {
		resp, _ := f.postJSON(t, "/v0/auctions/"+id+"/bids", map[string]any{"bidder": "gv1owner", "amount": 500})
		if want, have := http.StatusForbidden, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	t.Run("escrow balance", func(t *testing.T) {
		resp, body := f.getJSON(t, "/v0/auctions/"+id+"/escrows/gv1alice")
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d", want, have)
		}
		if want, have := float64(100), body["balance"]; want != have {
			t.Errorf("balance: want %v, have %v", want, have)
		}
	})

	t.Run("metadata", func(t *testing.T) {
		resp, body := f.getJSON(t, "/v0/auctions/"+id+"/metadata")
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d", want, have)
		}
		if want, have := "estate clock", body["title"]; want != have {
			t.Errorf("title: want %v, have %v", want, have)
		}
	})

	t.Run("withdraw before end", func(t *testing.T) {
		resp, _ := f.postJSON(t, "/v0/auctions/"+id+"/withdrawals", map[string]any{"caller": "gv1alice"})
		if want, have := http.StatusTooEarly, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	f.chain.SetHeight(201)

	t.Run("cancel after end", func(t *testing.T) {
		resp, _ := f.postJSON(t, "/v0/auctions/"+id+"/cancel", map[string]any{"caller": "gv1owner"})
		if want, have := http.StatusTooEarly, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	t.Run("withdrawals", func(t *testing.T) {
		for _, step := range []struct {
			caller string
			want   float64
		}{
			{"gv1owner", 110},
			{"gv1bob", 40},
			{"gv1alice", 100},
		} {
			resp, body := f.postJSON(t, "/v0/auctions/"+id+"/withdrawals", map[string]any{"caller": step.caller})
			if want, have := http.StatusOK, resp.StatusCode; want != have {
				t.Fatalf("%s: want HTTP %d, have %d: %v", step.caller, want, have, body)
			}
			if want, have := step.want, body["amount"]; want != have {
				t.Errorf("%s: amount: want %v, have %v", step.caller, want, have)
			}
		}
	})

	t.Run("double withdraw", func(t *testing.T) {
		resp, _ := f.postJSON(t, "/v0/auctions/"+id+"/withdrawals", map[string]any{"caller": "gv1alice"})
		if want, have := http.StatusConflict, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})

	t.Run("ended auction renders phase", func(t *testing.T) {
		resp, body := f.getJSON(t, "/v0/auctions/"+id)
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d", want, have)
		}
		if want, have := "ended", body["phase"]; want != have {
			t.Errorf("phase: want %v, have %v", want, have)
		}
	})

	t.Run("events", func(t *testing.T) {
		resp, body := f.getJSON(t, "/v0/auctions/"+id+"/events")
		if want, have := http.StatusOK, resp.StatusCode; want != have {
			t.Fatalf("want HTTP %d, have %d", want, have)
		}

		events, _ := body["events"].([]any)

		// created, 2 bids, 3 withdrawals
		if want, have := 6, len(events); want != have {
			t.Fatalf("event count: want %d, have %d", want, have)
		}

		first, _ := events[0].(map[string]any)
		if want, have := "created", first["kind"]; want != have {
			t.Errorf("first event kind: want %v, have %v", want, have)
		}
	})

	t.Run("unknown auction", func(t *testing.T) {
		resp, _ := f.getJSON(t, "/v0/auctions/00000000-0000-0000-0000-000000000001")
		if want, have := http.StatusNotFound, resp.StatusCode; want != have {
			t.Errorf("want HTTP %d, have %d", want, have)
		}
	})
}

func TestCreateAuctionContentTypes(t *testing.T) {
	check := func(t *testing.T, resp *http.Response, err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var auctionBody struct {
			ID         string `json:"id"`
			Owner      string `json:"owner"`
			StartBlock int64  `json:"start_block"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&auctionBody); err != nil {
			t.Fatal(err)
		}
		if auctionBody.ID == "" {
			t.Error("auction ID empty")
		}
		if want, have := "gv1owner", auctionBody.Owner; want != have {
			t.Errorf("owner: want %q, have %q", want, have)
		}
		if want, have := int64(100), auctionBody.StartBlock; want != have {
			t.Errorf("start block: want %d, have %d", want, have)
		}
	}

	t.Run("JSON with no content type", func(t *testing.T) {
		f := newTestFixture(t)
		body := `{"owner": "gv1owner", "bid_increment": 10, "start_block": 100, "end_block": 200}`
		req, _ := http.NewRequest("POST", f.server.URL+"/v0/auctions", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		check(t, resp, err)
	})

	t.Run("application/json", func(t *testing.T) {
		f := newTestFixture(t)
		body := `{"owner": "gv1owner", "bid_increment": 10, "start_block": 100, "end_block": 200}`
		req, _ := http.NewRequest("POST", f.server.URL+"/v0/auctions", strings.NewReader(body))
		req.Header.Set("content-type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		check(t, resp, err)
	})

	t.Run("URL", func(t *testing.T) {
		f := newTestFixture(t)
		resp, err := http.Post(f.server.URL+"/v0/auctions?owner=gv1owner&bid_increment=10&start_block=100&end_block=200", "", nil)
		check(t, resp, err)
	})

	t.Run("application/x-www-form-urlencoded", func(t *testing.T) {
		f := newTestFixture(t)
		data := url.Values{}
		data.Set("owner", "gv1owner")
		data.Set("bid_increment", "10")
		data.Set("start_block", strconv.Itoa(100))
		data.Set("end_block", strconv.Itoa(200))
		body := strings.NewReader(data.Encode())
		req, _ := http.NewRequest("POST", f.server.URL+"/v0/auctions", body)
		req.Header.Set("content-type", "application/x-www-form-urlencoded")
		resp, err := http.DefaultClient.Do(req)
		check(t, resp, err)
	})
}

func TestHandlerGzipRequest(t *testing.T) {
	f := newTestFixture(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	fmt.Fprint(zw, `{"owner": "gv1owner", "bid_increment": 10, "start_block": 100, "end_block": 200}`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest("POST", f.server.URL+"/v0/auctions", &buf)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("content-encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if want, have := http.StatusOK, resp.StatusCode; want != have {
		t.Fatalf("want HTTP %d, have %d", want, have)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ID == "" {
		t.Error("auction ID empty")
	}
}

func TestHandlerPanicRecovery(t *testing.T) {
	f := newTestFixture(t)

	resp, err := http.Get(f.server.URL + "/-/panic")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if want, have := 599, resp.StatusCode; want != have {
		t.Errorf("want HTTP %d, have %d", want, have)
	}
}
