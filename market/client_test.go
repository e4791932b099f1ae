package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchScoresAndSortsQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "leather tote bag" {
			t.Errorf("query q = %q", got)
		}
		fmt.Fprint(w, `{"data":[
			{"name":"kitchen blender","url":"https://a.example/p/9","price":{"amount":120,"currency":"SAR"},"store":{"name":"Store A"}},
			{"name":"leather tote bag brown","url":"https://b.example/p/1","price":{"amount":240,"currency":"SAR"},"store":{"name":"Store B"}},
			{"name":"leather bag","url":"https://c.example/p/2","price":{"amount":199,"currency":"SAR"},"store":{"name":"Store C"}}
		]}`)
	}))
	defer srv.Close()

	quotes, err := NewClient(srv.URL).Search(context.Background(), "leather tote bag", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}

	// Exact title match sorts first.
	if quotes[0].Source != "Store B" {
		t.Errorf("top quote from %q, expected Store B", quotes[0].Source)
	}
	if quotes[0].Confidence != 1.0 {
		t.Errorf("top confidence = %.2f, expected 1.00", quotes[0].Confidence)
	}
	if !quotes[0].IsValid {
		t.Error("top quote should be valid")
	}

	// Zero name overlap leaves only price and currency points.
	last := quotes[2]
	if last.Source != "Store A" {
		t.Errorf("last quote from %q, expected Store A", last.Source)
	}
	if last.Confidence != 0.5 {
		t.Errorf("last confidence = %.2f, expected 0.50", last.Confidence)
	}
}

func TestSearchFlagsInsanePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"name":"gadget","url":"https://a.example/p/1","price":{"amount":990000,"currency":"SAR"},"store":{"name":"Store A"}},
			{"name":"widget","url":"https://b.example/p/2","price":{"amount":0,"currency":"SAR"},"store":{"name":"Store B"}}
		]}`)
	}))
	defer srv.Close()

	quotes, err := NewClient(srv.URL).Search(context.Background(), "gadget", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	// Zero-price hits are dropped entirely.
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}
	// Out-of-range price loses the sanity points: 0.5 overlap + 0.2 currency.
	if quotes[0].Confidence != 0.7 {
		t.Errorf("confidence = %.2f, expected 0.70", quotes[0].Confidence)
	}
}

func TestSearchLimitsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"name":"lamp","url":"https://a.example/1","price":{"amount":50,"currency":"SAR"},"store":{"name":"A"}},
			{"name":"lamp","url":"https://b.example/2","price":{"amount":55,"currency":"SAR"},"store":{"name":"B"}},
			{"name":"lamp","url":"https://c.example/3","price":{"amount":60,"currency":"SAR"},"store":{"name":"C"}}
		]}`)
	}))
	defer srv.Close()

	quotes, err := NewClient(srv.URL).Search(context.Background(), "lamp", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(quotes) != 2 {
		t.Errorf("expected 2 quotes, got %d", len(quotes))
	}
}

func TestSearchErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		if _, err := NewClient(srv.URL).Search(context.Background(), "lamp", 5); err == nil {
			t.Error("expected an error for a 500 response")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": "not-a-list"`)
		}))
		defer srv.Close()

		if _, err := NewClient(srv.URL).Search(context.Background(), "lamp", 5); err == nil {
			t.Error("expected an error for a malformed response")
		}
	})

	t.Run("empty product name", func(t *testing.T) {
		if _, err := NewClient("http://unused").Search(context.Background(), "  ", 5); err == nil {
			t.Error("expected an error for an empty product name")
		}
	})
}
