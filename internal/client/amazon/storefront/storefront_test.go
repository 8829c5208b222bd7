package storefront

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const profilePage = `<html><body>
<h1 id="seller-name">Loja Exemplo LTDA</h1>
<div id="seller-feedback-summary">96% positive in the last 12 months (1.234 ratings)</div>
</body></html>`

func TestParseProfile(t *testing.T) {
	p, err := parseProfile("A1B2C3D4E5", []byte(profilePage))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.Name != "Loja Exemplo LTDA" {
		t.Fatalf("name=%q", p.Name)
	}
	if p.FeedbackRating == nil || *p.FeedbackRating != 96 {
		t.Fatalf("rating=%v", p.FeedbackRating)
	}
	if p.FeedbackCount == nil || *p.FeedbackCount != 1234 {
		t.Fatalf("count=%v", p.FeedbackCount)
	}
}

func TestParseProfileWithoutName(t *testing.T) {
	_, err := parseProfile("A1B2C3D4E5", []byte(`<html><body><p>captcha</p></body></html>`))
	if !errors.Is(err, ErrNoName) {
		t.Fatalf("err=%v want ErrNoName", err)
	}
}

func TestLookupSeller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sp" || r.URL.Query().Get("seller") != "A1B2C3D4E5" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(profilePage))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, nil)
	p, err := c.LookupSeller(context.Background(), "A1B2C3D4E5")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.Name != "Loja Exemplo LTDA" {
		t.Fatalf("name=%q", p.Name)
	}
	if _, err := c.LookupSeller(context.Background(), "UNKNOWN"); err == nil {
		t.Fatalf("expected error for 404")
	}
}
