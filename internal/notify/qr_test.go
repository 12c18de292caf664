package notify

import (
	"bytes"
	"net/url"
	"testing"

	"restopos/internal/logger"
)

func TestTrackingLink(t *testing.T) {
	d := NewDispatcher(nil, nil, logger.Discard(), "https://pos.example.com/")

	link := d.TrackingLink(" Mesa 4 ", "La Fonda", "Centro")
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/seguimiento.html" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("mesa") != "Mesa 4" || q.Get("restaurante") != "La Fonda" || q.Get("sede") != "Centro" {
		t.Errorf("query = %v", q)
	}

	if q := mustQuery(t, d.TrackingLink("1", "La Fonda", "")); q.Has("sede") {
		t.Errorf("empty site should be omitted, got %v", q)
	}
}

func mustQuery(t *testing.T, link string) url.Values {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatal(err)
	}
	return u.Query()
}

func TestTableQR(t *testing.T) {
	d := NewDispatcher(nil, nil, logger.Discard(), "https://pos.example.com")

	png, err := d.TableQR("4", "La Fonda", "", 0)
	if err != nil {
		t.Fatalf("TableQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("output is not a PNG")
	}

	if _, err := d.TableQR("", "La Fonda", "", 0); err != ErrMissingFields {
		t.Errorf("TableQR without table = %v, want ErrMissingFields", err)
	}
}
