package notify

import (
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// TrackingLink is the public page a customer opens to follow the orders of
// one table.
func (d *Dispatcher) TrackingLink(table, restaurant, site string) string {
	q := url.Values{}
	q.Set("mesa", strings.TrimSpace(table))
	q.Set("restaurante", strings.TrimSpace(restaurant))
	if site = strings.TrimSpace(site); site != "" {
		q.Set("sede", site)
	}
	return d.trackingURL + "?" + q.Encode()
}

// TableQR renders the tracking link of a table as a PNG QR code.
func (d *Dispatcher) TableQR(table, restaurant, site string, size int) ([]byte, error) {
	if strings.TrimSpace(table) == "" || strings.TrimSpace(restaurant) == "" {
		return nil, ErrMissingFields
	}
	if size <= 0 || size > maxQRSize {
		size = defaultQRSize
	}
	return qrcode.Encode(d.TrackingLink(table, restaurant, site), qrcode.Medium, size)
}
