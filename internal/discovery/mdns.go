// Package discovery announces the server on the local network so tablets
// and kitchen screens can find it without typing an address.
package discovery

import (
	"context"
	"fmt"

	"restopos/internal/logger"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType = "_restopos._tcp"
	Domain      = "local."
)

// Announcement describes what is published in the TXT record.
type Announcement struct {
	Instance string
	Port     int
	Version  string
	BaseURL  string
}

func (a Announcement) txt() []string {
	return []string{
		"version=" + a.Version,
		"id=" + DeviceID(),
		"url=" + a.BaseURL,
	}
}

// Advertise registers the service and keeps it published until ctx is done.
func Advertise(ctx context.Context, a Announcement, log *logger.Logger) error {
	if a.Port <= 0 {
		return fmt.Errorf("discovery: invalid port %d", a.Port)
	}
	if a.Instance == "" {
		a.Instance = "RestoPOS " + DeviceID()
	}
	server, err := zeroconf.Register(a.Instance, ServiceType, Domain, a.Port, a.txt(), nil)
	if err != nil {
		return fmt.Errorf("discovery: register: %w", err)
	}
	log = log.WithComponent("mdns")
	log.Info("service announced", "instance", a.Instance, "service", ServiceType+"."+Domain, "port", a.Port)

	go func() {
		<-ctx.Done()
		server.Shutdown()
		log.Info("service withdrawn")
	}()
	return nil
}
