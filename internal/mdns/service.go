// Package mdns advertises shelfd on the local network so clients can find
// a remote without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service type for shelfd.
	ServiceType = "_shelfsync._tcp"

	// APIVersion is the table API version advertised in TXT records.
	APIVersion = "v1"
)

// Announcement is what a server advertises about itself.
type Announcement struct {
	InstanceID string
	Name       string
	Version    string
	// Bus is the change bus kind; clients on a redis bus may reach any
	// instance.
	Bus string
}

// TXT returns the records for a.
func (a Announcement) TXT() []string {
	txt := []string{
		"id=" + a.InstanceID,
		"name=" + a.Name,
		"version=" + a.Version,
		"api=" + APIVersion,
	}
	if a.Bus != "" {
		txt = append(txt, "bus="+a.Bus)
	}
	return txt
}

// Service manages mDNS advertisement for shelfd.
type Service struct {
	server *mdns.Server
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a new mDNS service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Start begins advertising the server on port. A running advertisement
// is replaced. Errors are usually environmental (no multicast in a
// container) and callers treat them as non-fatal.
func (s *Service) Start(a Announcement, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = "shelfd"
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, a.TXT())
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("start mDNS server: %w", err)
	}
	s.server = server

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", port,
		"name", a.Name,
		"id", a.InstanceID,
	)
	return nil
}

// Stop stops advertising. Safe to call multiple times or if not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}

// Shutdown implements do.Shutdownable.
func (s *Service) Shutdown() error {
	s.Stop()
	return nil
}
