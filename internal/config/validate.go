package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// maxCapacity bounds the grid so a typo cannot allocate absurd shelves.
const maxCapacity = 64

// Validate performs business-rule validation on the loaded configuration and
// normalizes a few values in place. Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Remote.validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Assets.validate(); err != nil {
		return fmt.Errorf("assets: %w", err)
	}
	if err := c.Shelf.validate(); err != nil {
		return fmt.Errorf("shelf: %w", err)
	}
	if err := c.Feed.validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	if !slices.Contains([]string{BusLocal, BusRedis}, c.Bus.Kind) {
		return fmt.Errorf("bus: kind must be %q or %q (got %q)", BusLocal, BusRedis, c.Bus.Kind)
	}
	if c.Server.WriteRate <= 0 || c.Server.WriteBurst <= 0 {
		return fmt.Errorf("server: write_rate and write_burst must be > 0")
	}
	return nil
}

func (r *RemoteConfig) validate() error {
	switch r.Kind {
	case RemoteSQLite:
		if r.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for kind %q", r.Kind)
		}
	case RemotePostgres:
		if r.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for kind %q", r.Kind)
		}
	case RemoteHTTP:
		if _, err := absoluteURL(r.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	default:
		return fmt.Errorf("kind must be one of sqlite, postgres, http (got %q)", r.Kind)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	return nil
}

func (a *AssetsConfig) validate() error {
	if a.BaseURL != "" {
		if _, err := absoluteURL(a.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		a.BaseURL = strings.TrimRight(a.BaseURL, "/")
	}
	if a.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	return nil
}

func (s *ShelfConfig) validate() error {
	if s.Capacity <= 0 || s.Capacity > maxCapacity {
		return fmt.Errorf("capacity must be in [1,%d] (got %d)", maxCapacity, s.Capacity)
	}
	if s.EmptyProbability < 0 || s.EmptyProbability > 1 {
		return fmt.Errorf("empty_probability must be in [0,1] (got %v)", s.EmptyProbability)
	}
	return nil
}

func (f *FeedConfig) validate() error {
	if f.MinRefetchInterval < 0 {
		return fmt.Errorf("min_refetch_interval must be >= 0")
	}
	if f.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect_backoff must be > 0")
	}
	if f.MaxBackoff < f.ReconnectBackoff {
		return fmt.Errorf("max_backoff must be >= reconnect_backoff")
	}
	return nil
}

func absoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return u, nil
}
