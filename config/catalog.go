package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/pool"
)

// catalogFile is the on-disk shape of catalog.json.
type catalogFile struct {
	Items        []models.ShopItem `json:"items"`
	Discounts    []models.Discount `json:"discounts"`
	CurrentEvent string            `json:"current_event"`
}

// CatalogStore serves immutable catalog snapshots. Reload parses the file
// into a fresh snapshot and swaps it atomically; in-flight purchases keep the
// snapshot they started with.
type CatalogStore struct {
	path    string
	current atomic.Pointer[models.Catalog]
}

// LoadCatalogStore reads and validates the catalog file.
func LoadCatalogStore(path string) (*CatalogStore, error) {
	s := &CatalogStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Catalog returns the current snapshot.
func (s *CatalogStore) Catalog() *models.Catalog {
	return s.current.Load()
}

// Reload re-reads the catalog file. On any error the previous snapshot stays
// in place.
func (s *CatalogStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", s.path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog %s: %w", s.path, err)
	}

	seen := make(map[string]struct{}, len(file.Items))
	for _, item := range file.Items {
		if item.ID == "" {
			return fmt.Errorf("catalog %s: item %q has no id", s.path, item.Name)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("catalog %s: duplicate item id %q", s.path, item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.Price < 0 {
			return fmt.Errorf("catalog %s: item %q has negative price", s.path, item.ID)
		}
		if len(item.Commands) == 0 {
			return fmt.Errorf("catalog %s: item %q has no delivery commands", s.path, item.ID)
		}
	}
	for _, d := range file.Discounts {
		if d.Percent < 0 || d.Percent > 100 {
			return fmt.Errorf("catalog %s: discount on %q has percent %d", s.path, d.Target, d.Percent)
		}
	}

	s.current.Store(models.NewCatalog(file.Items, file.Discounts, file.CurrentEvent))
	log.WithFields(log.Fields{
		"items":     len(file.Items),
		"discounts": len(file.Discounts),
	}).Info("Catalog loaded")
	return nil
}

// LoadServers reads the game server list from servers.json.
func LoadServers(path string) ([]pool.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers %s: %w", path, err)
	}

	var servers []pool.ServerConfig
	if err := json.Unmarshal(data, &servers); err != nil {
		return nil, fmt.Errorf("parse servers %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(servers))
	for _, srv := range servers {
		if srv.ID == "" || srv.Host == "" || srv.Port == 0 {
			return nil, fmt.Errorf("servers %s: entry %q needs id, host and port", path, srv.ID)
		}
		if _, dup := seen[srv.ID]; dup {
			return nil, fmt.Errorf("servers %s: duplicate server id %q", path, srv.ID)
		}
		seen[srv.ID] = struct{}{}
	}
	return servers, nil
}
