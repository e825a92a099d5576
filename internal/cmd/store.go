package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ghostpni/ghostpni/internal/config"
	"github.com/ghostpni/ghostpni/internal/core/store"
)

// openStore opens the configured journal. The journal commands read it even
// when journaling is disabled for serve.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openJournalStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", storeLocation(cfg.Store), err)
	}
	return db, nil
}

// openJournalStore opens and migrates the journal database.
func openJournalStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// storeLocation describes where the journal lives without leaking credentials.
func storeLocation(cfg config.StoreConfig) string {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return cfg.Path
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return cfg.Driver
	}
	parsed.RawQuery = ""
	return parsed.Redacted()
}
