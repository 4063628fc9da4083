package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/valuator/internal/config"
	"github.com/aristath/valuator/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens and migrates the three databases. Nothing is
// left open on error.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// Durability first: transactions are the source of truth
		{"ledger", database.ProfileLedger, &container.LedgerDB},
		// Speed first: everything here can be recomputed or refetched
		{"cache", database.ProfileCache, &container.CacheDB},
		{"client_data", database.ProfileCache, &container.ClientDataDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}
		log.Debug().Str("database", spec.name).Msg("Database ready")
	}

	log.Info().Msg("Databases initialized")
	return container, nil
}
