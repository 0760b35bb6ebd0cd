package repository

import (
	"log/slog"

	"animetrack/database"
	"animetrack/internal/config"

	"gorm.io/gorm"
)

// Store is an opened collection store. DB is nil for the bolt driver,
// which has no account tables.
type Store struct {
	Collection CollectionRepository
	DB         *gorm.DB
	close      func() error
}

// OpenStore opens the store named by cfg.StoreDriver.
func OpenStore(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg.StoreDriver == "bolt" {
		repo, err := NewBoltCollectionRepository(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", "driver", "bolt", "path", cfg.BoltPath)
		return &Store{Collection: repo, close: repo.Close}, nil
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &Store{
		Collection: NewCollectionRepository(db),
		DB:         db,
		close:      sqlDB.Close,
	}, nil
}

func (s *Store) Close() error {
	return s.close()
}
