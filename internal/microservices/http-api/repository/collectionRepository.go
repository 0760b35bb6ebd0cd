package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"animetrack/internal/microservices/http-api/models"

	"gorm.io/gorm"
)

// CollectionRepository is the persistence store for collection items.
// Implementations must enforce (user_id, anime_id) uniqueness themselves and
// report a violation as ErrDuplicate.
type CollectionRepository interface {
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]models.CollectionItem, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.CollectionItem, error)
	GetByUserAndAnime(ctx context.Context, userID, animeID int64) (*models.CollectionItem, error)
	Create(ctx context.Context, item *models.CollectionItem) error
	Update(ctx context.Context, id int64, patch models.CollectionPatch) (*models.CollectionItem, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error

	// ListMissingMetadata returns up to limit items with no title and an id
	// greater than afterID, in id order.
	ListMissingMetadata(ctx context.Context, afterID int64, limit int) ([]models.CollectionItem, error)
	// SetMetadata overwrites the snapshot columns. User fields and
	// updated_at are left alone.
	SetMetadata(ctx context.Context, id int64, snapshot models.MetadataSnapshot) error
}

type collectionRepository struct {
	db *gorm.DB
}

func NewCollectionRepository(db *gorm.DB) CollectionRepository {
	return &collectionRepository{db: db}
}

func (r *collectionRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]models.CollectionItem, error) {
	items := make([]models.CollectionItem, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list collection: %w", err)
	}
	return items, nil
}

func (r *collectionRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CollectionItem{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count collection: %w", err)
	}
	return count, nil
}

func (r *collectionRepository) GetByID(ctx context.Context, id int64) (*models.CollectionItem, error) {
	var item models.CollectionItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get collection item: %w", err)
	}
	return &item, nil
}

func (r *collectionRepository) GetByUserAndAnime(ctx context.Context, userID, animeID int64) (*models.CollectionItem, error) {
	var item models.CollectionItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND anime_id = ?", userID, animeID).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get collection item by anime: %w", err)
	}
	return &item, nil
}

// Create inserts item and fills its ID. The unique index decides races:
// of several concurrent inserts for the same pair only one commits.
func (r *collectionRepository) Create(ctx context.Context, item *models.CollectionItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create collection item: %w", err)
	}
	return nil
}

// Update applies only the columns present in patch, inside one transaction.
func (r *collectionRepository) Update(ctx context.Context, id int64, patch models.CollectionPatch) (*models.CollectionItem, error) {
	var updated models.CollectionItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.CollectionItem
		if err := tx.First(&current, id).Error; err != nil {
			return err
		}
		cols := patch.Columns()
		cols["updated_at"] = time.Now().UTC()
		if err := tx.Model(&models.CollectionItem{}).Where("id = ?", id).Updates(cols).Error; err != nil {
			return err
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update collection item: %w", err)
	}
	return &updated, nil
}

func (r *collectionRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.CollectionItem{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete collection item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *collectionRepository) ListMissingMetadata(ctx context.Context, afterID int64, limit int) ([]models.CollectionItem, error) {
	items := make([]models.CollectionItem, 0, limit)
	if err := r.db.WithContext(ctx).
		Where("title IS NULL AND id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items missing metadata: %w", err)
	}
	return items, nil
}

func (r *collectionRepository) SetMetadata(ctx context.Context, id int64, snapshot models.MetadataSnapshot) error {
	result := r.db.WithContext(ctx).
		Model(&models.CollectionItem{}).
		Where("id = ?", id).
		UpdateColumns(snapshot.Columns())
	if result.Error != nil {
		return fmt.Errorf("set collection metadata: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *collectionRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
