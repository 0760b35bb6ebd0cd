package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"animetrack/internal/microservices/http-api/models"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketItems     = []byte("collection_items")
	bucketUserAnime = []byte("collection_user_anime") // user|anime -> item id
)

// BoltCollectionRepository stores collection items in a single bbolt file.
// bbolt allows one writer at a time, so the duplicate check and the insert in
// Create happen in the same serialised write transaction.
type BoltCollectionRepository struct {
	db *bolt.DB
}

// NewBoltCollectionRepository opens (or creates) the database at path.
func NewBoltCollectionRepository(path string) (*BoltCollectionRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketItems, bucketUserAnime} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCollectionRepository{db: db}, nil
}

func (r *BoltCollectionRepository) Close() error {
	return r.db.Close()
}

func itemKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func userPrefix(userID int64) []byte {
	return itemKey(userID)
}

func userAnimeKey(userID, animeID int64) []byte {
	return append(userPrefix(userID), itemKey(animeID)...)
}

func getItem(b *bolt.Bucket, id []byte) (*models.CollectionItem, error) {
	data := b.Get(id)
	if data == nil {
		return nil, ErrNotFound
	}
	var item models.CollectionItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode collection item: %w", err)
	}
	return &item, nil
}

func putItem(b *bolt.Bucket, item *models.CollectionItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode collection item: %w", err)
	}
	return b.Put(itemKey(item.ID), data)
}

func (r *BoltCollectionRepository) userItems(tx *bolt.Tx, userID int64) ([]models.CollectionItem, error) {
	items := tx.Bucket(bucketItems)
	c := tx.Bucket(bucketUserAnime).Cursor()
	prefix := userPrefix(userID)

	var out []models.CollectionItem
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		item, err := getItem(items, v)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, nil
}

func (r *BoltCollectionRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]models.CollectionItem, error) {
	var all []models.CollectionItem
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		all, err = r.userItems(tx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list collection: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if offset >= len(all) {
		return []models.CollectionItem{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *BoltCollectionRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketUserAnime).Cursor()
		prefix := userPrefix(userID)
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (r *BoltCollectionRepository) GetByID(ctx context.Context, id int64) (*models.CollectionItem, error) {
	var item *models.CollectionItem
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		item, err = getItem(tx.Bucket(bucketItems), itemKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *BoltCollectionRepository) GetByUserAndAnime(ctx context.Context, userID, animeID int64) (*models.CollectionItem, error) {
	var item *models.CollectionItem
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUserAnime).Get(userAnimeKey(userID, animeID))
		if id == nil {
			return ErrNotFound
		}
		var err error
		item, err = getItem(tx.Bucket(bucketItems), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *BoltCollectionRepository) Create(ctx context.Context, item *models.CollectionItem) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(bucketUserAnime)
		key := userAnimeKey(item.UserID, item.AnimeID)
		if index.Get(key) != nil {
			return ErrDuplicate
		}

		items := tx.Bucket(bucketItems)
		seq, err := items.NextSequence()
		if err != nil {
			return fmt.Errorf("next item id: %w", err)
		}
		item.ID = int64(seq)
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = item.CreatedAt
		}
		if err := putItem(items, item); err != nil {
			return err
		}
		return index.Put(key, itemKey(item.ID))
	})
}

func (r *BoltCollectionRepository) Update(ctx context.Context, id int64, patch models.CollectionPatch) (*models.CollectionItem, error) {
	var updated *models.CollectionItem
	err := r.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(bucketItems)
		item, err := getItem(items, itemKey(id))
		if err != nil {
			return err
		}
		patch.ApplyTo(item)
		item.UpdatedAt = time.Now().UTC()
		if err := putItem(items, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *BoltCollectionRepository) Delete(ctx context.Context, id int64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(bucketItems)
		item, err := getItem(items, itemKey(id))
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketUserAnime).Delete(userAnimeKey(item.UserID, item.AnimeID)); err != nil {
			return err
		}
		return items.Delete(itemKey(id))
	})
}

func (r *BoltCollectionRepository) ListMissingMetadata(ctx context.Context, afterID int64, limit int) ([]models.CollectionItem, error) {
	out := make([]models.CollectionItem, 0, limit)
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketItems).Cursor()
		k, v := c.Seek(itemKey(afterID + 1))
		for ; k != nil && len(out) < limit; k, v = c.Next() {
			var item models.CollectionItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode collection item: %w", err)
			}
			if item.Title == nil {
				out = append(out, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items missing metadata: %w", err)
	}
	return out, nil
}

func (r *BoltCollectionRepository) SetMetadata(ctx context.Context, id int64, snapshot models.MetadataSnapshot) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(bucketItems)
		item, err := getItem(items, itemKey(id))
		if err != nil {
			return err
		}
		snapshot.ApplyTo(item)
		return putItem(items, item)
	})
}

func (r *BoltCollectionRepository) Ping(ctx context.Context) error {
	return r.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketItems) == nil {
			return fmt.Errorf("bucket %s missing", bucketItems)
		}
		return nil
	})
}
