package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"animetrack/internal/microservices/http-api/models"
	"animetrack/internal/microservices/http-api/repository"
	"animetrack/internal/shared"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100

	// DefaultEnrichTimeout caps the create-time metadata lookup.
	DefaultEnrichTimeout = 2 * time.Second
)

// MetadataLookup resolves upstream metadata for an anime id.
type MetadataLookup interface {
	GetAnime(ctx context.Context, animeID int64) (*shared.AnimeMetadata, error)
}

// CollectionService owns the collection invariants and is the only writer
// of the collection store.
type CollectionService interface {
	ListForUser(ctx context.Context, userID int64, offset, limit int) ([]models.CollectionItem, error)
	CountForUser(ctx context.Context, userID int64) (int64, error)
	GetByID(ctx context.Context, itemID int64) (*models.CollectionItem, error)
	Create(ctx context.Context, userID, animeID int64, fields models.CollectionFields) (*models.CollectionItem, error)
	Update(ctx context.Context, itemID int64, patch models.CollectionPatch) (*models.CollectionItem, error)
	Remove(ctx context.Context, itemID int64) error
	Ping(ctx context.Context) error

	// ListMissingMetadata pages through items saved without a snapshot.
	ListMissingMetadata(ctx context.Context, afterID int64, limit int) ([]models.CollectionItem, error)
	// RefreshMetadata re-fetches the upstream snapshot for one item.
	RefreshMetadata(ctx context.Context, itemID int64) (*models.CollectionItem, error)
}

// CollectionOption configures a collection service.
type CollectionOption func(*collectionService)

// WithMetadata enables copying upstream metadata into new items and
// RefreshMetadata.
func WithMetadata(lookup MetadataLookup) CollectionOption {
	return func(s *collectionService) { s.metadata = lookup }
}

// WithCreateEnrichment turns the lookup during Create on or off. It is on
// by default; RefreshMetadata works either way.
func WithCreateEnrichment(enabled bool) CollectionOption {
	return func(s *collectionService) { s.enrichOnCreate = enabled }
}

// WithEnrichTimeout sets the upper bound of the create-time lookup. The
// lookup never takes more than half of the caller's remaining deadline.
func WithEnrichTimeout(d time.Duration) CollectionOption {
	return func(s *collectionService) { s.enrichTimeout = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) CollectionOption {
	return func(s *collectionService) { s.now = now }
}

func WithLogger(logger *slog.Logger) CollectionOption {
	return func(s *collectionService) { s.logger = logger }
}

type collectionService struct {
	repo           repository.CollectionRepository
	metadata       MetadataLookup
	enrichOnCreate bool
	enrichTimeout  time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

func NewCollectionService(repo repository.CollectionRepository, opts ...CollectionOption) CollectionService {
	s := &collectionService{
		repo:           repo,
		enrichOnCreate: true,
		enrichTimeout:  DefaultEnrichTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampPage normalises list paging: negative offset becomes 0, a missing
// limit becomes DefaultListLimit, and anything above MaxListLimit is capped.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return offset, limit
}

func (s *collectionService) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]models.CollectionItem, error) {
	offset, limit = ClampPage(offset, limit)
	items, err := s.repo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, storeFailure("list", err)
	}
	return items, nil
}

func (s *collectionService) CountForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return 0, storeFailure("count", err)
	}
	return n, nil
}

func (s *collectionService) GetByID(ctx context.Context, itemID int64) (*models.CollectionItem, error) {
	item, err := s.repo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("get", err)
	}
	return item, nil
}

func (s *collectionService) Create(ctx context.Context, userID, animeID int64, fields models.CollectionFields) (*models.CollectionItem, error) {
	if problems := validateCreate(userID, animeID, fields); len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}

	now := s.now().UTC()
	item := &models.CollectionItem{
		UserID:          userID,
		AnimeID:         animeID,
		Status:          fields.Origin.DefaultStatus(),
		Rating:          fields.Rating,
		EpisodesWatched: 0,
		Notes:           fields.Notes,
		IsFavorite:      false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if fields.Status != nil {
		item.Status = *fields.Status
	}
	if fields.EpisodesWatched != nil {
		item.EpisodesWatched = *fields.EpisodesWatched
	}
	if fields.IsFavorite != nil {
		item.IsFavorite = *fields.IsFavorite
	}

	s.enrich(ctx, item)

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, getErr := s.repo.GetByUserAndAnime(ctx, userID, animeID)
			if getErr != nil {
				existing = nil
			}
			return nil, &ConflictError{Existing: existing}
		}
		return nil, storeFailure("create", err)
	}

	s.logger.Info("collection_item_created",
		"item_id", item.ID,
		"user_id", item.UserID,
		"anime_id", item.AnimeID,
	)
	return item, nil
}

// enrich copies upstream metadata into item. Upstream failures are logged
// and never block the save; the insert keeps at least half of ctx's budget.
func (s *collectionService) enrich(ctx context.Context, item *models.CollectionItem) {
	if s.metadata == nil || !s.enrichOnCreate {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.enrichBudget(ctx))
	defer cancel()

	meta, err := s.metadata.GetAnime(lookupCtx, item.AnimeID)
	if err != nil {
		s.logger.Warn("metadata_enrich_failed",
			"anime_id", item.AnimeID,
			"error", err,
		)
		return
	}
	snapshotOf(meta).ApplyTo(item)
}

func (s *collectionService) enrichBudget(ctx context.Context) time.Duration {
	budget := s.enrichTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if half := time.Until(deadline) / 2; half < budget {
			budget = half
		}
	}
	return budget
}

func snapshotOf(meta *shared.AnimeMetadata) models.MetadataSnapshot {
	var snap models.MetadataSnapshot
	if meta.Title != "" {
		snap.Title = &meta.Title
	}
	if meta.Synopsis != "" {
		snap.Synopsis = &meta.Synopsis
	}
	if meta.ImageURL != "" {
		snap.ImageURL = &meta.ImageURL
	}
	snap.TotalEpisodes = meta.Episodes
	snap.Score = meta.Score
	return snap
}

func (s *collectionService) ListMissingMetadata(ctx context.Context, afterID int64, limit int) ([]models.CollectionItem, error) {
	_, limit = ClampPage(0, limit)
	items, err := s.repo.ListMissingMetadata(ctx, afterID, limit)
	if err != nil {
		return nil, storeFailure("list missing metadata", err)
	}
	return items, nil
}

// RefreshMetadata replaces the item's snapshot with what the upstream
// source reports now. Unlike enrichment at create time, upstream errors
// are returned to the caller.
func (s *collectionService) RefreshMetadata(ctx context.Context, itemID int64) (*models.CollectionItem, error) {
	if s.metadata == nil {
		return nil, fmt.Errorf("%w: no metadata source configured", ErrUpstreamUnavailable)
	}
	item, err := s.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	meta, err := s.metadata.GetAnime(ctx, item.AnimeID)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(meta)

	if err := s.repo.SetMetadata(ctx, itemID, snap); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("set metadata", err)
	}
	snap.ApplyTo(item)

	s.logger.Info("collection_item_metadata_refreshed",
		"item_id", item.ID,
		"anime_id", item.AnimeID,
	)
	return item, nil
}

func (s *collectionService) Update(ctx context.Context, itemID int64, patch models.CollectionPatch) (*models.CollectionItem, error) {
	if patch.IsEmpty() {
		return nil, ErrNoOp
	}
	if problems := patch.Validate(); len(problems) > 0 {
		return nil, &ValidationError{Fields: problems}
	}

	item, err := s.repo.Update(ctx, itemID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeFailure("update", err)
	}

	s.logger.Info("collection_item_updated",
		"item_id", item.ID,
		"fields", patch.Len(),
	)
	return item, nil
}

func (s *collectionService) Remove(ctx context.Context, itemID int64) error {
	if err := s.repo.Delete(ctx, itemID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storeFailure("remove", err)
	}
	s.logger.Info("collection_item_removed", "item_id", itemID)
	return nil
}

func (s *collectionService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storeFailure("ping", err)
	}
	return nil
}

func validateCreate(userID, animeID int64, f models.CollectionFields) map[string]string {
	problems := make(map[string]string)
	if userID <= 0 {
		problems["user_id"] = "is required"
	}
	if animeID <= 0 {
		problems["anime_id"] = "is required"
	}
	if f.Status != nil && !f.Status.Valid() {
		problems["status"] = "is not a known watch status"
	}
	if f.Rating != nil && (*f.Rating < models.MinRating || *f.Rating > models.MaxRating) {
		problems["rating"] = "must be between 0 and 10"
	}
	if f.EpisodesWatched != nil && *f.EpisodesWatched < 0 {
		problems["episodes_watched"] = "must be zero or greater"
	}
	switch f.Origin {
	case "", models.OriginManual, models.OriginSearch:
	default:
		problems["origin"] = "must be manual or search"
	}
	return problems
}
