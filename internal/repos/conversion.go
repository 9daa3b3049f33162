package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/store"
	"github.com/inkmark/inkmark-backend/internal/types"
)

// ConversionRepo is the relational implementation of store.ConversionStore.
type ConversionRepo interface {
	store.ConversionStore
}

type conversionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversionRepo(db *gorm.DB, baseLog *logger.Logger) ConversionRepo {
	repoLog := baseLog.With("repo", "ConversionRepo")
	return &conversionRepo{db: db, log: repoLog}
}

func (r *conversionRepo) Create(ctx context.Context, c *types.Conversion) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return err
	}
	return nil
}

func (r *conversionRepo) GetByID(ctx context.Context, id string) (*types.Conversion, error) {
	var result types.Conversion
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *conversionRepo) List(ctx context.Context, limit, offset int) ([]*types.Conversion, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&types.Conversion{}).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.Conversion
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	if results == nil {
		results = []*types.Conversion{}
	}
	return results, total, nil
}

func (r *conversionRepo) Update(ctx context.Context, c *types.Conversion) error {
	res := r.db.WithContext(ctx).
		Model(&types.Conversion{}).
		Where("id = ?", c.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *conversionRepo) DeleteByID(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Conversion{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
