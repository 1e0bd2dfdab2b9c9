package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
)

// MySQL 唯一键冲突错误码
const mysqlDuplicateEntry = 1062

// GormStore 基于 gorm 的目录存储。
type GormStore struct {
	db     *gorm.DB
	opts   Options
	logger *slog.Logger
}

// OpenMySQL 连接 MySQL 并自动迁移目录表。
func OpenMySQL(ctx context.Context, dsn string, opts Options, log *slog.Logger) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return NewGormStore(ctx, db, opts, log)
}

// NewGormStore 使用已有连接创建存储并迁移表结构。
func NewGormStore(ctx context.Context, db *gorm.DB, opts Options, log *slog.Logger) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&model.Store{}, &model.Category{}, &model.StoreCategory{}, &model.Product{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db, opts: opts.withDefaults(), logger: logger.OrDiscard(log)}, nil
}

func (s *GormStore) ResolvePartition(ctx context.Context, store model.StoreKey, category model.CategoryType) (model.Partition, error) {
	var sc model.StoreCategory
	err := s.db.WithContext(ctx).
		Where("store_key = ? AND category_type = ?", store, category).
		First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Partition{}, fmt.Errorf("%w: %s/%s", ErrPartitionNotFound, store, category)
	}
	if err != nil {
		return model.Partition{}, fmt.Errorf("resolve partition: %w", err)
	}
	return model.Partition{ID: sc.ID, Store: sc.StoreKey, Category: sc.CategoryType}, nil
}

func (s *GormStore) GetExistingByPartition(ctx context.Context, p model.Partition) (map[string]*model.Product, error) {
	var rows []*model.Product
	if err := s.db.WithContext(ctx).Where("store_category_id = ?", p.ID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load partition %s: %w", p, err)
	}
	out := make(map[string]*model.Product, len(rows))
	for _, r := range rows {
		out[r.URL] = r
	}
	return out, nil
}

// BulkInsert 按批插入；某批出现唯一键冲突时回退为逐行插入以隔离冲突行。
func (s *GormStore) BulkInsert(ctx context.Context, items []*model.Product) (int, error) {
	inserted := 0
	var conflicts []string

	for _, batch := range chunk(items, s.opts.BatchSize) {
		err := s.db.WithContext(ctx).Create(batch).Error
		if err == nil {
			inserted += len(batch)
			continue
		}
		if !isMySQLDuplicate(err) {
			return inserted, fmt.Errorf("insert products: %w", err)
		}

		for _, p := range batch {
			p.ID = 0
			if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
				if isMySQLDuplicate(err) {
					conflicts = append(conflicts, p.URL)
					continue
				}
				return inserted, fmt.Errorf("insert product %s: %w", p.URL, err)
			}
			inserted++
		}
	}

	if len(conflicts) > 0 {
		return inserted, &ConflictError{URLs: conflicts}
	}
	return inserted, nil
}

func (s *GormStore) BulkUpdate(ctx context.Context, items []*model.Product) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range items {
			err := tx.Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
				"name":           p.Name,
				"price":          p.Price,
				"image_url":      p.ImageURL,
				"is_deleted":     p.IsDeleted,
				"deletion_date":  p.DeletionDate,
				"last_synced_at": p.LastSyncedAt,
			}).Error
			if err != nil {
				return fmt.Errorf("update product %s: %w", p.URL, err)
			}
		}
		return nil
	})
}

func (s *GormStore) BulkDelete(ctx context.Context, items []*model.Product) error {
	ids := productIDs(items)
	if len(ids) == 0 {
		return nil
	}
	for _, batch := range chunk(ids, s.opts.BatchSize) {
		q := s.db.WithContext(ctx).Where("id IN ?", batch)
		var err error
		if s.opts.SoftDelete {
			err = q.Model(&model.Product{}).Updates(map[string]interface{}{
				"is_deleted":    true,
				"deletion_date": s.opts.Now(),
			}).Error
		} else {
			err = q.Delete(&model.Product{}).Error
		}
		if err != nil {
			return fmt.Errorf("delete products: %w", err)
		}
	}
	return nil
}

// EnsurePartitions 幂等地创建商店、分类与分区行。
func (s *GormStore) EnsurePartitions(ctx context.Context, pairs []model.Partition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doNothing := clause.OnConflict{DoNothing: true}
		for _, p := range pairs {
			store := model.Store{Key: p.Store, Name: p.Store.DisplayName(), WebsiteURL: p.Store.WebsiteURL()}
			if err := tx.Clauses(doNothing).Create(&store).Error; err != nil {
				return fmt.Errorf("seed store %s: %w", p.Store, err)
			}
			category := model.Category{Type: p.Category}
			if err := tx.Clauses(doNothing).Create(&category).Error; err != nil {
				return fmt.Errorf("seed category %s: %w", p.Category, err)
			}
			sc := model.StoreCategory{StoreKey: p.Store, CategoryType: p.Category, OriginalCategoryName: string(p.Category)}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "store_key"}, {Name: "category_type"}},
				DoNothing: true,
			}).Create(&sc).Error; err != nil {
				return fmt.Errorf("seed partition %s: %w", p, err)
			}
		}
		return nil
	})
}

// ListPartitions 返回所有已初始化的分区。
func (s *GormStore) ListPartitions(ctx context.Context) ([]model.Partition, error) {
	var rows []model.StoreCategory
	if err := s.db.WithContext(ctx).Order("category_type, store_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	out := make([]model.Partition, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Partition{ID: r.ID, Store: r.StoreKey, Category: r.CategoryType})
	}
	return out, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isMySQLDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
