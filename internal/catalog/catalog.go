// Package catalog 是商品目录的持久化层。
//
// 对账与编排只依赖 Store 接口；MySQL（gorm）与 PostgreSQL（pgx）两种实现按配置选择。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eazyfind/internal/config"
	"eazyfind/internal/model"
)

var (
	// ErrDuplicateURL 插入时违反 URL 唯一约束。
	ErrDuplicateURL = errors.New("duplicate product url")
	// ErrPartitionNotFound 分区 (store, category) 尚未初始化。
	ErrPartitionNotFound = errors.New("partition not found")
)

// ConflictError 批量插入中因 URL 冲突被跳过的行，其余行已写入。
type ConflictError struct {
	URLs []string
}

func (e *ConflictError) Error() string {
	const preview = 3
	shown := e.URLs
	if len(shown) > preview {
		shown = shown[:preview]
	}
	msg := fmt.Sprintf("%d rows skipped on unique url conflict: %s", len(e.URLs), strings.Join(shown, ", "))
	if len(e.URLs) > preview {
		msg += ", ..."
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return ErrDuplicateURL }

// Store 商品目录存储。
type Store interface {
	// ResolvePartition 返回 (store, category) 对应的分区。
	ResolvePartition(ctx context.Context, store model.StoreKey, category model.CategoryType) (model.Partition, error)
	// GetExistingByPartition 返回分区内全部商品（含软删除），以 URL 为键。
	GetExistingByPartition(ctx context.Context, p model.Partition) (map[string]*model.Product, error)
	// BulkInsert 批量插入，返回写入行数。冲突行被跳过并以 *ConflictError 返回。
	BulkInsert(ctx context.Context, items []*model.Product) (int, error)
	BulkUpdate(ctx context.Context, items []*model.Product) error
	// BulkDelete 按删除策略软删除或物理删除。
	BulkDelete(ctx context.Context, items []*model.Product) error
	Close() error
}

// Seeder 按分区配置初始化商店、分类与分区行。
type Seeder interface {
	EnsurePartitions(ctx context.Context, pairs []model.Partition) error
	ListPartitions(ctx context.Context) ([]model.Partition, error)
}

// Catalog 同时提供存储与初始化能力。
type Catalog interface {
	Store
	Seeder
}

// Options 存储行为选项。
type Options struct {
	SoftDelete bool
	BatchSize  int
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Open 按 cfg.Catalog.Driver 打开目录存储并完成建表。
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (Catalog, error) {
	opts := Options{
		SoftDelete: cfg.Catalog.SoftDelete,
		BatchSize:  cfg.Catalog.InsertBatchSize,
	}
	switch strings.ToLower(cfg.Catalog.Driver) {
	case "", "mysql":
		return OpenMySQL(ctx, cfg.MySQL.DSN, opts, log)
	case "postgres", "postgresql", "pg":
		return OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, opts, log)
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", cfg.Catalog.Driver)
	}
}

// chunk 将 items 按 size 切分。
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		j := i + size
		if j > len(items) {
			j = len(items)
		}
		out = append(out, items[i:j])
	}
	return out
}

func productIDs(items []*model.Product) []uint {
	ids := make([]uint, 0, len(items))
	for _, p := range items {
		if p.ID != 0 {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
