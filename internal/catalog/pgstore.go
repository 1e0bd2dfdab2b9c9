package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eazyfind/internal/model"
	"eazyfind/internal/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL 唯一约束冲突错误码
const pgUniqueViolation = "23505"

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		key         VARCHAR(64) PRIMARY KEY,
		name        TEXT NOT NULL,
		website_url TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		type       VARCHAR(64) PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS store_categories (
		id                     SERIAL PRIMARY KEY,
		store_key              VARCHAR(64) NOT NULL REFERENCES stores(key),
		category_type          VARCHAR(64) NOT NULL REFERENCES categories(type),
		original_category_name TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (store_key, category_type)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id                SERIAL PRIMARY KEY,
		store_category_id INTEGER NOT NULL REFERENCES store_categories(id),
		name              VARCHAR(512) NOT NULL,
		price             BIGINT NOT NULL DEFAULT 0,
		url               VARCHAR(768) NOT NULL UNIQUE,
		image_url         VARCHAR(1024) NOT NULL DEFAULT '',
		is_deleted        BOOLEAN NOT NULL DEFAULT false,
		last_synced_at    TIMESTAMPTZ NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL,
		deletion_date     TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_store_category ON products (store_category_id)`,
}

// PGStore 基于 pgx 连接池的目录存储。
type PGStore struct {
	pool   *pgxpool.Pool
	opts   Options
	logger *slog.Logger
}

// OpenPostgres 创建连接池并建表。
func OpenPostgres(ctx context.Context, dsn string, maxConns int32, opts Options, log *slog.Logger) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{pool: pool, opts: opts.withDefaults(), logger: logger.OrDiscard(log)}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PGStore) ResolvePartition(ctx context.Context, store model.StoreKey, category model.CategoryType) (model.Partition, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM store_categories WHERE store_key = $1 AND category_type = $2`,
		string(store), string(category)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Partition{}, fmt.Errorf("%w: %s/%s", ErrPartitionNotFound, store, category)
	}
	if err != nil {
		return model.Partition{}, fmt.Errorf("resolve partition: %w", err)
	}
	return model.Partition{ID: uint(id), Store: store, Category: category}, nil
}

func (s *PGStore) GetExistingByPartition(ctx context.Context, p model.Partition) (map[string]*model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, store_category_id, name, price, url, image_url, is_deleted, last_synced_at, created_at, deletion_date
		 FROM products WHERE store_category_id = $1`, int64(p.ID))
	if err != nil {
		return nil, fmt.Errorf("load partition %s: %w", p, err)
	}
	defer rows.Close()

	out := make(map[string]*model.Product)
	for rows.Next() {
		var (
			r      model.Product
			id, sc int64
		)
		if err := rows.Scan(&id, &sc, &r.Name, &r.Price, &r.URL, &r.ImageURL,
			&r.IsDeleted, &r.LastSyncedAt, &r.CreatedAt, &r.DeletionDate); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		r.ID, r.StoreCategoryID = uint(id), uint(sc)
		out[r.URL] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load partition %s: %w", p, err)
	}
	return out, nil
}

// BulkInsert 以 pgx.Batch 分批插入，每批一个事务；ON CONFLICT DO NOTHING 跳过的行记为冲突。
// 某批失败时该批整体回滚，返回值只计入已提交的批次。
func (s *PGStore) BulkInsert(ctx context.Context, items []*model.Product) (int, error) {
	inserted := 0
	var conflicts []string

	for _, batch := range chunk(items, s.opts.BatchSize) {
		n, skipped, err := s.insertBatch(ctx, batch)
		if err != nil {
			return inserted, err
		}
		inserted += n
		conflicts = append(conflicts, skipped...)
	}

	if len(conflicts) > 0 {
		return inserted, &ConflictError{URLs: conflicts}
	}
	return inserted, nil
}

// insertBatch 在单个事务中插入一批商品，提交成功后才回填 ID。
func (s *PGStore) insertBatch(ctx context.Context, batch []*model.Product) (int, []string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, p := range batch {
		b.Queue(`INSERT INTO products
			(store_category_id, name, price, url, image_url, is_deleted, last_synced_at, created_at, deletion_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (url) DO NOTHING
			RETURNING id`,
			int64(p.StoreCategoryID), p.Name, p.Price, p.URL, p.ImageURL,
			p.IsDeleted, p.LastSyncedAt, p.CreatedAt, p.DeletionDate)
	}

	br := tx.SendBatch(ctx, b)
	ids, conflicts, err := readInserted(br, batch)
	if cerr := br.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("insert products: %w", cerr)
	}
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("commit insert: %w", err)
	}

	for i, p := range batch {
		if ids[i] != 0 {
			p.ID = uint(ids[i])
		}
	}
	return len(batch) - len(conflicts), conflicts, nil
}

// readInserted 按顺序读取批量插入的 RETURNING 结果。
// 没有返回行即 URL 已存在；其余错误会使事务中止，整批作废。
func readInserted(br pgx.BatchResults, batch []*model.Product) ([]int64, []string, error) {
	ids := make([]int64, len(batch))
	var conflicts []string
	for i, p := range batch {
		err := br.QueryRow().Scan(&ids[i])
		switch {
		case err == nil:
		case errors.Is(err, pgx.ErrNoRows):
			conflicts = append(conflicts, p.URL)
		case isPGDuplicate(err):
			return nil, nil, fmt.Errorf("insert product %s: %w: %w", p.URL, ErrDuplicateURL, err)
		default:
			return nil, nil, fmt.Errorf("insert product %s: %w", p.URL, err)
		}
	}
	return ids, conflicts, nil
}

func (s *PGStore) BulkUpdate(ctx context.Context, items []*model.Product) error {
	for _, batch := range chunk(items, s.opts.BatchSize) {
		b := &pgx.Batch{}
		for _, p := range batch {
			b.Queue(`UPDATE products SET name=$2, price=$3, image_url=$4, is_deleted=$5, deletion_date=$6, last_synced_at=$7
				WHERE id=$1`,
				int64(p.ID), p.Name, p.Price, p.ImageURL, p.IsDeleted, p.DeletionDate, p.LastSyncedAt)
		}
		if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("update products: %w", err)
		}
	}
	return nil
}

func (s *PGStore) BulkDelete(ctx context.Context, items []*model.Product) error {
	ids := productIDs(items)
	for _, batch := range chunk(ids, s.opts.BatchSize) {
		ids64 := make([]int64, len(batch))
		for i, id := range batch {
			ids64[i] = int64(id)
		}
		var err error
		if s.opts.SoftDelete {
			_, err = s.pool.Exec(ctx,
				`UPDATE products SET is_deleted = true, deletion_date = $2 WHERE id = ANY($1)`,
				ids64, s.opts.Now())
		} else {
			_, err = s.pool.Exec(ctx, `DELETE FROM products WHERE id = ANY($1)`, ids64)
		}
		if err != nil {
			return fmt.Errorf("delete products: %w", err)
		}
	}
	return nil
}

// EnsurePartitions 幂等地创建商店、分类与分区行。
func (s *PGStore) EnsurePartitions(ctx context.Context, pairs []model.Partition) error {
	if len(pairs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, p := range pairs {
		b.Queue(`INSERT INTO stores (key, name, website_url) VALUES ($1,$2,$3) ON CONFLICT (key) DO NOTHING`,
			string(p.Store), p.Store.DisplayName(), p.Store.WebsiteURL())
		b.Queue(`INSERT INTO categories (type) VALUES ($1) ON CONFLICT (type) DO NOTHING`, string(p.Category))
		b.Queue(`INSERT INTO store_categories (store_key, category_type, original_category_name) VALUES ($1,$2,$3)
			ON CONFLICT (store_key, category_type) DO NOTHING`,
			string(p.Store), string(p.Category), string(p.Category))
	}
	if err := s.pool.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("seed partitions: %w", err)
	}
	return nil
}

// ListPartitions 返回所有已初始化的分区。
func (s *PGStore) ListPartitions(ctx context.Context) ([]model.Partition, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, store_key, category_type FROM store_categories ORDER BY category_type, store_key`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []model.Partition
	for rows.Next() {
		var (
			id              int64
			store, category string
		)
		if err := rows.Scan(&id, &store, &category); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		out = append(out, model.Partition{ID: uint(id), Store: model.StoreKey(store), Category: model.CategoryType(category)})
	}
	return out, rows.Err()
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func isPGDuplicate(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == pgUniqueViolation
}
