package api

import (
	"context"
	"errors"
	"fmt"

	"eazyfind/internal/config"
	"eazyfind/internal/model"
)

// PartitionSeeder 目录初始化能力，由 catalog.Seeder 实现。
type PartitionSeeder interface {
	EnsurePartitions(ctx context.Context, pairs []model.Partition) error
	ListPartitions(ctx context.Context) ([]model.Partition, error)
}

var errNoSeeder = errors.New("catalog seeder not configured")

// SeedPartitions 确保分区配置中的每个 (store, category) 在目录中都有对应行。
// 已存在的行保持不变，返回配置中的分区数。
func SeedPartitions(ctx context.Context, seeder PartitionSeeder, partitions config.Partitions) (int, error) {
	if seeder == nil {
		return 0, errNoSeeder
	}
	pairs := partitions.Pairs()
	if len(pairs) == 0 {
		return 0, nil
	}
	if err := seeder.EnsurePartitions(ctx, pairs); err != nil {
		return 0, fmt.Errorf("ensure partitions: %w", err)
	}
	return len(pairs), nil
}
