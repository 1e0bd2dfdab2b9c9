package config

import (
	"fmt"
	"net/url"
	"os"

	"eazyfind/internal/model"

	"gopkg.in/yaml.v3"
)

// PartitionSource 一个分区的一个来源列表页。
type PartitionSource struct {
	Store                     model.StoreKey
	URL                       string
	RequiresCategoryInference bool
}

// Partitions 分类 -> 来源列表，启动时加载一次，之后只读。
type Partitions map[model.CategoryType][]PartitionSource

type partitionFile struct {
	Categories map[string][]struct {
		Store                     string `yaml:"store"`
		URL                       string `yaml:"url"`
		RequiresCategoryInference bool   `yaml:"requires_category_inference"`
	} `yaml:"categories"`
}

// LoadPartitions 读取并校验 YAML 分区配置。
func LoadPartitions(path string) (Partitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partitions file: %w", err)
	}
	return ParsePartitions(data)
}

// ParsePartitions 解析 YAML 分区配置。
func ParsePartitions(data []byte) (Partitions, error) {
	var raw partitionFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse partitions: %w", err)
	}

	out := make(Partitions, len(raw.Categories))
	for name, sources := range raw.Categories {
		category, err := model.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		for i, src := range sources {
			store, err := model.ParseStore(src.Store)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", category, i, err)
			}
			u, err := url.Parse(src.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("%s[%d]: invalid url %q", category, i, src.URL)
			}
			out[category] = append(out[category], PartitionSource{
				Store:                     store,
				URL:                       src.URL,
				RequiresCategoryInference: src.RequiresCategoryInference,
			})
		}
	}
	return out, nil
}

// Categories 返回已配置的分类，顺序与 model.AllCategories 一致。
func (p Partitions) Categories() []model.CategoryType {
	var out []model.CategoryType
	for _, c := range model.AllCategories() {
		if len(p[c]) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Pairs 返回所有 (store, category) 组合，用于初始化分区。
func (p Partitions) Pairs() []model.Partition {
	var out []model.Partition
	for _, c := range p.Categories() {
		seen := make(map[model.StoreKey]bool)
		for _, src := range p[c] {
			if seen[src.Store] {
				continue
			}
			seen[src.Store] = true
			out = append(out, model.Partition{Store: src.Store, Category: c})
		}
	}
	return out
}
