package config

import (
	"testing"

	"eazyfind/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePartitions = `
categories:
  xbox:
    - store: vlv
      url: https://vlv.am/category/consoles
      requires_category_inference: true
  Laptops:
    - store: Vega
      url: https://vega.am/notebooks
    - store: RedStore
      url: https://redstore.am/laptops
    - store: Vega
      url: https://vega.am/gaming-notebooks
`

func TestParsePartitions(t *testing.T) {
	p, err := ParsePartitions([]byte(samplePartitions))
	require.NoError(t, err)

	assert.Equal(t, []model.CategoryType{model.CategoryLaptops, model.CategoryXbox}, p.Categories())
	require.Len(t, p[model.CategoryXbox], 1)
	assert.Equal(t, model.StoreVLV, p[model.CategoryXbox][0].Store)
	assert.True(t, p[model.CategoryXbox][0].RequiresCategoryInference)
	assert.Len(t, p[model.CategoryLaptops], 3)
}

func TestPartitionsPairs_DedupesStores(t *testing.T) {
	p, err := ParsePartitions([]byte(samplePartitions))
	require.NoError(t, err)

	assert.Equal(t, []model.Partition{
		{Store: model.StoreVega, Category: model.CategoryLaptops},
		{Store: model.StoreRedStore, Category: model.CategoryLaptops},
		{Store: model.StoreVLV, Category: model.CategoryXbox},
	}, p.Pairs())
}

func TestParsePartitions_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown category", "categories:\n  Toasters:\n    - store: Vega\n      url: https://vega.am/x\n", "unknown category"},
		{"unknown store", "categories:\n  Laptops:\n    - store: Amazon\n      url: https://amazon.com/x\n", "unknown store"},
		{"relative url", "categories:\n  Laptops:\n    - store: Vega\n      url: /notebooks\n", "invalid url"},
		{"bad yaml", "categories: [", "parse partitions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePartitions([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadPartitions_SampleFile(t *testing.T) {
	p, err := LoadPartitions("../../configs/partitions.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Pairs())
}
