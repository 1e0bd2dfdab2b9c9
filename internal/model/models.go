package model

import (
	"time"
)

// Store 表示一个被抓取的电商网站。
type Store struct {
	Key        StoreKey  `gorm:"primaryKey;type:varchar(64)"` // 商店标识
	Name       string    `gorm:"not null"`                    // 展示名称
	WebsiteURL string    // 网站首页
	CreatedAt  time.Time // 创建时间

	StoreCategories []StoreCategory `gorm:"foreignKey:StoreKey"`
}

// Category 表示目录中的一个分类。
type Category struct {
	Type      CategoryType `gorm:"primaryKey;type:varchar(64)"` // 分类名称
	CreatedAt time.Time    // 创建时间

	StoreCategories []StoreCategory `gorm:"foreignKey:CategoryType"`
}

// StoreCategory 是商店与分类的组合，即一个对账分区。
//
// 由配置/种子步骤创建，对抓取子系统只读。
type StoreCategory struct {
	ID                   uint         `gorm:"primaryKey"`                                                        // 分区 ID
	StoreKey             StoreKey     `gorm:"type:varchar(64);not null;uniqueIndex:idx_store_category,priority:1"` // 商店
	CategoryType         CategoryType `gorm:"type:varchar(64);not null;uniqueIndex:idx_store_category,priority:2"` // 分类
	OriginalCategoryName string       // 商店自身的分类名称
	CreatedAt            time.Time    // 创建时间

	Products []Product `gorm:"foreignKey:StoreCategoryID"`
}

// Product 表示目录中持久化的商品（CatalogItem）。
//
// URL 在整个目录中唯一，也是跨运行的身份标识。
type Product struct {
	ID              uint       `gorm:"primaryKey"`                             // 内部 ID
	StoreCategoryID uint       `gorm:"not null;index"`                         // 所属分区
	Name            string     `gorm:"type:varchar(512);not null"`             // 商品名称
	Price           int64      `gorm:"not null;default:0"`                     // 价格（无小数货币单位）
	URL             string     `gorm:"type:varchar(768);uniqueIndex;not null"` // 商品详情页链接
	ImageURL        string     `gorm:"type:varchar(1024)"`                     // 主图链接
	IsDeleted       bool       `gorm:"not null;default:false;index"`           // 软删除标记
	LastSyncedAt    time.Time  // 最近一次内容变化的同步时间
	CreatedAt       time.Time  // 首次抓取时间
	DeletionDate    *time.Time // 软删除时间
}

// Partition 标识一次对账的 (store, category) 单元。
type Partition struct {
	ID       uint // 对应 StoreCategory.ID
	Store    StoreKey
	Category CategoryType
}

func (p Partition) String() string {
	return string(p.Store) + "/" + string(p.Category)
}
