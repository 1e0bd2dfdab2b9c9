package model

import (
	"fmt"
	"strings"
)

// CategoryType 目录中的商品分类。
type CategoryType string

const (
	CategoryLaptops                  CategoryType = "Laptops"
	CategorySmartphones              CategoryType = "Smartphones"
	CategoryMonitors                 CategoryType = "Monitors"
	CategoryTVs                      CategoryType = "TVs"
	CategoryTablets                  CategoryType = "Tablets"
	CategoryWatches                  CategoryType = "Watches"
	CategoryAllInOneComputers        CategoryType = "AllInOneComputers"
	CategoryStationaryComputers      CategoryType = "StationaryComputers"
	CategoryXbox                     CategoryType = "Xbox"
	CategoryNintendoSwitch           CategoryType = "NintendoSwitch"
	CategoryPlayStation              CategoryType = "PlayStation"
	CategoryHeadsets                 CategoryType = "Headsets"
	CategoryMice                     CategoryType = "Mice"
	CategoryKeyboards                CategoryType = "Keyboards"
	CategoryAirConditioners          CategoryType = "AirConditioners"
	CategoryRefrigerators            CategoryType = "Refrigerators"
	CategoryBuiltInRefrigerators     CategoryType = "BuiltInRefrigerators"
	CategorySideBySideRefrigerators  CategoryType = "SideBySideRefrigerators"
	CategoryWineRefrigerators        CategoryType = "WineRefrigerators"
	CategoryRefrigeratorsAccessories CategoryType = "RefrigeratorsAccessories"
)

var allCategories = []CategoryType{
	CategoryLaptops,
	CategorySmartphones,
	CategoryMonitors,
	CategoryTVs,
	CategoryTablets,
	CategoryWatches,
	CategoryAllInOneComputers,
	CategoryStationaryComputers,
	CategoryXbox,
	CategoryNintendoSwitch,
	CategoryPlayStation,
	CategoryHeadsets,
	CategoryMice,
	CategoryKeyboards,
	CategoryAirConditioners,
	CategoryRefrigerators,
	CategoryBuiltInRefrigerators,
	CategorySideBySideRefrigerators,
	CategoryWineRefrigerators,
	CategoryRefrigeratorsAccessories,
}

// AllCategories 返回所有已知分类（按声明顺序）。
func AllCategories() []CategoryType {
	out := make([]CategoryType, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory 按名称解析分类，忽略大小写。
func ParseCategory(s string) (CategoryType, error) {
	s = strings.TrimSpace(s)
	for _, c := range allCategories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Valid 判断分类是否为已知值。
func (c CategoryType) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

func (c CategoryType) String() string { return string(c) }

// StoreKey 商店标识。
type StoreKey string

const (
	StoreRedStore      StoreKey = "RedStore"
	StoreThreeDPlanet  StoreKey = "ThreeDPlanet"
	StoreYerevanMobile StoreKey = "YerevanMobile"
	StoreZigzag        StoreKey = "Zigzag"
	StoreVega          StoreKey = "Vega"
	StoreVdComputers   StoreKey = "VdComputers"
	StoreVLV           StoreKey = "VLV"
	StoreMobileCentre  StoreKey = "MobileCentre"
	StoreVenus         StoreKey = "Venus"
	StoreAllCell       StoreKey = "AllCell"
)

var allStores = []StoreKey{
	StoreRedStore,
	StoreThreeDPlanet,
	StoreYerevanMobile,
	StoreZigzag,
	StoreVega,
	StoreVdComputers,
	StoreVLV,
	StoreMobileCentre,
	StoreVenus,
	StoreAllCell,
}

// AllStores 返回所有已知商店。
func AllStores() []StoreKey {
	out := make([]StoreKey, len(allStores))
	copy(out, allStores)
	return out
}

// ParseStore 按名称解析商店标识，忽略大小写。
func ParseStore(s string) (StoreKey, error) {
	s = strings.TrimSpace(s)
	for _, k := range allStores {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown store %q", s)
}

func (k StoreKey) String() string { return string(k) }

// DisplayName 返回用于展示的商店名称。
func (k StoreKey) DisplayName() string {
	switch k {
	case StoreThreeDPlanet:
		return "3D Planet"
	case StoreYerevanMobile:
		return "Yerevan Mobile"
	case StoreVdComputers:
		return "VD Computers"
	case StoreMobileCentre:
		return "Mobile Centre"
	default:
		return string(k)
	}
}

var storeWebsites = map[StoreKey]string{
	StoreRedStore:      "https://redstore.am",
	StoreThreeDPlanet:  "https://3dplanet.am",
	StoreYerevanMobile: "https://yerevanmobile.am",
	StoreZigzag:        "https://zigzag.am",
	StoreVega:          "https://vega.am",
	StoreVdComputers:   "https://vdcomputers.am",
	StoreVLV:           "https://vlv.am",
	StoreMobileCentre:  "https://mobilecentre.am",
	StoreVenus:         "https://venus.am",
	StoreAllCell:       "https://allcell.am",
}

// WebsiteURL 返回商店首页地址。
func (k StoreKey) WebsiteURL() string { return storeWebsites[k] }
