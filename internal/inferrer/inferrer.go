// Package inferrer 根据商品名称中的关键词推断商品分类。
//
// 用于商店只有一个混合列表页的情况：同一次抓取结果按名称分流到多个分类分区。
package inferrer

import (
	"strings"

	"eazyfind/internal/model"

	"golang.org/x/text/cases"
)

// Rule 一个分类及其关键词（大小写不敏感的子串匹配）。
type Rule struct {
	Category model.CategoryType
	Keywords []string
}

// DefaultRules 默认关键词表，按顺序匹配，先命中者优先。
//
// "sony" 同时出现在耳机与 PlayStation 中，按顺序归为耳机。
var DefaultRules = []Rule{
	{Category: model.CategoryHeadsets, Keywords: []string{
		"headset", "headphone", "noise", "jbl", "bud", " ear ", "earphone", "in-ear", "over-ear",
		"tour", "tune", "beam", "sony", "bose", "haylou", "pods", "soundcore", "anker", "marshall", "tws", "beats",
	}},
	{Category: model.CategoryMice, Keywords: []string{
		"mouse", "mice", "m185", "m170", "m720", "g203", "g305", "razer viper", "logitech m", "logitech g",
		"canyon", "pulsefire", "glorious model o", "xtrfy", "steelseries rival", "corsair harpoon", "dpiswitch",
	}},
	{Category: model.CategoryKeyboards, Keywords: []string{"keyboard", "kxx", "kb", "rapoo", "redragon", "mk", "mech"}},
	{Category: model.CategoryPlayStation, Keywords: []string{"playstation", "sony"}},
	{Category: model.CategoryXbox, Keywords: []string{"xbox"}},
	{Category: model.CategoryNintendoSwitch, Keywords: []string{"nintendo", "switch"}},
}

// Inferrer 有序关键词分类器，可并发使用。
type Inferrer struct {
	rules []Rule
}

// New 创建分类器，关键词预先做大小写折叠。
func New(rules []Rule) *Inferrer {
	caser := cases.Fold()
	folded := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k == "" {
				continue
			}
			kws = append(kws, caser.String(k))
		}
		folded = append(folded, Rule{Category: r.Category, Keywords: kws})
	}
	return &Inferrer{rules: folded}
}

// Default 使用 DefaultRules 创建分类器。
func Default() *Inferrer { return New(DefaultRules) }

// Infer 返回名称命中的第一个分类，未命中时 ok 为 false。
func (i *Inferrer) Infer(name string) (model.CategoryType, bool) {
	return i.infer(cases.Fold(), name)
}

func (i *Inferrer) infer(caser cases.Caser, name string) (model.CategoryType, bool) {
	folded := caser.String(name)
	for _, r := range i.rules {
		for _, k := range r.Keywords {
			if strings.Contains(folded, k) {
				return r.Category, true
			}
		}
	}
	return "", false
}

// Filter 保留推断为 target 的商品。
// 名称未命中任何关键词时，退回使用商品自带的 CategoryHint。
func (i *Inferrer) Filter(items []model.ScrapedItem, target model.CategoryType) []model.ScrapedItem {
	caser := cases.Fold()
	out := make([]model.ScrapedItem, 0, len(items))
	for _, item := range items {
		category, ok := i.infer(caser, item.Name)
		if !ok {
			category = item.CategoryHint
		}
		if category == target {
			out = append(out, item)
		}
	}
	return out
}
