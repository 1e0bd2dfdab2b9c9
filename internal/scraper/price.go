package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceNoiseRe    = regexp.MustCompile(`[^\d.,]`)
	priceFractionRe = regexp.MustCompile(`[.,]\d{1,2}$`)
)

// ParsePrice 将商店价格文本解析为整数价格，无法解析时返回 0。
//
// 目标市场的价格没有小数货币单位："45,000 ֏" -> 45000，"1.250.000" -> 1250000，"N/A" -> 0。
func ParsePrice(txt string) int64 {
	v, err := parsePrice(txt)
	if err != nil {
		return 0
	}
	return v
}

// parsePrice 去掉数字与分隔符以外的字符，再去掉千分位分隔符后解析。
// 末尾 1~2 位的分隔部分（如 "450000.00"）视为小数并丢弃。
func parsePrice(txt string) (int64, error) {
	cleaned := priceNoiseRe.ReplaceAllString(txt, "")
	cleaned = strings.Trim(cleaned, ".,")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in %q", txt)
	}
	cleaned = priceFractionRe.ReplaceAllString(cleaned, "")
	cleaned = strings.NewReplacer(",", "", ".", "").Replace(cleaned)

	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", txt, err)
	}
	return v, nil
}
