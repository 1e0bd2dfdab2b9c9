package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 拦截页特征
var (
	blockedTitles = []string{
		"just a moment",
		"attention required",
		"access denied",
		"403 forbidden",
		"429 too many requests",
		"verify you are human",
	}
	challengeMarkers = []string{
		"challenge-platform",
		"cf-browser-verification",
		`id="challenge-form"`,
		`id="challenge-running"`,
		"challenges.cloudflare.com",
		"cf-turnstile",
	}
	captchaMarkers = []string{
		"g-recaptcha",
		"h-captcha",
		"verify you are human",
	}
)

// 超过该长度的页面不再按验证码特征判断，避免商品页脚本误报
const captchaPageMaxLen = 32 << 10

// DetectBlockType 检测响应体是否为拦截页，返回拦截类型，正常页面返回空字符串。
// 空响应体不算拦截：列表页没有商品块即分页结束。
func DetectBlockType(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	lower := strings.ToLower(string(body))
	title := pageTitle(body)
	for _, hint := range blockedTitles {
		if strings.Contains(title, hint) {
			switch {
			case strings.Contains(hint, "403") || hint == "access denied":
				return "403_forbidden"
			case strings.Contains(hint, "429"):
				return "429_rate_limited"
			}
			return "cloudflare_challenge"
		}
	}
	if containsAny(lower, challengeMarkers) {
		return "cloudflare_challenge"
	}
	if len(lower) < captchaPageMaxLen && containsAny(lower, captchaMarkers) {
		return "captcha"
	}
	return ""
}

// pageTitle 返回小写的 <title> 文本。
func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
}

// containsAny 检查文本是否包含任意一个关键词
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
