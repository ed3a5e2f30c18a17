package chat

import (
	"regexp"
	"strings"
)

// DefaultMaxMessageLength 用户消息最大字符数
const DefaultMaxMessageLength = 2000

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

var injectionPatterns = compilePatterns(
	`ignore\s+(previous|above|all)\s+(instructions?|prompts?)`,
	`disregard\s+(previous|above|all)`,
	`forget\s+(everything|all|previous)`,
	`you\s+are\s+now\s+a`,
	`act\s+as\s+(if\s+you\s+are|a)`,
	`pretend\s+(to\s+be|you\s+are)`,
	`system\s*:\s*`,
	`<\|.*?\|>`,
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Sanitize 截断到 maxLen 个字符，去除控制字符（保留 \t \n \r）并去掉首尾空白
func Sanitize(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if r := []rune(text); len(r) > maxLen {
		text = string(r[:maxLen])
	}
	text = controlChars.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// DetectInjection 检测常见的提示词注入写法
func DetectInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
