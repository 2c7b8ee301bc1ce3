package common

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// 多个空格/制表符合并为一个空格
	spaceRe = regexp.MustCompile(`[ \t\f\v]+`)
	// 行首行尾空白
	edgeSpaceRe = regexp.MustCompile(` *\n *`)
	// 3个及以上换行合并为两个，保留段落分隔
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// 零宽字符
var zeroWidthRunes = map[rune]bool{
	'\u200B': true, // Zero Width Space
	'\u200C': true, // Zero Width Non-Joiner
	'\u200D': true, // Zero Width Joiner
	'\uFEFF': true, // BOM
	'\u2060': true, // Word Joiner
	'\u180E': true, // Mongolian Vowel Separator
}

// 非标准空格，统一替换为普通空格
var nonStandardSpaces = map[rune]bool{
	'\u00A0': true, // Non-breaking space
	'\u1680': true,
	'\u2000': true,
	'\u2001': true,
	'\u2002': true,
	'\u2003': true,
	'\u2004': true,
	'\u2005': true,
	'\u2006': true,
	'\u2007': true,
	'\u2008': true,
	'\u2009': true,
	'\u200A': true,
	'\u202F': true,
	'\u205F': true,
	'\u3000': true, // 全角空格
}

// CleanText 清洗抽取出的文本，供分块和向量化使用
// 非法 UTF-8 字节被丢弃；控制字符（保留 \n \t）和零宽字符被移除；
// 做 NFC 归一化后合并多余空白
func CleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F:
		case zeroWidthRunes[r]:
		case nonStandardSpaces[r]:
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	s = norm.NFC.String(b.String())

	s = spaceRe.ReplaceAllString(s, " ")
	s = edgeSpaceRe.ReplaceAllString(s, "\n")
	s = newlineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
