package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "普通文本不变", input: "第一章 总则", want: "第一章 总则"},
		{name: "全角空格与不换行空格", input: "考核\u3000细则\u00A0v1", want: "考核 细则 v1"},
		{name: "零宽字符与BOM", input: "\uFEFF考\u200B核", want: "考核"},
		{name: "控制字符", input: "a\x00b\x07c", want: "abc"},
		{name: "合并空白", input: "a  \t b   \n\n\n\n c", want: "a b\n\nc"},
		{name: "统一换行符", input: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "非法UTF-8", input: "a\xffb", want: "ab"},
		{name: "NFC归一化", input: "e\u0301", want: "\u00e9"},
		{name: "只有空白", input: " \u3000\n\t ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}
