package common

import (
	"regexp"
)

// 字母开头，只能包含字母、数字、下划线
var identifierRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateIdentifier 校验集合名 / 表名 / schema 名
// Milvus 集合名规范为 1-255 字符；PostgreSQL 标识符上限 63 字节，这里取两者中较严的一方
func ValidateIdentifier(name string) bool {
	if len(name) == 0 || len(name) > 63 {
		return false
	}
	return identifierRe.MatchString(name)
}
