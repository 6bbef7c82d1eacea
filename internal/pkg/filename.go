package pkg

import (
	"path/filepath"
	"strings"
)

// SanitizeFilename 把用户上传的文件名收敛为安全的 ASCII 名字。
// 路径分隔符视为空白，只保留 [A-Za-z0-9._-]，连续空白折叠为 "_"，首尾的 "." 和 "_" 去掉。
// 结果可能为空串。
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", " ")
	name = strings.ReplaceAll(name, "\\", " ")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ' || r == '\t':
			b.WriteRune(' ')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), "_")
	return strings.Trim(cleaned, "._")
}

// SplitExt 返回文件名最后一个 "." 之后的扩展名（不含点），没有则返回空串
func SplitExt(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimPrefix(ext, ".")
}
