// Package web holds the embedded browser page.
package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html
var content embed.FS

// FS 返回内嵌的前端文件
func FS() fs.FS {
	return content
}
