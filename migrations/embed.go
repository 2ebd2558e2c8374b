// Package migrations はスキーママイグレーションのSQLファイルを埋め込む。
package migrations

import (
	"embed"
	"io/fs"
	"os"
)

// FS は {version}_{name}.sql 形式のマイグレーションファイル。
//
//go:embed *.sql
var FS embed.FS

// Source は dir が指定されていればそのディレクトリを、なければ埋め込みのファイルを返す。
func Source(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return FS
}
