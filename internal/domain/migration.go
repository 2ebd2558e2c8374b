package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はスキーママイグレーションを表すドメインモデル
type Migration struct {
	Version   string          // バージョン（例: "001"）
	Name      string          // ファイル名から抽出した名前（例: "create_access_keys"）
	Path      string          // マイグレーションソース内のパス
	AppliedAt *time.Time      // 未適用の場合はnil
	Status    MigrationStatus
}

// IsApplied は適用済みかを返す。
func (m *Migration) IsApplied() bool {
	return m.Status == MigrationStatusApplied
}
