package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLLedger 基于 database/sql 的幂等台账
//
// (saga_id, command_type) 为联合主键；业务效果与台账行
// 通过 RecordTx 在同一本地事务中写入。
type SQLLedger struct {
	db    *sql.DB
	table string
}

// NewSQLLedger 创建 SQL 台账
//
// 参数：
//   - db: 数据库连接
//   - table: 表名（空字符串使用默认 processed_commands）
func NewSQLLedger(db *sql.DB, table string) *SQLLedger {
	if table == "" {
		table = "processed_commands"
	}
	return &SQLLedger{db: db, table: table}
}

// EnsureTable 确保表存在
func (l *SQLLedger) EnsureTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			saga_id      TEXT NOT NULL,
			command_type TEXT NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (saga_id, command_type)
		)`, l.table)
	if _, err := l.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Contains 检查命令是否已应用
func (l *SQLLedger) Contains(ctx context.Context, sagaID, commandType string) (bool, error) {
	selectSQL := fmt.Sprintf(
		`SELECT 1 FROM %s WHERE saga_id = ? AND command_type = ?`, l.table)
	var one int
	err := l.db.QueryRowContext(ctx, selectSQL, sagaID, commandType).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

// Record 在独立事务中记录命令已应用
func (l *SQLLedger) Record(ctx context.Context, sagaID, commandType string) error {
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (saga_id, command_type, processed_at) VALUES (?, ?, ?)`, l.table)
	if _, err := l.db.ExecContext(ctx, insertSQL, sagaID, commandType, time.Now()); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// RecordTx 在调用方事务中记录命令已应用
//
// 与业务效果同事务写入是幂等保证的核心：事务中途失败时
// 效果与台账行都不存在，重试安全。
func (l *SQLLedger) RecordTx(ctx context.Context, tx *sql.Tx, sagaID, commandType string) error {
	insertSQL := fmt.Sprintf(
		`INSERT INTO %s (saga_id, command_type, processed_at) VALUES (?, ?, ?)`, l.table)
	if _, err := tx.ExecContext(ctx, insertSQL, sagaID, commandType, time.Now()); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}
