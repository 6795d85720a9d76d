package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ordersaga/saga"
)

// SQLStore 基于 database/sql 的 Saga 实例存储
//
// 负载以 JSON 序列化存储；MarkTimedOut 通过条件 UPDATE 的
// 受影响行数实现原子的“非终态则标记”，这是编排器与超时监控
// 之间唯一的强一致操作。
type SQLStore struct {
	db    *sql.DB
	table string
}

// NewSQLStore 创建 SQL 存储
//
// 参数：
//   - db: 数据库连接（调用方负责导入驱动，例如 modernc.org/sqlite）
//   - table: 表名（空字符串使用默认 saga_instances）
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = "saga_instances"
	}
	return &SQLStore{db: db, table: table}
}

// EnsureTable 确保表存在
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			saga_id        TEXT PRIMARY KEY,
			order_no       TEXT NOT NULL,
			user_id        INTEGER NOT NULL,
			step           TEXT NOT NULL,
			status         TEXT NOT NULL,
			payload        TEXT NOT NULL,
			failure_reason TEXT,
			started_at     TIMESTAMP NOT NULL,
			finished_at    TIMESTAMP
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create saga table: %w", err)
	}
	return nil
}

// Save 持久化新实例
func (s *SQLStore) Save(ctx context.Context, instance *saga.SagaInstance) error {
	payload, err := json.Marshal(instance.Payload)
	if err != nil {
		return fmt.Errorf("marshal saga payload: %w", err)
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO %s (saga_id, order_no, user_id, step, status, payload, failure_reason, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.ExecContext(ctx, insertSQL,
		instance.SagaID,
		instance.OrderNo,
		instance.UserID,
		string(instance.Step),
		string(instance.Status),
		string(payload),
		nullString(instance.FailureReason),
		instance.StartedAt,
		nullTime(instance.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert saga instance: %w", err)
	}
	return nil
}

// Get 按 sagaID 读取实例
func (s *SQLStore) Get(ctx context.Context, sagaID string) (*saga.SagaInstance, error) {
	selectSQL := fmt.Sprintf(`
		SELECT saga_id, order_no, user_id, step, status, payload, failure_reason, started_at, finished_at
		FROM %s WHERE saga_id = ?`, s.table)
	row := s.db.QueryRowContext(ctx, selectSQL, sagaID)

	var (
		instance      saga.SagaInstance
		step, status  string
		payloadRaw    string
		failureReason sql.NullString
		finishedAt    sql.NullTime
	)
	err := row.Scan(
		&instance.SagaID,
		&instance.OrderNo,
		&instance.UserID,
		&step,
		&status,
		&payloadRaw,
		&failureReason,
		&instance.StartedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrSagaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query saga instance: %w", err)
	}

	instance.Step = saga.Step(step)
	instance.Status = saga.Status(status)
	if failureReason.Valid {
		instance.FailureReason = failureReason.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		instance.FinishedAt = &t
	}

	var payload saga.OrderPayload
	if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal saga payload: %w", err)
	}
	instance.Payload = &payload

	return &instance, nil
}

// Update 更新实例当前步骤/状态（条件写入）
//
// WHERE 子句排除终态行：超时标记先落地时本次写入受影响行数为 0，
// 返回 ErrSagaTerminal，调用方据此放弃本次转换。
func (s *SQLStore) Update(ctx context.Context, instance *saga.SagaInstance) error {
	updateSQL := fmt.Sprintf(`
		UPDATE %s SET step = ?, status = ?, failure_reason = ?, finished_at = ?
		WHERE saga_id = ? AND status NOT IN (?, ?, ?)`, s.table)
	result, err := s.db.ExecContext(ctx, updateSQL,
		string(instance.Step),
		string(instance.Status),
		nullString(instance.FailureReason),
		nullTime(instance.FinishedAt),
		instance.SagaID,
		string(saga.StatusCompleted),
		string(saga.StatusAborted),
		string(saga.StatusTimedOut),
	)
	if err != nil {
		return fmt.Errorf("update saga instance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update saga instance: %w", err)
	}
	if affected == 0 {
		var status string
		selectSQL := fmt.Sprintf(`SELECT status FROM %s WHERE saga_id = ?`, s.table)
		scanErr := s.db.QueryRowContext(ctx, selectSQL, instance.SagaID).Scan(&status)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return saga.ErrSagaNotFound
		}
		if scanErr != nil {
			return fmt.Errorf("update saga instance: %w", scanErr)
		}
		return saga.ErrSagaTerminal
	}
	return nil
}

// MarkTimedOut 原子地将非终态实例标记为 TIMED_OUT
//
// 条件 UPDATE：status 不在终态集合内才生效；受影响行数为 1
// 表示本次调用完成了终态转换。step 保持不变，供补偿计算使用。
func (s *SQLStore) MarkTimedOut(ctx context.Context, sagaID, reason string) (bool, error) {
	updateSQL := fmt.Sprintf(`
		UPDATE %s SET status = ?, failure_reason = ?, finished_at = ?
		WHERE saga_id = ? AND status NOT IN (?, ?, ?)`, s.table)
	result, err := s.db.ExecContext(ctx, updateSQL,
		string(saga.StatusTimedOut),
		reason,
		time.Now(),
		sagaID,
		string(saga.StatusCompleted),
		string(saga.StatusAborted),
		string(saga.StatusTimedOut),
	)
	if err != nil {
		return false, fmt.Errorf("mark saga timed out: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark saga timed out: %w", err)
	}
	return affected == 1, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
