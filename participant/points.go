package participant

import (
	"context"
	"database/sql"
	"fmt"

	"ordersaga/errors"
	"ordersaga/participant/ledger"
	"ordersaga/saga"
)

// PointEffects 积分参与者的本地副作用
type PointEffects struct {
	db     *sql.DB
	ledger *ledger.SQLLedger
	table  string
}

// NewPointEffects 创建积分副作用
func NewPointEffects(db *sql.DB, l *ledger.SQLLedger, table string) *PointEffects {
	if table == "" {
		table = "point_accounts"
	}
	return &PointEffects{db: db, ledger: l, table: table}
}

// EnsureTable 确保积分账户表存在
func (e *PointEffects) EnsureTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id INTEGER PRIMARY KEY,
			balance INTEGER NOT NULL CHECK (balance >= 0)
		)`, e.table)
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create point account table: %w", err)
	}
	return nil
}

// Seed 写入积分余额（测试与示例用）
func (e *PointEffects) Seed(ctx context.Context, userID, balance int64) error {
	insertSQL := fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (user_id, balance) VALUES (?, ?)`, e.table)
	_, err := e.db.ExecContext(ctx, insertSQL, userID, balance)
	return err
}

// Balance 查询积分余额（测试用）
func (e *PointEffects) Balance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	selectSQL := fmt.Sprintf(`SELECT balance FROM %s WHERE user_id = ?`, e.table)
	err := e.db.QueryRowContext(ctx, selectSQL, userID).Scan(&balance)
	return balance, err
}

// Effects 返回命令类型到副作用的映射
func (e *PointEffects) Effects() map[string]EffectFunc {
	return map[string]EffectFunc{
		saga.CommandUsePoint:    e.use,
		saga.CommandRefundPoint: e.refund,
	}
}

// use 扣减积分
func (e *PointEffects) use(ctx context.Context, cmd *saga.SagaCommand) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin point transaction: %w", err)
	}
	defer tx.Rollback()

	updateSQL := fmt.Sprintf(
		`UPDATE %s SET balance = balance - ? WHERE user_id = ? AND balance >= ?`, e.table)
	result, err := tx.ExecContext(ctx, updateSQL, cmd.Amount, cmd.UserID, cmd.Amount)
	if err != nil {
		return fmt.Errorf("use points: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("use points: %w", err)
	}
	if affected == 0 {
		return errors.NewError(errors.ErrCodeInsufficientPoint,
			fmt.Sprintf("user %d has insufficient points for %d", cmd.UserID, cmd.Amount))
	}

	if err := e.ledger.RecordTx(ctx, tx, cmd.SagaID, cmd.CommandType); err != nil {
		return err
	}
	return tx.Commit()
}

// refund 退还积分（补偿）
func (e *PointEffects) refund(ctx context.Context, cmd *saga.SagaCommand) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin point transaction: %w", err)
	}
	defer tx.Rollback()

	updateSQL := fmt.Sprintf(
		`UPDATE %s SET balance = balance + ? WHERE user_id = ?`, e.table)
	result, err := tx.ExecContext(ctx, updateSQL, cmd.Amount, cmd.UserID)
	if err != nil {
		return fmt.Errorf("refund points: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("refund points: %w", err)
	}
	if affected == 0 {
		// 账户不存在时退款无处可退，视为补偿失败
		return errors.NewError(errors.ErrCodeNotFound,
			fmt.Sprintf("point account %d not found", cmd.UserID))
	}

	if err := e.ledger.RecordTx(ctx, tx, cmd.SagaID, cmd.CommandType); err != nil {
		return err
	}
	return tx.Commit()
}
