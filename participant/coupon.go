package participant

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"ordersaga/errors"
	"ordersaga/participant/ledger"
	"ordersaga/saga"
)

// CouponEffects 优惠券参与者的本地副作用
type CouponEffects struct {
	db     *sql.DB
	ledger *ledger.SQLLedger
	table  string
}

// NewCouponEffects 创建优惠券副作用
func NewCouponEffects(db *sql.DB, l *ledger.SQLLedger, table string) *CouponEffects {
	if table == "" {
		table = "coupons"
	}
	return &CouponEffects{db: db, ledger: l, table: table}
}

// EnsureTable 确保优惠券表存在
func (e *CouponEffects) EnsureTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			coupon_id INTEGER PRIMARY KEY,
			user_id   INTEGER NOT NULL,
			used      INTEGER NOT NULL DEFAULT 0
		)`, e.table)
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create coupon table: %w", err)
	}
	return nil
}

// Seed 写入优惠券（测试与示例用）
func (e *CouponEffects) Seed(ctx context.Context, couponID, userID int64, used bool) error {
	usedFlag := 0
	if used {
		usedFlag = 1
	}
	insertSQL := fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (coupon_id, user_id, used) VALUES (?, ?, ?)`, e.table)
	_, err := e.db.ExecContext(ctx, insertSQL, couponID, userID, usedFlag)
	return err
}

// IsUsed 查询优惠券是否已核销（测试用）
func (e *CouponEffects) IsUsed(ctx context.Context, couponID int64) (bool, error) {
	var used int
	selectSQL := fmt.Sprintf(`SELECT used FROM %s WHERE coupon_id = ?`, e.table)
	err := e.db.QueryRowContext(ctx, selectSQL, couponID).Scan(&used)
	return used == 1, err
}

// Effects 返回命令类型到副作用的映射
func (e *CouponEffects) Effects() map[string]EffectFunc {
	return map[string]EffectFunc{
		saga.CommandUseCoupon:    e.use,
		saga.CommandCancelCoupon: e.cancel,
	}
}

// use 核销优惠券
func (e *CouponEffects) use(ctx context.Context, cmd *saga.SagaCommand) error {
	if cmd.CouponID == nil {
		return errors.NewError(errors.ErrCodeCouponNotFound, "command carries no coupon id")
	}
	couponID := *cmd.CouponID

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin coupon transaction: %w", err)
	}
	defer tx.Rollback()

	updateSQL := fmt.Sprintf(
		`UPDATE %s SET used = 1 WHERE coupon_id = ? AND user_id = ? AND used = 0`, e.table)
	result, err := tx.ExecContext(ctx, updateSQL, couponID, cmd.UserID)
	if err != nil {
		return fmt.Errorf("use coupon: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("use coupon: %w", err)
	}
	if affected == 0 {
		// 区分“券不存在”与“券已用”
		var one int
		selectSQL := fmt.Sprintf(
			`SELECT 1 FROM %s WHERE coupon_id = ? AND user_id = ?`, e.table)
		scanErr := tx.QueryRowContext(ctx, selectSQL, couponID, cmd.UserID).Scan(&one)
		if stderrors.Is(scanErr, sql.ErrNoRows) {
			return errors.NewError(errors.ErrCodeCouponNotFound,
				fmt.Sprintf("coupon %d not found for user %d", couponID, cmd.UserID))
		}
		if scanErr != nil {
			return fmt.Errorf("use coupon: %w", scanErr)
		}
		return errors.NewError(errors.ErrCodeCouponAlreadyUsed,
			fmt.Sprintf("coupon %d already used", couponID))
	}

	if err := e.ledger.RecordTx(ctx, tx, cmd.SagaID, cmd.CommandType); err != nil {
		return err
	}
	return tx.Commit()
}

// cancel 撤销核销（补偿）
func (e *CouponEffects) cancel(ctx context.Context, cmd *saga.SagaCommand) error {
	if cmd.CouponID == nil {
		return errors.NewError(errors.ErrCodeCouponNotFound, "command carries no coupon id")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin coupon transaction: %w", err)
	}
	defer tx.Rollback()

	updateSQL := fmt.Sprintf(
		`UPDATE %s SET used = 0 WHERE coupon_id = ? AND user_id = ?`, e.table)
	if _, err := tx.ExecContext(ctx, updateSQL, *cmd.CouponID, cmd.UserID); err != nil {
		return fmt.Errorf("cancel coupon: %w", err)
	}

	if err := e.ledger.RecordTx(ctx, tx, cmd.SagaID, cmd.CommandType); err != nil {
		return err
	}
	return tx.Commit()
}
