package participant

import (
	"context"
	"database/sql"
	"fmt"

	"ordersaga/errors"
	"ordersaga/participant/ledger"
	"ordersaga/saga"
)

// InventoryEffects 库存参与者的本地副作用
//
// 扣减与恢复都在单个本地事务中完成全部订单行并写入台账行；
// 任一行库存不足则整个事务回滚，重试安全。
type InventoryEffects struct {
	db     *sql.DB
	ledger *ledger.SQLLedger
	table  string
}

// NewInventoryEffects 创建库存副作用
//
// 参数：
//   - db: 数据库连接
//   - l: 同库的 SQL 台账（台账行与效果同事务写入）
//   - table: 库存表名（空字符串使用默认 stock）
func NewInventoryEffects(db *sql.DB, l *ledger.SQLLedger, table string) *InventoryEffects {
	if table == "" {
		table = "stock"
	}
	return &InventoryEffects{db: db, ledger: l, table: table}
}

// EnsureTable 确保库存表存在
func (e *InventoryEffects) EnsureTable(ctx context.Context) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			variant_id INTEGER PRIMARY KEY,
			quantity   INTEGER NOT NULL CHECK (quantity >= 0)
		)`, e.table)
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create stock table: %w", err)
	}
	return nil
}

// Seed 写入库存（测试与示例用）
func (e *InventoryEffects) Seed(ctx context.Context, variantID int64, quantity int) error {
	insertSQL := fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (variant_id, quantity) VALUES (?, ?)`, e.table)
	_, err := e.db.ExecContext(ctx, insertSQL, variantID, quantity)
	return err
}

// Quantity 查询库存余量（测试用）
func (e *InventoryEffects) Quantity(ctx context.Context, variantID int64) (int, error) {
	var quantity int
	selectSQL := fmt.Sprintf(`SELECT quantity FROM %s WHERE variant_id = ?`, e.table)
	err := e.db.QueryRowContext(ctx, selectSQL, variantID).Scan(&quantity)
	return quantity, err
}

// Effects 返回命令类型到副作用的映射
func (e *InventoryEffects) Effects() map[string]EffectFunc {
	return map[string]EffectFunc{
		saga.CommandDeductStock:  e.deduct,
		saga.CommandRestoreStock: e.restore,
	}
}

// deduct 扣减库存
func (e *InventoryEffects) deduct(ctx context.Context, cmd *saga.SagaCommand) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deduct transaction: %w", err)
	}
	defer tx.Rollback()

	updateSQL := fmt.Sprintf(
		`UPDATE %s SET quantity = quantity - ? WHERE variant_id = ? AND quantity >= ?`, e.table)
	for _, item := range cmd.Items {
		result, err := tx.ExecContext(ctx, updateSQL, item.Quantity, item.ProductVariantID, item.Quantity)
		if err != nil {
			return fmt.Errorf("deduct stock: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("deduct stock: %w", err)
		}
		if affected == 0 {
			return errors.NewError(errors.ErrCodeOutOfStock,
				fmt.Sprintf("insufficient stock for variant %d", item.ProductVariantID))
		}
	}

	if err := e.ledger.RecordTx(ctx, tx, cmd.SagaID, cmd.CommandType); err != nil {
		return err
	}
	return tx.Commit()
}

// restore 恢复库存（补偿）
func (e *InventoryEffects) restore(ctx context.Context, cmd *saga.SagaCommand) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore transaction: %w", err)
	}
	defer tx.Rollback()

	updateSQL := fmt.Sprintf(
		`UPDATE %s SET quantity = quantity + ? WHERE variant_id = ?`, e.table)
	for _, item := range cmd.Items {
		if _, err := tx.ExecContext(ctx, updateSQL, item.Quantity, item.ProductVariantID); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
	}

	if err := e.ledger.RecordTx(ctx, tx, cmd.SagaID, cmd.CommandType); err != nil {
		return err
	}
	return tx.Commit()
}
