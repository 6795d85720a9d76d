package collab

import (
	"context"
	"fmt"
)

// PointBalance 积分服务返回的账户余额
type PointBalance struct {
	UserID  int64 `json:"userId"`
	Balance int64 `json:"balance"`
}

// BalanceClient 积分余额查询客户端
type BalanceClient struct {
	http *httpClient
}

// NewBalanceClient 创建积分余额客户端
func NewBalanceClient(cfg ClientConfig) *BalanceClient {
	if cfg.Name == "" {
		cfg.Name = "balance"
	}
	return &BalanceClient{http: newHTTPClient(cfg)}
}

// GetBalance 查询用户积分余额
//
// 返回:
//   - int64: 当前余额
//   - error: 账户不存在时错误码为 NOT_FOUND
func (c *BalanceClient) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance PointBalance
	path := fmt.Sprintf("/api/v1/points/%d/balance", userID)
	if err := c.http.getJSON(ctx, path, &balance); err != nil {
		return 0, err
	}
	return balance.Balance, nil
}
