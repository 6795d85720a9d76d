package collab

import (
	"context"
)

// PaymentConfirmation 支付服务返回的确认结果
type PaymentConfirmation struct {
	PaymentNo string `json:"paymentNo"`
	OrderNo   string `json:"orderNo"`
	// Status 支付状态，SUCCEEDED 或 FAILED
	Status string `json:"status"`
	// FailureCode 失败时的业务错误码
	FailureCode string `json:"failureCode,omitempty"`
}

// Succeeded 支付是否成功
func (p *PaymentConfirmation) Succeeded() bool {
	return p.Status == "SUCCEEDED"
}

// PaymentClient 支付服务客户端
type PaymentClient struct {
	http *httpClient
}

// NewPaymentClient 创建支付客户端
func NewPaymentClient(cfg ClientConfig) *PaymentClient {
	if cfg.Name == "" {
		cfg.Name = "payment"
	}
	return &PaymentClient{http: newHTTPClient(cfg)}
}

type confirmPaymentRequest struct {
	OrderNo string `json:"orderNo"`
	UserID  int64  `json:"userId"`
	// Amount 应付金额，单位为最小货币单位（分）
	Amount int64 `json:"amount"`
}

// Confirm 请求支付服务确认扣款
//
// 支付被业务性拒绝（余额不足等）时返回 Status=FAILED 的确认结果而非 error，
// error 仅表示调用本身失败（不可达、熔断、非 2xx）。
func (c *PaymentClient) Confirm(ctx context.Context, orderNo string, userID, amount int64) (*PaymentConfirmation, error) {
	req := confirmPaymentRequest{OrderNo: orderNo, UserID: userID, Amount: amount}
	var confirmation PaymentConfirmation
	if err := c.http.postJSON(ctx, "/api/v1/payments/confirm", req, &confirmation); err != nil {
		return nil, err
	}
	return &confirmation, nil
}
