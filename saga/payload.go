// Package saga 实现订单履约的 Saga 编排核心：
// 负载校验、Saga 实例状态机、命令/结果/事件消息类型与编排器。
package saga

import "fmt"

// SagaItem 一条订单行：商品规格与数量
type SagaItem struct {
	ProductVariantID int64 `json:"productVariantId"`
	Quantity         int   `json:"quantity"`
}

// OrderPayload Saga 负载（不可变值对象）
//
// 创建后不再修改；编排器据此决定需要执行哪些步骤：
//   - CouponID == nil 时跳过优惠券步骤
//   - PointsToUse <= 0 时跳过积分步骤
type OrderPayload struct {
	UserID      int64      `json:"userId"`
	Items       []SagaItem `json:"items"`
	CouponID    *int64     `json:"couponId,omitempty"`
	PointsToUse int64      `json:"pointsToUse,omitempty"`
}

// NewOrderPayload 创建并校验 Saga 负载
//
// 校验在此处快速失败，绝不推迟到远程调用：
//   - 商品列表非空
//   - 每条数量为正
//   - 积分数不为负
//
// 参数：
//   - userID: 用户ID
//   - items: 订单行列表
//   - couponID: 优惠券ID（nil 表示不使用优惠券）
//   - pointsToUse: 使用的积分数（0 表示不使用积分）
//
// 返回：
//   - *OrderPayload: 负载实例
//   - error: 校验失败错误
func NewOrderPayload(userID int64, items []SagaItem, couponID *int64, pointsToUse int64) (*OrderPayload, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrInvalidPayload)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: item list must not be empty", ErrInvalidPayload)
	}
	for i, item := range items {
		if item.ProductVariantID <= 0 {
			return nil, fmt.Errorf("%w: item %d has invalid variant id", ErrInvalidPayload, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d has non-positive quantity", ErrInvalidPayload, i)
		}
	}
	if couponID != nil && *couponID <= 0 {
		return nil, fmt.Errorf("%w: coupon id must be positive", ErrInvalidPayload)
	}
	if pointsToUse < 0 {
		return nil, fmt.Errorf("%w: points to use must not be negative", ErrInvalidPayload)
	}

	copied := make([]SagaItem, len(items))
	copy(copied, items)

	return &OrderPayload{
		UserID:      userID,
		Items:       copied,
		CouponID:    couponID,
		PointsToUse: pointsToUse,
	}, nil
}

// NeedsCoupon 是否需要优惠券步骤
func (p *OrderPayload) NeedsCoupon() bool {
	return p.CouponID != nil
}

// NeedsPoints 是否需要积分步骤
func (p *OrderPayload) NeedsPoints() bool {
	return p.PointsToUse > 0
}
