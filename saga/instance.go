package saga

import (
	"time"
)

// Step Saga 当前等待的步骤
type Step string

const (
	// StepProduct 等待库存扣减结果
	StepProduct Step = "PRODUCT"

	// StepCoupon 等待优惠券核销结果
	StepCoupon Step = "COUPON"

	// StepPoint 等待积分扣减结果
	StepPoint Step = "POINT"

	// StepPayment 资源已锁定，等待支付结果
	StepPayment Step = "PAYMENT"

	// StepDone 终态，不再等待任何步骤
	StepDone Step = "DONE"
)

// Status Saga 状态枚举
type Status string

const (
	// StatusStarted 已启动，库存命令已发出
	StatusStarted Status = "STARTED"

	// StatusProductOK 库存扣减成功
	StatusProductOK Status = "PRODUCT_OK"

	// StatusCouponOK 优惠券核销成功
	StatusCouponOK Status = "COUPON_OK"

	// StatusPointOK 积分扣减成功
	StatusPointOK Status = "POINT_OK"

	// StatusResourcesSecured 全部资源锁定成功，等待支付
	StatusResourcesSecured Status = "RESOURCES_SECURED"

	// StatusCompleted 支付成功，Saga 完成（终态）
	StatusCompleted Status = "COMPLETED"

	// StatusAborted 参与者失败导致中止（终态）
	StatusAborted Status = "ABORTED"

	// StatusTimedOut 超时监控强制失败（终态）
	StatusTimedOut Status = "TIMED_OUT"
)

// IsTerminal 是否为终态
//
// 终态实例不再被修改（只追加审计记录语义）。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusAborted, StatusTimedOut:
		return true
	default:
		return false
	}
}

// SagaInstance Saga 实例（编排器独占持有，每次下单一行）
//
// 不变式：
//   - Step 与 Payload 共同决定哪些补偿是合法的：只有已获 _OK 的步骤需要补偿
//   - FinishedAt 仅在进入终态时设置一次
//   - 终态实例不再被修改
type SagaInstance struct {
	SagaID        string        `json:"saga_id" db:"saga_id"`
	OrderNo       string        `json:"order_no" db:"order_no"`
	UserID        int64         `json:"user_id" db:"user_id"`
	Step          Step          `json:"step" db:"step"`
	Status        Status        `json:"status" db:"status"`
	Payload       *OrderPayload `json:"payload" db:"payload"`
	FailureReason string        `json:"failure_reason,omitempty" db:"failure_reason"`
	StartedAt     time.Time     `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
}

// NewSagaInstance 创建新的 Saga 实例
//
// 初始状态为 STARTED，等待库存步骤。
func NewSagaInstance(sagaID, orderNo string, payload *OrderPayload) *SagaInstance {
	return &SagaInstance{
		SagaID:    sagaID,
		OrderNo:   orderNo,
		UserID:    payload.UserID,
		Step:      StepProduct,
		Status:    StatusStarted,
		Payload:   payload,
		StartedAt: time.Now(),
	}
}

// IsTerminal 实例是否处于终态
func (s *SagaInstance) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Advance 将状态机推进到下一个待执行步骤
//
// 当前等待的步骤已成功：根据负载决定下一步，
// 跳过未请求的优惠券/积分步骤；全部完成时进入 RESOURCES_SECURED。
//
// 返回：
//   - Step: 推进后等待的步骤（StepPayment 表示资源已全部锁定）
func (s *SagaInstance) Advance() Step {
	switch s.Step {
	case StepProduct:
		s.Status = StatusProductOK
	case StepCoupon:
		s.Status = StatusCouponOK
	case StepPoint:
		s.Status = StatusPointOK
	default:
		// PAYMENT/DONE 不经由参与者结果推进
		return s.Step
	}

	switch {
	case s.Step == StepProduct && s.Payload.NeedsCoupon():
		s.Step = StepCoupon
	case s.Step != StepPoint && s.Payload.NeedsPoints():
		s.Step = StepPoint
	default:
		s.Status = StatusResourcesSecured
		s.Step = StepPayment
	}
	return s.Step
}

// CompensableSteps 返回已成功、需要补偿的步骤（按执行顺序）
//
// 当前等待的步骤（Step）之前的所有已执行步骤都已获 _OK；
// 根据负载过滤被跳过的步骤。补偿按本列表的逆序发出。
func (s *SagaInstance) CompensableSteps() []Step {
	var executed []Step
	switch s.Step {
	case StepProduct:
		// 库存尚未确认，无需补偿
	case StepCoupon:
		executed = append(executed, StepProduct)
	case StepPoint:
		executed = append(executed, StepProduct)
		if s.Payload.NeedsCoupon() {
			executed = append(executed, StepCoupon)
		}
	case StepPayment, StepDone:
		executed = append(executed, StepProduct)
		if s.Payload.NeedsCoupon() {
			executed = append(executed, StepCoupon)
		}
		if s.Payload.NeedsPoints() {
			executed = append(executed, StepPoint)
		}
	}
	return executed
}

// MarkAborted 标记中止（终态）
func (s *SagaInstance) MarkAborted(reason string) {
	s.Status = StatusAborted
	s.FailureReason = reason
	s.finish()
}

// MarkTimedOut 标记超时（终态）
//
// 仅供存储层的原子标记使用；编排器通过 ISagaStore.MarkTimedOut
// 执行原子检查后才会调用补偿。
func (s *SagaInstance) MarkTimedOut(reason string) {
	s.Status = StatusTimedOut
	s.FailureReason = reason
	s.finish()
}

// MarkCompleted 标记完成（终态）
func (s *SagaInstance) MarkCompleted() {
	s.Status = StatusCompleted
	s.Step = StepDone
	s.finish()
}

func (s *SagaInstance) finish() {
	if s.FinishedAt == nil {
		now := time.Now()
		s.FinishedAt = &now
	}
}

// Clone 克隆实例（存储层返回副本时使用）
func (s *SagaInstance) Clone() *SagaInstance {
	clone := *s
	if s.Payload != nil {
		payload := *s.Payload
		payload.Items = make([]SagaItem, len(s.Payload.Items))
		copy(payload.Items, s.Payload.Items)
		if s.Payload.CouponID != nil {
			couponID := *s.Payload.CouponID
			payload.CouponID = &couponID
		}
		clone.Payload = &payload
	}
	if s.FinishedAt != nil {
		finishedAt := *s.FinishedAt
		clone.FinishedAt = &finishedAt
	}
	return &clone
}
