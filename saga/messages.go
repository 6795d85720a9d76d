package saga

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ordersaga/messaging"
)

// 命令类型常量
//
// 正向命令与补偿命令使用不同的类型，
// 因此同一 Saga 的命令与其补偿在幂等台账中永不冲突。
const (
	CommandDeductStock  = "DEDUCT_STOCK"
	CommandRestoreStock = "RESTORE_STOCK"
	CommandUseCoupon    = "USE_COUPON"
	CommandCancelCoupon = "CANCEL_COUPON"
	CommandUsePoint     = "USE_POINT"
	CommandRefundPoint  = "REFUND_POINT"
)

// 消息主题常量
//
// 命令主题按参与者划分；结果主题由编排器消费；
// 事件主题由外部协作方（支付准备、通知、购物车清理）消费。
const (
	TopicInventoryCommand = "saga.command.inventory"
	TopicCouponCommand    = "saga.command.coupon"
	TopicPointCommand     = "saga.command.point"

	TopicStepResult    = "saga.result.step"
	TopicPaymentResult = "saga.result.payment"

	TopicResourcesSecured = "saga.event.resources_secured"
	TopicOrderAborted     = "saga.event.order_aborted"
	TopicOrderCompleted   = "saga.event.order_completed"
)

// IsCompensationCommand 判断命令是否为补偿命令
func IsCompensationCommand(commandType string) bool {
	switch commandType {
	case CommandRestoreStock, CommandCancelCoupon, CommandRefundPoint:
		return true
	default:
		return false
	}
}

// CommandTopic 返回命令类型对应的参与者主题
func CommandTopic(commandType string) (string, error) {
	switch commandType {
	case CommandDeductStock, CommandRestoreStock:
		return TopicInventoryCommand, nil
	case CommandUseCoupon, CommandCancelCoupon:
		return TopicCouponCommand, nil
	case CommandUsePoint, CommandRefundPoint:
		return TopicPointCommand, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommandType, commandType)
	}
}

// SagaCommand 参与者命令消息负载
//
// Items 仅库存命令使用；CouponID 仅优惠券命令使用；
// Amount 仅积分命令使用（扣减/退还的积分数）。
type SagaCommand struct {
	SagaID      string     `json:"sagaId"`
	OrderNo     string     `json:"orderNo"`
	CommandType string     `json:"commandType"`
	UserID      int64      `json:"userId"`
	Items       []SagaItem `json:"items,omitempty"`
	CouponID    *int64     `json:"couponId,omitempty"`
	Amount      int64      `json:"amount,omitempty"`
	IssuedAt    time.Time  `json:"issuedAt"`
}

// StepResult 参与者结果消息负载
//
// CommandType 回显所响应的命令类型，
// 编排器据此精确识别过期/重复结果。
type StepResult struct {
	SagaID       string `json:"sagaId"`
	OrderNo      string `json:"orderNo"`
	CommandType  string `json:"commandType"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// PaymentResult 支付结果消息负载
type PaymentResult struct {
	SagaID       string `json:"sagaId"`
	OrderNo      string `json:"orderNo"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ResourcesSecuredEvent 资源锁定完成事件（触发支付准备）
type ResourcesSecuredEvent struct {
	SagaID  string `json:"sagaId"`
	OrderNo string `json:"orderNo"`
	UserID  int64  `json:"userId"`
}

// OrderAbortedEvent 订单失败事件
type OrderAbortedEvent struct {
	SagaID      string `json:"sagaId"`
	OrderNo     string `json:"orderNo"`
	UserID      int64  `json:"userId"`
	FailureCode string `json:"failureCode"`
}

// OrderCompletedEvent 订单完成事件
type OrderCompletedEvent struct {
	SagaID  string `json:"sagaId"`
	OrderNo string `json:"orderNo"`
	UserID  int64  `json:"userId"`
}

// NewCommandMessage 将命令封装为传输消息（分区键 = sagaID）
func NewCommandMessage(topic string, cmd *SagaCommand) *messaging.Message {
	return messaging.NewMessage(uuid.NewString(), topic, cmd.SagaID, cmd)
}

// NewResultMessage 将参与者结果封装为传输消息（分区键 = sagaID）
func NewResultMessage(result *StepResult) *messaging.Message {
	return messaging.NewMessage(uuid.NewString(), TopicStepResult, result.SagaID, result)
}

// NewEventMessage 将领域事件封装为传输消息（分区键 = sagaID）
func NewEventMessage(topic, sagaID string, event interface{}) *messaging.Message {
	return messaging.NewMessage(uuid.NewString(), topic, sagaID, event)
}

// DecodePayload 将消息负载解码到目标结构
//
// 进程内传输直接传递结构体指针，跨进程传输经 JSON 解码为 map；
// 统一走一次 JSON 往返，两种来源都能正确填充目标。
func DecodePayload(payload interface{}, target interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message payload: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode message payload: %w", err)
	}
	return nil
}
