package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// QueuePhaseChanged 批次阶段/状态变更事件队列
const QueuePhaseChanged = "batch.phase.changed"

// PhaseChangedEvent 批次流转事件，下游（看板推送、报表）订阅用
type PhaseChangedEvent struct {
	BatchID    uint      `json:"batch_id"`
	Barcode    string    `json:"barcode"`
	FromPhase  int       `json:"from_phase"`
	FromStatus string    `json:"from_status"`
	ToPhase    int       `json:"to_phase"`
	ToStatus   string    `json:"to_status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher RabbitMQ 事件发布器。未配置时为 nil，所有方法空指针安全；
// 发布失败只记日志，不打断主流程。
type Publisher struct {
	url    string
	logger *zap.Logger
}

// NewPublisher 创建发布器，url 为空时返回 nil（事件发布关闭）
func NewPublisher(url string, logger *zap.Logger) *Publisher {
	if url == "" {
		return nil
	}
	return &Publisher{url: url, logger: logger}
}

// PublishPhaseChanged 发布批次流转事件，消息持久化
func (p *Publisher) PublishPhaseChanged(ctx context.Context, event PhaseChangedEvent) {
	if p == nil {
		return
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Warn("rabbitmq dial failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq channel open failed", zap.Error(err))
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(QueuePhaseChanged, true, false, false, false, nil); err != nil {
		p.logger.Warn("rabbitmq queue declare failed", zap.Error(err))
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal phase changed event failed", zap.Error(err))
		return
	}

	err = ch.PublishWithContext(ctx, "", QueuePhaseChanged, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("publish phase changed event failed",
			zap.Uint("batch_id", event.BatchID),
			zap.Error(err))
	}
}
