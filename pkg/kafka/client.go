// Package kafka 提供了与 Kafka 消息队列交互的功能：发布和消费对话用量事件。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/internal/model"
	"mbk-chat-go/pkg/log"
)

// UsageRecorder 由消费端的业务服务实现，使消费者与具体的存储解耦。
type UsageRecorder interface {
	Record(ctx context.Context, e model.UsageEvent) error
}

// maxAttempts 是单条消息写入失败后的最大尝试次数，超过后提交 offset 丢弃。
const maxAttempts = 3

// Brokers 解析逗号分隔的 broker 列表。
func Brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 异步发布用量事件，写入失败只记录日志。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。同一用户的事件按 key 落到同一分区。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(Brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		RequiredAcks: kafka.RequireOne,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("发布用量事件失败: %d 条, err=%v", len(messages), err)
			}
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// encodeEvent 将事件编码为 Kafka 消息，key 为用户名。
func encodeEvent(e model.UsageEvent) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(e.Username), Value: value}, nil
}

// Publish 发送一个用量事件到 Kafka。
func (p *Producer) Publish(ctx context.Context, e model.UsageEvent) error {
	msg, err := encodeEvent(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来累计用量，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, recorder UsageRecorder) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  Brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		if err := processMessage(ctx, recorder, m, time.Second); err != nil {
			// 只有 ctx 取消时才会返回错误，不提交 offset，重启后重新消费
			log.Infof("Kafka 消费者在处理 offset %d 时停止", m.Offset)
			return
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// processMessage 解析并记录一条消息。格式错误或多次失败的消息会被放弃，
// 返回错误表示 ctx 已取消，调用方不应提交 offset。
func processMessage(ctx context.Context, recorder UsageRecorder, m kafka.Message, backoff time.Duration) error {
	var e model.UsageEvent
	if err := json.Unmarshal(m.Value, &e); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		return nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := recorder.Record(ctx, e)
		if err == nil {
			return nil
		}
		log.Warnf("记录用量失败: username=%s attempt=%d err=%v", e.Username, attempt, err)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	log.Errorf("用量事件多次失败(>=%d)，提交 offset 终止重试: username=%s", maxAttempts, e.Username)
	return nil
}
