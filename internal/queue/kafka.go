package queue

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/robcarmo/puppies-api/config"
	"github.com/robcarmo/puppies-api/pkg/logger"
)

// KafkaProducer 把扇出任务写入 Kafka，按 owner 分区保证同一用户的投递落在同一分区
type KafkaProducer struct {
	w *kgo.Writer
}

func NewKafkaProducer(cfg *config.Config) *KafkaProducer {
	w := &kgo.Writer{
		Addr:         kgo.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{w: w}
}

func (p *KafkaProducer) Enqueue(ctx context.Context, jobs []Job) error {
	msgs := make([]kgo.Message, 0, len(jobs))
	for _, j := range jobs {
		payload, err := json.Marshal(j)
		if err != nil {
			return err
		}
		msgs = append(msgs, kgo.Message{Key: []byte(j.OwnerUserID), Value: payload})
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) Close() error { return p.w.Close() }

// KafkaConsumer 消费扇出任务；handler 成功（落库）后才提交位点，at-least-once
type KafkaConsumer struct {
	r *kgo.Reader
}

func NewKafkaConsumer(cfg *config.Config) *KafkaConsumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		GroupID:  cfg.Kafka.GroupID,
		Topic:    cfg.Kafka.Topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
		MaxWait:  2 * time.Second,
	})
	return &KafkaConsumer{r: r}
}

func (c *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	defer c.r.Close()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return err
		}
		var job Job
		if err := json.Unmarshal(m.Value, &job); err != nil {
			logger.Warn("kafka: bad fanout payload", zap.Error(err))
			// 毒消息直接提交跳过
			_ = c.r.CommitMessages(ctx, m)
			continue
		}
		if err := handle(ctx, job); err != nil {
			logger.Error("kafka: materialize job failed", zap.String("post", job.PostID), zap.Error(err))
			// 不提交位点，等待重投；幂等 upsert 保证重复安全
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			return err
		}
	}
}
