package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"jaqpot/backend/go/internal/config"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaClient 持有管理连接和配置，生产者与消费者按主题各自创建。
type KafkaClient struct {
	Conn   *kafka.Conn // 用于管理的连接
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient 使用单例模式初始化并返回一个 KafkaClient 实例。
// 首次调用时，它会连接到 Kafka 并根据配置自动创建所有必需的主题。
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("未配置 Kafka brokers")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka 初始化连接失败: %w", err)
			return
		}

		if err := ensureTopics(conn, cfg.Topics); err != nil {
			initErr = err
			conn.Close()
			return
		}

		logrus.WithField("brokers", cfg.Brokers).Info("成功初始化 Kafka 客户端")
		client = &KafkaClient{Conn: conn, Config: cfg}
	})

	return client, initErr
}

func ensureTopics(conn *kafka.Conn, topics []string) error {
	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make(map[string]struct{}, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var toCreate []kafka.TopicConfig
	for _, name := range topics {
		if _, ok := existing[name]; ok {
			continue
		}
		existing[name] = struct{}{}
		toCreate = append(toCreate, kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}
	if len(toCreate) == 0 {
		return nil
	}

	// 创建主题必须发给 controller。
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("无法获取 Kafka controller: %w", err)
	}
	cc, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("无法连接 Kafka controller: %w", err)
	}
	defer cc.Close()

	if err := cc.CreateTopics(toCreate...); err != nil {
		return fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	logrus.WithField("count", len(toCreate)).Info("成功创建 Kafka 主题")
	return nil
}

// NewWriter 为指定主题创建生产者。
func (c *KafkaClient) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(c.Config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewReader 为指定主题和消费组创建消费者。新消费组从最早的消息开始读取。
func (c *KafkaClient) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(c.readerConfig(topic, groupID, kafka.FirstOffset))
}

// NewTailReader 创建只读取新消息的消费者，用于每个实例独占的消费组。
func (c *KafkaClient) NewTailReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(c.readerConfig(topic, groupID, kafka.LastOffset))
}

func (c *KafkaClient) readerConfig(topic, groupID string, startOffset int64) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     c.Config.Brokers,
		GroupID:     groupID,
		Topic:       topic,
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
		},
	}
}

// Close 安全地关闭管理连接。
func (c *KafkaClient) Close() error {
	if c == nil || c.Conn == nil {
		return nil
	}
	if err := c.Conn.Close(); err != nil {
		return fmt.Errorf("关闭 Kafka 管理连接失败: %w", err)
	}
	return nil
}

// HealthCheck 检查 Kafka 连接的健康状况。
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka 客户端未初始化，无法进行健康检查")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.Conn.SetDeadline(deadline)
		defer c.Conn.SetDeadline(time.Time{})
	}
	_, err := c.Conn.Controller()
	return err
}
