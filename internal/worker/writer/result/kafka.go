package result

import (
	"context"
	"time"

	"paperhands/internal/worker/model"
	"paperhands/internal/worker/writer"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const RETRY_COUNT = 3

// KafkaResultWriter 把完成的分析结果发布到下游消费的topic
type KafkaResultWriter struct {
	mq *kafka.Writer
	tl *zap.Logger

	topic string
}

func NewKafkaResultWriter(mq *kafka.Writer, tl *zap.Logger, topic string) writer.BatchWriter[model.WalletAnalysisResult] {
	return &KafkaResultWriter{mq: mq, tl: tl, topic: topic}
}

func (w *KafkaResultWriter) BWrite(ctx context.Context, results []model.WalletAnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(results))
	for _, res := range results {
		msgs = append(msgs, w.marshalToMsg(res))
	}

	newCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// 重试机制
	var err error
	for attempt := 0; attempt < RETRY_COUNT; attempt++ {
		err = w.mq.WriteMessages(newCtx, msgs...)
		if err == nil {
			break
		}
	}
	if err != nil {
		w.tl.Warn("MQ write failed, exceeded the maximum number of retries", zap.Error(err))
		return err
	}
	return nil
}

func (w *KafkaResultWriter) Close() error {
	return nil
}

func (w *KafkaResultWriter) marshalToMsg(res model.WalletAnalysisResult) kafka.Message {
	jsonData, _ := sonic.Marshal(res)
	return kafka.Message{
		Topic: w.topic,
		Key:   []byte(res.WalletAddress),
		Value: jsonData,
	}
}
