// Package kafka publishes spread signals to a broker for consumers outside
// this process. Entirely optional: the watcher runs fine with no brokers
// configured.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/spooky-finn/go-spread-watcher/domain"
)

type signalPayload struct {
	Time      int64  `json:"T"`
	Direction string `json:"d"`
	Spread    string `json:"s"`
	Fee       string `json:"f"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, sample domain.SpreadSample) error {
	value, err := json.Marshal(signalPayload{
		Time:      sample.Time.UnixMilli(),
		Direction: string(sample.Direction),
		Spread:    sample.RawSpread.String(),
		Fee:       sample.FeeThreshold.String(),
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sample.Direction),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
