package producer

import (
	"context"
	"strconv"

	"github.com/radieske/vs-wager-platform/internal/shared/kafka"
	"github.com/radieske/vs-wager-platform/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de liquidação e de prêmio num único writer
type KafkaPublisher struct {
	Writer       kafka.MessageWriter
	SettledTopic string
	PrizeTopic   string
}

func NewKafkaPublisher(w kafka.MessageWriter, settledTopic, prizeTopic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, SettledTopic: settledTopic, PrizeTopic: prizeTopic}
}

// PublishWagerSettled usa o wagerId como chave para manter a ordem por aposta
func (p *KafkaPublisher) PublishWagerSettled(ctx context.Context, e events.WagerSettled) error {
	return kafka.WriteJSON(ctx, p.Writer, p.SettledTopic, strconv.FormatInt(e.WagerID, 10), e)
}

func (p *KafkaPublisher) PublishPrizeExecuted(ctx context.Context, e events.PrizePeriodExecuted) error {
	return kafka.WriteJSON(ctx, p.Writer, p.PrizeTopic, strconv.FormatInt(e.PeriodStart.Unix(), 10), e)
}
