package events

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/kafka"
	"github.com/ds124wfegd/parking/pkg/rabbitMQ"
	"github.com/ds124wfegd/parking/pkg/telegram"
)

type KafkaSink struct {
	producer kafka.Producer
}

func NewKafkaSink(producer kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Name() string { return "kafka" }

// Publish keys messages by booking id.
func (s *KafkaSink) Publish(ctx context.Context, event *entity.BookingEvent) error {
	return s.producer.SendMessage(ctx, strconv.FormatInt(event.BookingID, 10), event)
}

func (s *KafkaSink) Close() error { return s.producer.Close() }

type RabbitSink struct {
	publisher rabbitMQ.Publisher
}

func NewRabbitSink(publisher rabbitMQ.Publisher) *RabbitSink {
	return &RabbitSink{publisher: publisher}
}

func (s *RabbitSink) Name() string { return "rabbitmq" }

func (s *RabbitSink) Publish(ctx context.Context, event *entity.BookingEvent) error {
	return s.publisher.Publish(ctx, event.ID, event)
}

func (s *RabbitSink) Close() error { return s.publisher.Close() }

type messenger interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramSink posts a short operator notification per event.
type TelegramSink struct {
	bot    messenger
	chatID string
}

func NewTelegramSink(bot *telegram.Bot, chatID string) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Publish(ctx context.Context, event *entity.BookingEvent) error {
	return s.bot.SendMessage(ctx, s.chatID, FormatMessage(event))
}

func FormatMessage(event *entity.BookingEvent) string {
	switch event.Type {
	case entity.BookingEventCreated:
		return fmt.Sprintf("Booking #%d: slot %d booked by user %d for %dh (%.2f), until %s",
			event.BookingID, event.SlotID, event.UserID, event.Hours, event.Amount, event.EndTime.Format("2006-01-02 15:04"))
	case entity.BookingEventExtended:
		return fmt.Sprintf("Booking #%d extended to %dh (%.2f), until %s",
			event.BookingID, event.Hours, event.Amount, event.EndTime.Format("2006-01-02 15:04"))
	case entity.BookingEventCancelled:
		msg := fmt.Sprintf("Booking #%d cancelled, slot %d is free", event.BookingID, event.SlotID)
		if event.Reason != "" {
			msg += ": " + event.Reason
		}
		return msg
	case entity.BookingEventCompleted:
		return fmt.Sprintf("Booking #%d completed, slot %d is free", event.BookingID, event.SlotID)
	default:
		return fmt.Sprintf("Booking #%d: %s", event.BookingID, event.Type)
	}
}
