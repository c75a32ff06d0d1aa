package events

import (
	"context"
	"encoding/json"
	"time"

	"chit-chat/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageEvent is the record written for every new chat message.
type MessageEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientIDs   []string  `json:"recipient_ids"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sent_at"`
}

func NewMessageEvent(msg *models.Message, recipients []string) MessageEvent {
	return MessageEvent{
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		RecipientIDs:   recipients,
		Text:           msg.Text,
		SentAt:         msg.CreatedAt,
	}
}

// KafkaSink publishes new messages to a topic for downstream consumers.
type KafkaSink struct {
	w *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// PublishMessage keys records by conversation so one conversation stays ordered.
func (k *KafkaSink) PublishMessage(ctx context.Context, ev MessageEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: value,
		Time:  ev.SentAt,
	})
}

func (k *KafkaSink) Close() error { return k.w.Close() }
