package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"chit-chat/internal/events"
	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
)

// CreateMessage appends a message. It does not check membership or notify anyone.
func (e *Engine) CreateMessage(ctx context.Context, conversationID, senderID uuid.UUID, text string) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
	}
	if err := e.db.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage hides the message for userID only.
func (e *Engine) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error {
	return e.db.AddMessageDeleteFor(ctx, messageID, userID)
}

// UpdateMessage marks the message as seen by seenID.
func (e *Engine) UpdateMessage(ctx context.Context, messageID, seenID uuid.UUID) error {
	return e.db.AddMessageSeen(ctx, messageID, seenID)
}

// SendMessage stores a message from a member and notifies every other
// member with a send-message event carrying the recipient's id.
func (e *Engine) SendMessage(ctx context.Context, senderID, conversationID uuid.UUID, text string) (*models.Message, error) {
	defer e.observe("send_message", time.Now())

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.NewInvalidInputError("Message is required")
	}
	conv, err := e.memberConversation(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}

	msg, err := e.CreateMessage(ctx, conv.ID, senderID, text)
	if err != nil {
		return nil, err
	}

	recipients := conv.OtherMembers(senderID)
	recipientIDs := make([]string, 0, len(recipients))
	for _, id := range recipients {
		recipientIDs = append(recipientIDs, id.String())
		e.publish(ctx, events.Event{Name: events.SendMessage, To: id, Data: id.String()})
	}

	if e.sink != nil {
		if err := e.sink.PublishMessage(ctx, events.NewMessageEvent(msg, recipientIDs)); err != nil {
			log.Printf("Engine: failed to publish message %s to sink: %v", msg.ID, err)
		}
	}
	return msg, nil
}

// memberMessage checks viewerID belongs to the conversation and the message belongs to it.
func (e *Engine) memberMessage(ctx context.Context, viewerID, conversationID, messageID uuid.UUID) (*models.Message, error) {
	if _, err := e.memberConversation(ctx, viewerID, conversationID); err != nil {
		return nil, err
	}
	msg, err := e.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, utils.NewMessageNotFoundError(messageID.String())
	}
	return msg, nil
}

// DeleteMessageForMember is DeleteMessage with membership checked.
func (e *Engine) DeleteMessageForMember(ctx context.Context, viewerID, conversationID, messageID uuid.UUID) error {
	if _, err := e.memberMessage(ctx, viewerID, conversationID, messageID); err != nil {
		return err
	}
	return e.DeleteMessage(ctx, messageID, viewerID)
}

// MarkSeenByMember is UpdateMessage with membership checked.
func (e *Engine) MarkSeenByMember(ctx context.Context, viewerID, conversationID, messageID uuid.UUID) error {
	if _, err := e.memberMessage(ctx, viewerID, conversationID, messageID); err != nil {
		return err
	}
	return e.UpdateMessage(ctx, messageID, viewerID)
}

// PublishTyping re-publishes an on-input signal addressed to targetID.
func (e *Engine) PublishTyping(ctx context.Context, targetID uuid.UUID) {
	e.publish(ctx, events.Event{Name: events.OnInput, To: targetID, Data: targetID.String()})
}
