package engine

import (
	"context"
	"log"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
)

// CreateConversation stores a new conversation. More than two members make
// it a group chat. Callers must check IsConversationAlreadyExist first; the
// store does not reject duplicates.
func (e *Engine) CreateConversation(ctx context.Context, members []uuid.UUID, status models.ConversationStatus) (*models.Conversation, error) {
	defer e.observe("create_conversation", time.Now())

	if !status.Valid() {
		return nil, utils.NewInvalidInputError("invalid conversation status: " + string(status))
	}
	unique := make([]uuid.UUID, 0, len(members))
	for _, id := range members {
		if id == uuid.Nil {
			return nil, utils.NewInvalidInputError("conversation member id is required")
		}
		unique = models.AppendUnique(unique, id)
	}
	if len(unique) < 2 {
		return nil, utils.NewInvalidInputError("a conversation needs at least two members")
	}

	conv := &models.Conversation{
		ID:      uuid.New(),
		UserIDs: unique,
		Type:    models.TypeForMembers(len(unique)),
		Status:  status,
	}
	if err := e.db.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	log.Printf("Engine: created %s conversation %s with status %s", conv.Type, conv.ID, conv.Status)
	return conv, nil
}

func (e *Engine) IsConversationAlreadyExist(ctx context.Context, currentUserID, userID uuid.UUID) (bool, error) {
	_, err := e.db.FindConversationByMembers(ctx, currentUserID, userID)
	if err != nil {
		if utils.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetConversationByUserIDs returns the pair's direct conversation.
func (e *Engine) GetConversationByUserIDs(ctx context.Context, firstID, secondID uuid.UUID) (*models.Conversation, error) {
	return e.db.FindConversationByMembers(ctx, firstID, secondID)
}

func (e *Engine) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return e.db.GetConversation(ctx, id)
}

// GetConversations lists the user's NORMAL conversations with messages, least recently updated first.
func (e *Engine) GetConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	return e.db.ListConversations(ctx, userID, models.StatusNormal, false)
}

// GetRequestedConversations lists the user's REQUEST conversations with messages, most recently updated first.
func (e *Engine) GetRequestedConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	return e.db.ListConversations(ctx, userID, models.StatusRequest, true)
}

// UpdateConversation sets the status. This is the only REQUEST to NORMAL transition.
func (e *Engine) UpdateConversation(ctx context.Context, id uuid.UUID, status models.ConversationStatus) error {
	if !status.Valid() {
		return utils.NewInvalidInputError("invalid conversation status: " + string(status))
	}
	return e.db.UpdateConversationStatus(ctx, id, status)
}

// DeleteConversationByID removes the conversation and its messages.
func (e *Engine) DeleteConversationByID(ctx context.Context, id uuid.UUID) error {
	defer e.observe("delete_conversation", time.Now())
	return e.db.DeleteConversation(ctx, id)
}

// StartConversation returns the pair's direct conversation, creating it
// when missing. A new one is NORMAL only if the pair follow each other.
func (e *Engine) StartConversation(ctx context.Context, me, otherID uuid.UUID) (*models.Conversation, error) {
	if me == otherID {
		return nil, utils.NewInvalidInputError("cannot start a conversation with yourself")
	}
	user, err := e.db.GetUser(ctx, me)
	if err != nil {
		return nil, err
	}
	if _, err := e.db.GetUser(ctx, otherID); err != nil {
		return nil, err
	}

	conv, err := e.GetConversationByUserIDs(ctx, me, otherID)
	if err == nil {
		return conv, nil
	}
	if !utils.IsNotFound(err) {
		return nil, err
	}

	status := models.StatusRequest
	if isMutual(user, otherID) {
		status = models.StatusNormal
	}
	return e.CreateConversation(ctx, []uuid.UUID{me, otherID}, status)
}

// memberConversation loads a conversation and checks that userID belongs to it.
func (e *Engine) memberConversation(ctx context.Context, userID, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := e.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, utils.NewAppError(utils.ErrNotConversationMember, "Not a member of this conversation", nil)
	}
	return conv, nil
}

// ConversationLists is the chat index for one user.
type ConversationLists struct {
	Normal    []*models.ConversationView `json:"conversations"`
	Requested []*models.ConversationView `json:"requestedConversations"`
}

// ListConversationsFor builds the chat index with members resolved.
func (e *Engine) ListConversationsFor(ctx context.Context, userID uuid.UUID) (*ConversationLists, error) {
	normal, err := e.GetConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	requested, err := e.GetRequestedConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	lists := &ConversationLists{}
	if lists.Normal, err = e.views(ctx, normal); err != nil {
		return nil, err
	}
	if lists.Requested, err = e.views(ctx, requested); err != nil {
		return nil, err
	}
	return lists, nil
}

func (e *Engine) views(ctx context.Context, convs []*models.Conversation) ([]*models.ConversationView, error) {
	out := make([]*models.ConversationView, 0, len(convs))
	for _, c := range convs {
		members, err := e.userInfos(ctx, c.UserIDs)
		if err != nil {
			return nil, err
		}
		out = append(out, &models.ConversationView{Conversation: *c, Members: members})
	}
	return out, nil
}

// OpenConversation returns the conversation with the messages visible to viewerID.
func (e *Engine) OpenConversation(ctx context.Context, viewerID, conversationID uuid.UUID) (*models.ConversationView, error) {
	conv, err := e.memberConversation(ctx, viewerID, conversationID)
	if err != nil {
		return nil, err
	}
	members, err := e.userInfos(ctx, conv.UserIDs)
	if err != nil {
		return nil, err
	}
	msgs, err := e.db.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	visible := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.VisibleTo(viewerID) {
			visible = append(visible, *m)
		}
	}
	return &models.ConversationView{Conversation: *conv, Members: members, Messages: visible}, nil
}

// AcceptConversation moves a REQUEST conversation to NORMAL on a member's request.
func (e *Engine) AcceptConversation(ctx context.Context, userID, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := e.memberConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == models.StatusNormal {
		return conv, nil
	}
	if err := e.UpdateConversation(ctx, conv.ID, models.StatusNormal); err != nil {
		return nil, err
	}
	conv.Status = models.StatusNormal
	return conv, nil
}

// DeleteConversation lets a member delete the whole conversation.
func (e *Engine) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	if _, err := e.memberConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return e.DeleteConversationByID(ctx, conversationID)
}
