package engine

import (
	"context"
	"time"

	"chit-chat/internal/models"
	"chit-chat/internal/utils"

	"github.com/google/uuid"
)

// Follow makes followerID follow targetID. Both lists change together.
func (e *Engine) Follow(ctx context.Context, targetID, followerID uuid.UUID) error {
	defer e.observe("follow", time.Now())
	if targetID == followerID {
		return utils.NewInvalidInputError("a user cannot follow themselves")
	}
	return e.db.AddFollow(ctx, targetID, followerID)
}

// Unfollow removes the edge from both lists.
func (e *Engine) Unfollow(ctx context.Context, targetID, unfollowerID uuid.UUID) error {
	defer e.observe("unfollow", time.Now())
	if targetID == unfollowerID {
		return utils.NewInvalidInputError("a user cannot unfollow themselves")
	}
	return e.db.RemoveFollow(ctx, targetID, unfollowerID)
}

// IsMutualFollow reports whether a and b follow each other.
func (e *Engine) IsMutualFollow(ctx context.Context, a, b uuid.UUID) (bool, error) {
	user, err := e.db.GetUser(ctx, a)
	if err != nil {
		return false, err
	}
	return isMutual(user, b), nil
}

func isMutual(user *models.User, other uuid.UUID) bool {
	return user.IsFollowing(other) && user.IsFollowedBy(other)
}

// FollowUser is the follow action on the users page. When the pair has no
// direct conversation yet it opens one first: NORMAL if the target already
// follows me, otherwise REQUEST. It returns the pair's direct conversation.
func (e *Engine) FollowUser(ctx context.Context, me, targetID uuid.UUID) (*models.Conversation, error) {
	if me == targetID {
		return nil, utils.NewInvalidInputError("a user cannot follow themselves")
	}
	user, err := e.db.GetUser(ctx, me)
	if err != nil {
		return nil, err
	}
	if user.IsFollowing(targetID) {
		return nil, utils.NewAppError(utils.ErrAlreadyFollowing, "Already followed this user", nil)
	}
	if _, err := e.db.GetUser(ctx, targetID); err != nil {
		return nil, err
	}

	conv, err := e.GetConversationByUserIDs(ctx, me, targetID)
	if err != nil && !utils.IsNotFound(err) {
		return nil, err
	}
	if conv == nil {
		status := models.StatusRequest
		if user.IsFollowedBy(targetID) {
			status = models.StatusNormal
		}
		conv, err = e.CreateConversation(ctx, []uuid.UUID{me, targetID}, status)
		if err != nil {
			return nil, err
		}
	}

	if err := e.Follow(ctx, targetID, me); err != nil {
		return nil, err
	}
	return conv, nil
}

// UnfollowUser is the unfollow action on the users page.
func (e *Engine) UnfollowUser(ctx context.Context, me, targetID uuid.UUID) error {
	return e.Unfollow(ctx, targetID, me)
}
