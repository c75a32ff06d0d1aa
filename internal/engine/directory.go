package engine

import (
	"context"

	"chit-chat/internal/models"

	"github.com/google/uuid"
)

// Directory is the users page: people with no follow edge either way, plus
// my followers and the people I follow.
type Directory struct {
	Friends   []models.UserInfo `json:"friends"`
	Followers []models.UserInfo `json:"followers"`
	Following []models.UserInfo `json:"following"`
}

func (e *Engine) Directory(ctx context.Context, userID uuid.UUID) (*Directory, error) {
	me, err := e.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	others, err := e.db.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, err
	}

	dir := &Directory{
		Friends:   []models.UserInfo{},
		Followers: []models.UserInfo{},
		Following: []models.UserInfo{},
	}
	for _, u := range others {
		following, follower := me.IsFollowing(u.ID), me.IsFollowedBy(u.ID)
		if following {
			dir.Following = append(dir.Following, u.Info())
		}
		if follower {
			dir.Followers = append(dir.Followers, u.Info())
		}
		if !following && !follower {
			dir.Friends = append(dir.Friends, u.Info())
		}
	}
	return dir, nil
}

// Profile is another user's page as seen by the viewer.
type Profile struct {
	User       models.UserInfo   `json:"user"`
	Followers  []models.UserInfo `json:"followers"`
	Following  []models.UserInfo `json:"following"`
	IsFollowed bool              `json:"isFollowed"`
	FollowsYou bool              `json:"followsYou"`
}

func (e *Engine) Profile(ctx context.Context, viewerID, userID uuid.UUID) (*Profile, error) {
	user, err := e.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	followers, err := e.userInfos(ctx, user.Followers)
	if err != nil {
		return nil, err
	}
	following, err := e.userInfos(ctx, user.Following)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:       user.Info(),
		Followers:  followers,
		Following:  following,
		IsFollowed: user.IsFollowedBy(viewerID),
		FollowsYou: user.IsFollowing(viewerID),
	}, nil
}

func (e *Engine) userInfos(ctx context.Context, ids []uuid.UUID) ([]models.UserInfo, error) {
	users, err := e.db.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	infos := make([]models.UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, u.Info())
	}
	return infos, nil
}
