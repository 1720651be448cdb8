package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat/internal/model"
	"agentchat/internal/repository/repotest"
)

func seedSession(t *testing.T, repos *Repositories, userID uint, at time.Time) *model.ChatSession {
	t.Helper()
	session := &model.ChatSession{SessionID: uuid.NewString(), UserID: userID, DateTime: at}
	require.NoError(t, repos.Sessions.Create(context.Background(), session))
	return session
}

func seedMessage(t *testing.T, repos *Repositories, sessionID, human string, at time.Time) *model.ChatMessage {
	t.Helper()
	ai := "re: " + human
	msg := &model.ChatMessage{SessionID: sessionID, HumanMessage: human, AIMessage: &ai, DateTime: at}
	require.NoError(t, repos.Messages.Create(context.Background(), msg))
	return msg
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))

	user := &model.User{Name: "Ada", Phone: "100", PasswordHash: "hash", IsSuperuser: true}
	require.NoError(t, repos.Users.Create(ctx, user))
	assert.Equal(t, model.StatusActive, user.Status)

	got, err := repos.Users.GetByPhone(ctx, "100")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)

	missing, err := repos.Users.GetByPhone(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := repos.Users.SuperuserExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repos.Users.UpdatePassword(ctx, user.ID, "new-hash"))
	got, err = repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))

	require.NoError(t, repos.APIKeys.Create(ctx, &model.ApiKey{Key: "k1"}))
	require.NoError(t, repos.APIKeys.Create(ctx, &model.ApiKey{Key: "k2", Status: model.StatusDeleted}))

	got, err := repos.APIKeys.GetByKey(ctx, "k1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = repos.APIKeys.GetByKey(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserTokenBlacklist(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))

	token := &model.UserToken{JTI: "jti-1", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repos.Tokens.Create(ctx, token))

	live, err := repos.Tokens.GetLive(ctx, "jti-1", 7)
	require.NoError(t, err)
	require.NotNil(t, live)

	live, err = repos.Tokens.GetLive(ctx, "jti-1", 8)
	require.NoError(t, err)
	assert.Nil(t, live)

	ok, err := repos.Tokens.Blacklist(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.Tokens.Blacklist(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)

	blacklisted, err := repos.Tokens.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, blacklisted)

	live, err = repos.Tokens.GetLive(ctx, "jti-1", 0)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestSessionOwnershipAndListing(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	older := seedSession(t, repos, 1, base)
	newer := seedSession(t, repos, 1, base.Add(time.Hour))
	other := seedSession(t, repos, 2, base)

	got, err := repos.Sessions.GetBySessionIDAndUserID(ctx, other.SessionID, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err := repos.Sessions.ListByUserID(ctx, 1, 0, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.SessionID, list[0].SessionID)
	assert.Equal(t, older.SessionID, list[1].SessionID)

	page, err := repos.Sessions.ListByUserID(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.SessionID, page[0].SessionID)

	count, err := repos.Sessions.CountByUserID(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, repos.Sessions.SoftDelete(ctx, older.SessionID))
	got, err = repos.Sessions.GetBySessionID(ctx, older.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionTitleAndSearch(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))
	session := seedSession(t, repos, 1, time.Now().UTC())

	won, err := repos.Sessions.SetTitleIfEmpty(ctx, session.SessionID, "Trip To Paris")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repos.Sessions.SetTitleIfEmpty(ctx, session.SessionID, "Other")
	require.NoError(t, err)
	assert.False(t, won)

	found, err := repos.Sessions.SearchByTitle(ctx, 1, "paris", 20)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Trip To Paris", *found[0].Title)

	found, err = repos.Sessions.SearchByTitle(ctx, 2, "paris", 20)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSessionTouchOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	session := seedSession(t, repos, 1, base)

	require.NoError(t, repos.Sessions.Touch(ctx, session.SessionID, base.Add(-time.Hour)))
	got, err := repos.Sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.True(t, got.DateTime.Equal(base))

	require.NoError(t, repos.Sessions.Touch(ctx, session.SessionID, base.Add(time.Hour)))
	got, err = repos.Sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.True(t, got.DateTime.Equal(base.Add(time.Hour)))
}

func TestMessageListBySession(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	session := seedSession(t, repos, 1, base)

	var ids []uint
	for i := 0; i < 5; i++ {
		msg := seedMessage(t, repos, session.SessionID, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, msg.ID)
	}

	all, err := repos.Messages.ListBySession(ctx, session.SessionID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].DateTime.Before(all[i-1].DateTime))
	}

	last, err := repos.Messages.ListBySession(ctx, session.SessionID, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].HumanMessage)
	assert.Equal(t, "e", last[1].HumanMessage)

	upTo := ids[2]
	bounded, err := repos.Messages.ListBySession(ctx, session.SessionID, ListOptions{UpToID: &upTo, Limit: 10})
	require.NoError(t, err)
	require.Len(t, bounded, 3)
	assert.Equal(t, "c", bounded[2].HumanMessage)
}

func TestResubmitUnitOfWork(t *testing.T) {
	ctx := context.Background()
	db := repotest.OpenDB(t)
	repos := NewRepositories(db)
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	session := seedSession(t, repos, 1, base)

	var ids []uint
	for i := 0; i < 4; i++ {
		msg := seedMessage(t, repos, session.SessionID, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, msg.ID)
	}
	require.NoError(t, repos.Messages.UpdateFeedback(ctx, ids[1], true, false))

	now := base.Add(time.Hour)
	err := NewUnitOfWork(db).Do(ctx, func(tx *Repositories) error {
		if err := tx.Messages.Regenerate(ctx, ids[1], "edited", "answer", 1.5, now); err != nil {
			return err
		}
		_, err := tx.Messages.SoftDeleteAfter(ctx, session.SessionID, ids[1])
		return err
	})
	require.NoError(t, err)

	list, err := repos.Messages.ListBySession(ctx, session.SessionID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[0], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	assert.Equal(t, "edited", list[1].HumanMessage)
	assert.Equal(t, "answer", *list[1].AIMessage)
	assert.False(t, list[1].PositiveFeedback)
}

func TestUnitOfWorkRollsBack(t *testing.T) {
	ctx := context.Background()
	db := repotest.OpenDB(t)
	repos := NewRepositories(db)
	session := seedSession(t, repos, 1, time.Now().UTC())

	err := NewUnitOfWork(db).Do(ctx, func(tx *Repositories) error {
		if err := tx.Sessions.SoftDelete(ctx, session.SessionID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := repos.Sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMessageOwnership(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(repotest.OpenDB(t))
	session := seedSession(t, repos, 1, time.Now().UTC())
	msg := seedMessage(t, repos, session.SessionID, "hi", time.Now().UTC())

	got, err := repos.Messages.GetOwned(ctx, msg.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = repos.Messages.GetOwned(ctx, msg.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repos.Messages.SoftDeleteBySession(ctx, session.SessionID))
	got, err = repos.Messages.GetInSession(ctx, session.SessionID, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
