package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat/internal/model"
	"agentchat/internal/repository"
	"agentchat/internal/repository/repotest"
)

func TestHandleTouchesSession(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewRepositories(repotest.OpenDB(t))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &model.ChatSession{SessionID: uuid.NewString(), UserID: 1, DateTime: base}
	require.NoError(t, repos.Sessions.Create(ctx, session))

	w := NewActivityWorker(nil, repos.Sessions, "q", nil)
	body, err := json.Marshal(model.SessionActivity{
		SessionID: session.SessionID,
		MessageID: 3,
		Kind:      model.ActivityExchange,
		At:        base.Add(time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, w.Handle(ctx, body))

	got, err := repos.Sessions.GetBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.True(t, got.DateTime.Equal(base.Add(time.Minute)))
}

func TestHandleRejectsMalformed(t *testing.T) {
	w := NewActivityWorker(nil, nil, "q", nil)

	assert.ErrorIs(t, w.Handle(context.Background(), []byte("{")), errBadActivity)
	assert.ErrorIs(t, w.Handle(context.Background(), []byte(`{"session_id":""}`)), errBadActivity)
}
