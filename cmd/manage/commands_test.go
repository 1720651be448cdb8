package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"agentchat/internal/model"
	"agentchat/internal/repository/repotest"
)

func run(t *testing.T, db *gorm.DB, stdin string, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (*gorm.DB, func(), error) {
		return db, func() {}, nil
	}
	cmd := newRootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerateKey(t *testing.T) {
	db := repotest.OpenDB(t)

	out, err := run(t, db, "", "generate-key")
	require.NoError(t, err)
	assert.Equal(t, "API key generated successfully.\n", out)

	out, err = run(t, db, "", "generate-key", "--show")
	require.NoError(t, err)
	assert.Contains(t, out, "API key: ")

	var keys []model.ApiKey
	require.NoError(t, db.Find(&keys).Error)
	require.Len(t, keys, 2)
	assert.Contains(t, out, keys[1].Key)
	assert.Equal(t, model.StatusActive, keys[1].Status)
}

func TestCreateSuperuserFromFlags(t *testing.T) {
	db := repotest.OpenDB(t)

	out, err := run(t, db, "", "create-superuser",
		"--name", "Admin", "--email", "Admin@Example.com", "--phone", "0100", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Superuser created: ID=1, Name=Admin")

	var user model.User
	require.NoError(t, db.First(&user).Error)
	assert.True(t, user.IsSuperuser)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
}

func TestCreateSuperuserPromptsForMissingFields(t *testing.T) {
	db := repotest.OpenDB(t)

	out, err := run(t, db, "Admin\nadmin@example.com\n0100\nsecret1\n", "create-superuser")
	require.NoError(t, err)
	assert.Contains(t, out, "Name: Email: Phone: Password: ")
	assert.Contains(t, out, "Superuser created")
}

func TestCreateSuperuserCheckExist(t *testing.T) {
	db := repotest.OpenDB(t)

	_, err := run(t, db, "", "create-superuser",
		"--name", "Admin", "--email", "a@example.com", "--phone", "0100", "--password", "secret1")
	require.NoError(t, err)

	out, err := run(t, db, "", "create-superuser", "--check-exist",
		"--name", "Other", "--email", "b@example.com", "--phone", "0200", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "A superuser already exists")

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateSuperuserRequiresEveryField(t *testing.T) {
	db := repotest.OpenDB(t)

	_, err := run(t, db, "\n\n\n\n", "create-superuser")
	assert.EqualError(t, err, "all fields are required")
}
