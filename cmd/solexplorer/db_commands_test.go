package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/brojonat/solexplorer/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type fakeKeyStore struct {
	keys    []*db.APIKey
	applied bool
	created db.CreateAPIKeyParams
}

func (f *fakeKeyStore) ApplySchema(ctx context.Context) error {
	f.applied = true
	return nil
}

func (f *fakeKeyStore) CreateAPIKey(ctx context.Context, params db.CreateAPIKeyParams) (*db.APIKey, error) {
	f.created = params
	k := &db.APIKey{
		ID:        "key-1",
		UserID:    params.UserID,
		Name:      params.Name,
		Key:       "sk_live_test",
		Plan:      params.Plan,
		RateLimit: params.RateLimit,
		Active:    true,
		CreatedAt: time.Now(),
	}
	f.keys = append(f.keys, k)
	return k, nil
}

func (f *fakeKeyStore) ListAPIKeys(ctx context.Context) ([]*db.APIKey, error) {
	return f.keys, nil
}

func (f *fakeKeyStore) DeactivateAPIKey(ctx context.Context, id string) error {
	for _, k := range f.keys {
		if k.ID == id {
			k.Active = false
			return nil
		}
	}
	return db.ErrAPIKeyNotFound
}

func withFakeStore(t *testing.T, store *fakeKeyStore) {
	t.Helper()
	orig := openStore
	openStore = func(*cli.Context) (keyStore, func(), error) {
		return store, func() {}, nil
	}
	t.Cleanup(func() { openStore = orig })
}

func TestMigrateCommand(t *testing.T) {
	store := &fakeKeyStore{}
	withFakeStore(t, store)

	out, err := run(t, "http://unused", "db", "migrate")
	require.NoError(t, err)
	assert.True(t, store.applied)
	assert.Contains(t, out, "Schema applied")
}

func TestCreateKeyCommand(t *testing.T) {
	store := &fakeKeyStore{}
	withFakeStore(t, store)

	out, err := run(t, "http://unused", "--json", "db", "keys", "create",
		"--user-id", "11111111-1111-1111-1111-111111111111",
		"--name", "dashboard",
		"--rate-limit", "25",
	)
	require.NoError(t, err)

	assert.Equal(t, "free", store.created.Plan)
	assert.Equal(t, 25, store.created.RateLimit)

	var key db.APIKey
	require.NoError(t, json.Unmarshal([]byte(out), &key))
	assert.Equal(t, "sk_live_test", key.Key)
	assert.True(t, key.Active)
}

func TestCreateKeyCommand_NegativeRateLimit(t *testing.T) {
	withFakeStore(t, &fakeKeyStore{})

	_, err := run(t, "http://unused", "db", "keys", "create",
		"--user-id", "u", "--name", "n", "--rate-limit", "-1")
	require.Error(t, err)
}

func TestListAndRevokeKeyCommands(t *testing.T) {
	store := &fakeKeyStore{keys: []*db.APIKey{
		{ID: "a", Name: "first", Plan: "free", RateLimit: 10, Active: true},
		{ID: "b", Name: "second", Plan: "pro", RateLimit: 100, Active: true},
	}}
	withFakeStore(t, store)

	out, err := run(t, "http://unused", "db", "keys", "revoke", "a")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked: a")

	out, err = run(t, "http://unused", "--jq", ".[].id", "db", "keys", "list", "--active")
	require.NoError(t, err)
	assert.Equal(t, "\"b\"\n", out)

	_, err = run(t, "http://unused", "db", "keys", "revoke", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOpenStore_RequiresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "http://unused", "db", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")
}
