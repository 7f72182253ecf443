package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleState() *AccountState {
	st := NewAccountState()
	st.KnownFollowers.Add("did:plc:zzz")
	st.KnownFollowers.Add("did:plc:aaa")
	st.DMHistory["did:plc:aaa"] = "2024-05-01T12:00:00Z"
	ts := st.Target("target.example.com")
	ts.Followed.Add("did:plc:ccc")
	ts.Followed.Add("did:plc:bbb")
	ts.LikedPosts.Add("at://did:plc:bbb/app.bsky.feed.post/3kabc")
	return st
}

func TestStorageKey(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("alice.bsky.social", StorageKey("alice.bsky.social"))
	assert.Equal("did_plc_abc123", StorageKey("did:plc:abc123"))
	assert.Equal(".._etc_passwd", StorageKey("../etc/passwd"))
	assert.Equal("a_b_c-d_e", StorageKey("a b@c-d_e"))
}

func TestEncodeDeterministic(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	b, err := Encode(exampleState())
	require.NoError(err)

	expected := `{
  "known_followers": [
    "did:plc:aaa",
    "did:plc:zzz"
  ],
  "dm_history": {
    "did:plc:aaa": "2024-05-01T12:00:00Z"
  },
  "targets": {
    "target.example.com": {
      "followed": [
        "did:plc:bbb",
        "did:plc:ccc"
      ],
      "liked_posts": [
        "at://did:plc:bbb/app.bsky.feed.post/3kabc"
      ]
    }
  }
}`
	assert.Equal(expected, string(b))

	again, err := Encode(exampleState())
	require.NoError(err)
	assert.Equal(b, again)
}

func TestDecodePartialDocument(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	st, err := Decode([]byte(`{"targets": {"t1": {"followed": ["did:plc:one"]}, "t2": null}}`))
	require.NoError(err)
	assert.NotNil(st.KnownFollowers)
	assert.NotNil(st.DMHistory)
	assert.True(st.Target("t1").Followed.Has("did:plc:one"))
	assert.NotNil(st.Target("t1").LikedPosts)
	assert.NotNil(st.Targets["t2"])
	assert.Empty(st.Target("t2").Followed)
}

func TestFileStoreRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "nested", "state")
	store, err := NewFileStore(dir)
	require.NoError(err)

	// missing record is an empty state, not an error
	empty, err := store.Load(ctx, "alice.bsky.social")
	require.NoError(err)
	assert.Empty(empty.KnownFollowers)
	assert.Empty(empty.DMHistory)
	assert.Empty(empty.Targets)

	orig := exampleState()
	require.NoError(store.Save(ctx, "alice.bsky.social", orig))

	loaded, err := store.Load(ctx, "alice.bsky.social")
	require.NoError(err)
	assert.Equal(orig, loaded)

	_, err = os.Stat(filepath.Join(dir, "alice.bsky.social.json"))
	assert.NoError(err)

	// overwrite is a full snapshot, not a merge
	require.NoError(store.Save(ctx, "alice.bsky.social", NewAccountState()))
	loaded, err = store.Load(ctx, "alice.bsky.social")
	require.NoError(err)
	assert.Empty(loaded.KnownFollowers)
	assert.Empty(loaded.Targets)

	ents, err := os.ReadDir(dir)
	require.NoError(err)
	assert.Len(ents, 1)
}

func TestFileStoreCorruptRecord(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(err)
	require.NoError(os.WriteFile(filepath.Join(dir, "bob.json"), []byte("{not json"), 0o600))

	_, err = store.Load(ctx, "bob")
	require.Error(err)
}

func TestSQLStoreRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	db, err := SetupDatabase("sqlite://" + filepath.Join(t.TempDir(), "db", "state.sqlite"))
	require.NoError(err)
	store, err := NewSQLStore(db)
	require.NoError(err)
	defer store.Close()

	empty, err := store.Load(ctx, "alice.bsky.social")
	require.NoError(err)
	assert.Empty(empty.Targets)

	orig := exampleState()
	require.NoError(store.Save(ctx, "alice.bsky.social", orig))
	loaded, err := store.Load(ctx, "alice.bsky.social")
	require.NoError(err)
	assert.Equal(orig, loaded)

	orig.KnownFollowers.Add("did:plc:new")
	require.NoError(store.Save(ctx, "alice.bsky.social", orig))
	loaded, err = store.Load(ctx, "alice.bsky.social")
	require.NoError(err)
	assert.True(loaded.KnownFollowers.Has("did:plc:new"))

	var count int64
	require.NoError(db.Model(&AccountRecord{}).Count(&count).Error)
	assert.Equal(int64(1), count)
}

func TestSetupDatabaseUnknownScheme(t *testing.T) {
	_, err := SetupDatabase("mysql://localhost/db")
	assert.Error(t, err)
}
