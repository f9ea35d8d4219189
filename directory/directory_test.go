package directory

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-json-experiment/json"
	"github.com/questline/fedi/internal/crypto"
	"github.com/questline/fedi/internal/httpsig"
	"github.com/questline/fedi/models"
	"github.com/questline/fedi/models/modelstest"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

// remote is a fake ActivityPub server hosting a single actor, bob.
type remote struct {
	*httptest.Server
	webfingerHits atomic.Int32
	actorHits     atomic.Int32
	signature     atomic.Value // Signature header of the last actor fetch
	actor         map[string]any
	selfLink      bool
}

func newRemote(t *testing.T) *remote {
	t.Helper()
	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(t, err)
	r := &remote{selfLink: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/webfinger", func(w http.ResponseWriter, req *http.Request) {
		r.webfingerHits.Add(1)
		links := []map[string]any{{"rel": "http://webfinger.net/rel/profile-page", "type": "text/html", "href": r.URL + "/@bob"}}
		if r.selfLink {
			links = append(links, map[string]any{"rel": "self", "type": "application/activity+json", "href": r.URL + "/users/bob"})
		}
		w.Header().Set("Content-Type", "application/jrd+json")
		json.MarshalFull(w, map[string]any{"subject": "acct:bob@remote", "links": links})
	})
	mux.HandleFunc("/users/bob", func(w http.ResponseWriter, req *http.Request) {
		r.actorHits.Add(1)
		r.signature.Store(req.Header.Get("Signature"))
		w.Header().Set("Content-Type", "application/activity+json")
		json.MarshalFull(w, r.actor)
	})
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Close)
	r.actor = map[string]any{
		"id":    r.URL + "/users/bob",
		"type":  "Person",
		"inbox": r.URL + "/users/bob/inbox",
		"publicKey": map[string]any{
			"id":           r.URL + "/users/bob#main-key",
			"owner":        r.URL + "/users/bob",
			"publicKeyPem": string(kp.PublicKey),
		},
	}
	return r
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDirectory(t *testing.T, store *models.Store, r *remote) *Directory {
	t.Helper()
	return New(store, WithHTTPClient(r.Client()), WithLogger(quietLogger()))
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()

	t.Run("webfinger then actor document", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		r := newRemote(t)
		d := newDirectory(t, models.NewStore(db), r)

		inbox, err := d.Discover(ctx, r.URL+"/users/bob")
		require.NoError(err)
		require.Equal(r.URL+"/users/bob/inbox", inbox)

		fa, err := models.NewForeignActors(db).FindByURI(r.URL + "/users/bob")
		require.NoError(err)
		require.Equal(r.URL+"/users/bob", fa.CanonicalURI)
		require.Equal(inbox, fa.InboxURL)
		require.Contains(fa.PublicKeyPem, "PUBLIC KEY")
	})

	t.Run("memoised in process", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)
		for i := 0; i < 3; i++ {
			_, err := d.Discover(ctx, r.URL+"/users/bob")
			require.NoError(err)
		}
		require.EqualValues(1, r.webfingerHits.Load())
		require.EqualValues(1, r.actorHits.Load())
	})

	t.Run("durable cache hit skips webfinger", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		r := newRemote(t)
		store := models.NewStore(db)

		_, err := newDirectory(t, store, r).Discover(ctx, r.URL+"/users/bob")
		require.NoError(err)
		// a fresh directory has an empty memo but shares the durable cache.
		inbox, err := newDirectory(t, store, r).Discover(ctx, r.URL+"/users/bob")
		require.NoError(err)
		require.Equal(r.URL+"/users/bob/inbox", inbox)
		require.EqualValues(1, r.webfingerHits.Load())
	})

	t.Run("endpoints inbox fallback", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		delete(r.actor, "inbox")
		r.actor["endpoints"] = map[string]any{"inbox": r.URL + "/inbox"}
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)

		inbox, err := d.Discover(ctx, r.URL+"/users/bob")
		require.NoError(err)
		require.Equal(r.URL+"/inbox", inbox)
	})

	t.Run("no inbox", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		delete(r.actor, "inbox")
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)

		_, err := d.Discover(ctx, r.URL+"/users/bob")
		var de *DiscoveryError
		require.True(errors.As(err, &de))
		require.ErrorIs(err, ErrNoInbox)
	})

	t.Run("no self link", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		r.selfLink = false
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)

		_, err := d.Discover(ctx, r.URL+"/users/bob")
		var de *DiscoveryError
		require.True(errors.As(err, &de))
		require.EqualValues(0, r.actorHits.Load())
	})

	t.Run("not an http IRI", func(t *testing.T) {
		require := require.New(t)
		d := New(models.NewStore(modelstest.OpenDB(t)), WithLogger(quietLogger()))
		_, err := d.Discover(ctx, "acct:bob@remote.example")
		var de *DiscoveryError
		require.True(errors.As(err, &de))
	})

	t.Run("cache write failure is swallowed", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		r := newRemote(t)
		d := newDirectory(t, models.NewStore(db), r)
		require.NoError(db.Migrator().DropTable(&models.FollowerEdge{}, &models.ForeignActor{}))

		inbox, err := d.Discover(ctx, r.URL+"/users/bob")
		require.NoError(err)
		require.Equal(r.URL+"/users/bob/inbox", inbox)
	})
}

func TestResolve(t *testing.T) {
	require := require.New(t)
	db := modelstest.OpenDB(t)
	r := newRemote(t)
	d := newDirectory(t, models.NewStore(db), r)

	fa, err := d.Resolve(context.Background(), r.URL+"/users/bob")
	require.NoError(err)
	require.NotZero(fa.ID)
	require.Equal(r.URL+"/users/bob/inbox", fa.InboxURL)

	again, err := d.Resolve(context.Background(), r.URL+"/users/bob")
	require.NoError(err)
	require.Equal(fa.ID, again.ID)
	require.EqualValues(1, r.webfingerHits.Load())
}

func TestResolvePublicKey(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches and caches", func(t *testing.T) {
		require := require.New(t)
		db := modelstest.OpenDB(t)
		r := newRemote(t)
		d := newDirectory(t, models.NewStore(db), r)

		pem, err := d.ResolvePublicKey(ctx, r.URL+"/users/bob")
		require.NoError(err)
		require.Contains(pem, "BEGIN PUBLIC KEY")

		pem2, err := d.ResolvePublicKey(ctx, r.URL+"/users/bob")
		require.NoError(err)
		require.Equal(pem, pem2)
		require.EqualValues(1, r.actorHits.Load())
		require.EqualValues(0, r.webfingerHits.Load())

		fa, err := models.NewForeignActors(db).FindByURI(r.URL + "/users/bob")
		require.NoError(err)
		require.Equal(r.URL+"/users/bob/inbox", fa.InboxURL)
	})

	t.Run("missing key", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		delete(r.actor, "publicKey")
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)

		_, err := d.ResolvePublicKey(ctx, r.URL+"/users/bob")
		var ke *KeyError
		require.True(errors.As(err, &ke))
		require.Equal("actor missing publicKeyPem", ke.Msg)
	})

	t.Run("KeyFunc parses the key", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)

		key, err := d.KeyFunc(ctx, nil)(httpsig.KeyOwner(r.URL + "/users/bob#main-key"))
		require.NoError(err)
		require.NotNil(key)
		require.Equal("", r.signature.Load())
	})

	t.Run("KeyFunc signs the fetch", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		db := modelstest.OpenDB(t)
		carol, _ := modelstest.MockLocalActor(t, db, "carol")
		d := newDirectory(t, models.NewStore(db), r)

		_, err := d.KeyFunc(ctx, carol)(r.URL + "/users/bob")
		require.NoError(err)
		sig, err := httpsig.ParseSignature(r.signature.Load().(string))
		require.NoError(err)
		require.Equal(carol.PublicKeyID(), sig.KeyID)
		require.Contains(sig.Headers, "(request-target)")
	})

	t.Run("unreachable actor", func(t *testing.T) {
		require := require.New(t)
		r := newRemote(t)
		d := newDirectory(t, models.NewStore(modelstest.OpenDB(t)), r)
		r.Close()

		_, err := d.ResolvePublicKey(ctx, r.URL+"/users/bob")
		var de *DiscoveryError
		require.True(errors.As(err, &de))
	})
}

func TestLRU(t *testing.T) {
	require := require.New(t)
	c := NewLRU(2)
	c.Put("a", "1")
	c.Put("b", "2")
	_, ok := c.Get("a") // a is now most recently used
	require.True(ok)
	c.Put("c", "3")

	_, ok = c.Get("b")
	require.False(ok)
	v, ok := c.Get("a")
	require.True(ok)
	require.Equal("1", v)
	require.Equal(2, c.Len())


	c = NewLRU(0)
	for i := 0; i < DefaultCacheSize+1; i++ {
		c.Put(string(rune(0x100+i)), "x")
	}
	require.Equal(DefaultCacheSize, c.Len())
}

func TestLRUConcurrentUse(t *testing.T) {
	c := NewLRU(8)
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Put(string(rune('a'+i)), "x")
				c.Get(string(rune('a' + j%4)))
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	require.LessOrEqual(t, c.Len(), 8)
}

func TestMemcacheUnreachableIsAMiss(t *testing.T) {
	require := require.New(t)
	client := memcache.New("127.0.0.1:1")
	client.Timeout = 50 * time.Millisecond
	c := NewMemcache(client, 30*time.Minute)
	c.Put("https://remote.example/users/bob", "https://remote.example/users/bob/inbox")
	_, ok := c.Get("https://remote.example/users/bob")
	require.False(ok)
}

func TestMemcacheKey(t *testing.T) {
	require := require.New(t)
	long := "https://remote.example/users/" + string(make([]byte, 400))
	key := memcacheKey(long)
	require.LessOrEqual(len(key), 250)
	require.NotContains(key, " ")
	require.NotEqual(memcacheKey("https://a.example/u/1"), memcacheKey("https://a.example/u/2"))
}
