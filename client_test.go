package appcrafted

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioPayload = `{"Assets":[{"AssetID":"a1","color":{"Type":"STRING","Value":"red"},"size":{"Type":"NUMBER","Value":3.5}}]}`

// assetServer serves container payloads under /v0/assets/<id>/all and
// counts requests per path.
type assetServer struct {
	*httptest.Server

	mu         sync.Mutex
	containers map[string]string
	images     map[string][]byte
	status     int
	counts     map[string]int
	total      int32

	// gate, if set, blocks the first container request until closed.
	gate     chan struct{}
	gateOnce sync.Once
}

func newAssetServer(t *testing.T) *assetServer {
	t.Helper()

	s := &assetServer{
		containers: make(map[string]string),
		images:     make(map[string][]byte),
		counts:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *assetServer) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.total, 1)

	s.mu.Lock()
	s.counts[r.URL.Path]++
	status := s.status
	gate := s.gate
	s.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/img/") {
		s.mu.Lock()
		data, ok := s.images[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
		return
	}

	if gate != nil {
		first := false
		s.gateOnce.Do(func() { first = true })
		if first {
			<-gate
		}
	}

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.Header.Get("Authorization") != "Basic YWs6c2s=" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v0/assets/"), "/all")
	s.mu.Lock()
	payload, ok := s.containers[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(payload))
}

func (s *assetServer) setContainer(id, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[id] = payload
}

func (s *assetServer) containerRequests(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts["/v0/assets/"+id+"/all"]
}

func (s *assetServer) requests() int32 {
	return atomic.LoadInt32(&s.total)
}

func newTestClient(t *testing.T, srv *assetServer, opts ...Option) *Client {
	t.Helper()

	all := append([]Option{
		WithEndpoint(srv.URL + "/v0/assets/"),
		WithCredentials("ak", "sk"),
	}, opts...)

	client, err := New(all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{"defaults", nil, false},
		{"empty endpoint", []Option{WithEndpoint("")}, true},
		{"bad endpoint scheme", []Option{WithEndpoint("ftp://example.com/")}, true},
		{"negative retries", []Option{WithMaxRetries(-1)}, true},
		{"negative retry delay", []Option{WithRetryDelay(-time.Second)}, true},
		{"negative body limit", []Option{WithMaxBodyBytes(-1)}, true},
		{"rate limit without burst", []Option{WithRateLimit(10, 0)}, true},
		{"rate limit with burst", []Option{WithRateLimit(10, 2)}, false},
		{"log level", []Option{WithLogLevel("debug")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestNew_DefaultEndpoint(t *testing.T) {
	t.Parallel()

	client, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, client.Stats().Endpoint)
}

func TestClient_GetAsset_Scenario(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	client := newTestClient(t, srv)

	asset, err := client.Get(waitCtx(t), "c1", "a1")
	require.NoError(t, err)

	assert.Equal(t, "a1", asset.ID)
	assert.Equal(t, []string{"color", "size"}, asset.Names())

	colorAttr, ok := asset.Attribute("color")
	require.True(t, ok)
	assert.Equal(t, KindString, colorAttr.Kind())
	s, _ := colorAttr.AsString()
	assert.Equal(t, "red", s)

	size, ok := asset.Attribute("size")
	require.True(t, ok)
	n, _ := size.AsNumber()
	assert.InDelta(t, 3.5, n, 0)
}

func TestClient_GetAsset_CachedTwice(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	first, err := client.Get(ctx, "c1", "a1")
	require.NoError(t, err)
	require.Equal(t, int32(1), srv.requests())

	req := client.GetAsset(ctx, "c1", "a1")
	select {
	case <-req.Done():
	default:
		t.Fatal("cached request should resolve before GetAsset returns")
	}
	second, err := req.Result()
	require.NoError(t, err)
	assert.True(t, req.CacheHit())

	third, err := client.Get(ctx, "c1", "a1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, third)
	assert.Equal(t, int32(1), srv.requests(), "cached requests make no HTTP calls")

	stats := client.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.ContainerFetches)
}

func TestClient_Reset(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	srv.setContainer("c2", `{"Assets":[{"AssetID":"b1"}]}`)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	before, err := client.Get(ctx, "c1", "a1")
	require.NoError(t, err)
	_, err = client.Get(ctx, "c2", "b1")
	require.NoError(t, err)

	after, err := client.Reset(ctx, "c1", "a1").Wait(ctx)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, 2, srv.containerRequests("c1"), "reset causes exactly one new fetch")

	_, ok := client.Lookup("c2", "b1")
	assert.False(t, ok, "reset clears every container")

	_, err = client.Get(ctx, "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.containerRequests("c1"))

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.Resets)
	assert.Equal(t, 1, stats.Containers)
	assert.Equal(t, uint64(1), stats.Generation)
}

func TestClient_MissingCredentials(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)

	client, err := New(WithEndpoint(srv.URL + "/v0/assets/"))
	require.NoError(t, err)
	defer client.Close()

	var events []Event
	var mu sync.Mutex
	client.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	_, err = client.Get(waitCtx(t), "c1", "a1")
	require.Error(t, err)
	assert.True(t, IsCredentialsMissing(err))
	assert.True(t, errors.Is(err, ErrCredentialsMissing))
	assert.Equal(t, int32(0), srv.requests(), "no HTTP request without credentials")

	client.RegisterCredentials("ak", "")
	_, err = client.Get(waitCtx(t), "c1", "a1")
	assert.True(t, IsCredentialsMissing(err))
	assert.Equal(t, int32(0), srv.requests())

	client.RegisterCredentials("ak", "sk")
	_, err = client.Get(waitCtx(t), "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.requests())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.True(t, IsCredentialsMissing(events[0].Err))
	assert.NoError(t, events[2].Err)
}

func TestClient_StringArrayAndUnknownTag(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", `{"Assets":[{"AssetID":"a1",
		"tags":{"Type":"STRING_ARRAY","Value":["x","y","z"]},
		"weights":{"Type":"NUMBER_ARRAY","Value":[1,2,3,4]},
		"mystery":{"Type":"UNKNOWN_TAG","Value":"?"},
		"site":{"Type":"URL","Value":"http://example.com"}}]}`)
	client := newTestClient(t, srv)

	asset, err := client.Get(waitCtx(t), "c1", "a1")
	require.NoError(t, err)

	tags, ok := asset.Attribute("tags")
	require.True(t, ok)
	ss, ok := tags.AsStrings()
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y", "z"}, ss)

	weights, _ := asset.Attribute("weights")
	ns, _ := weights.AsNumbers()
	assert.Equal(t, []float64{1, 2, 3, 4}, ns)

	_, ok = asset.Attribute("mystery")
	assert.False(t, ok, "unknown attribute types are omitted")
	assert.Equal(t, []string{"tags", "weights", "site"}, asset.Names())
}

func TestClient_AssetIDsUnique(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("dup", `{"Assets":[{"AssetID":"a"},{"AssetID":"a"}]}`)
	srv.setContainer("ok", `{"Assets":[{"AssetID":"a"},{"AssetID":"b"}]}`)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	_, err := client.Get(ctx, "dup", "a")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
	_, ok := client.Lookup("dup", "a")
	assert.False(t, ok, "a rejected container is not cached")

	_, err = client.Get(ctx, "ok", "a")
	require.NoError(t, err)
	_, ok = client.Lookup("ok", "b")
	assert.True(t, ok)
}

func TestClient_NotFound(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	_, err := client.Get(ctx, "c1", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	req := client.GetAsset(ctx, "c1", "also-missing")
	_, err = req.Result()
	assert.True(t, IsNotFound(err), "resolved from the cached container")
	assert.True(t, req.CacheHit())
	assert.Equal(t, 1, srv.containerRequests("c1"))

	a1, ok := client.Lookup("c1", "a1")
	require.True(t, ok)
	assert.Equal(t, "a1", a1.ID)
}

func TestClient_NetworkError(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	srv.mu.Lock()
	srv.status = http.StatusInternalServerError
	srv.mu.Unlock()

	client := newTestClient(t, srv, WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	ctx := waitCtx(t)

	_, err := client.Get(ctx, "c1", "a1")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.Equal(t, 2, srv.containerRequests("c1"), "one retry")

	_, ok := client.Lookup("c1", "a1")
	assert.False(t, ok, "failed fetch leaves nothing cached")

	srv.mu.Lock()
	srv.status = 0
	srv.mu.Unlock()

	_, err = client.Get(ctx, "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), client.Stats().FetchErrors)
}

func TestClient_MalformedPayload(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", `{"Assets":[{"AssetID":"a1","n":{"Type":"NUMBER","Value":"abc"}}]}`)
	client := newTestClient(t, srv)

	_, err := client.Get(waitCtx(t), "c1", "a1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttributeMismatch))
	assert.Equal(t, errors.CodeSchemaFailed, errors.GetCode(err))
	assert.Equal(t, int64(1), client.Stats().FetchErrors, "decode failures are counted")
}

func TestClient_ConcurrentRequestsShareFetch(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	var payload strings.Builder
	payload.WriteString(`{"Assets":[`)
	for i := 0; i < 10; i++ {
		if i > 0 {
			payload.WriteString(",")
		}
		fmt.Fprintf(&payload, `{"AssetID":"a%d"}`, i)
	}
	payload.WriteString(`]}`)
	srv.setContainer("c1", payload.String())

	gate := make(chan struct{})
	srv.mu.Lock()
	srv.gate = gate
	srv.mu.Unlock()

	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	requests := make([]*Request, 10)
	for i := range requests {
		requests[i] = client.GetAsset(ctx, "c1", fmt.Sprintf("a%d", i))
	}
	close(gate)

	for i, req := range requests {
		asset, err := req.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("a%d", i), asset.ID)
	}
	assert.Equal(t, 1, srv.containerRequests("c1"), "one fetch per container")
}

func TestClient_ResetDuringFetch(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	gate := make(chan struct{})
	srv.mu.Lock()
	srv.gate = gate
	srv.mu.Unlock()

	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	stale := client.GetAsset(ctx, "c1", "a1")
	require.Eventually(t, func() bool { return srv.containerRequests("c1") == 1 },
		time.Second, time.Millisecond)

	fresh, err := client.Reset(ctx, "c1", "a1").Wait(ctx)
	require.NoError(t, err)

	close(gate)
	staleAsset, err := stale.Wait(ctx)
	require.NoError(t, err)
	assert.NotSame(t, fresh, staleAsset)

	cached, ok := client.Lookup("c1", "a1")
	require.True(t, ok)
	assert.Same(t, fresh, cached, "a fetch begun before reset does not repopulate the cache")
	assert.Equal(t, 2, srv.containerRequests("c1"))
}

func TestClient_Images(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := newAssetServer(t)
	srv.mu.Lock()
	srv.images["/img/icon.png"] = buf.Bytes()
	srv.mu.Unlock()
	srv.setContainer("c1", fmt.Sprintf(
		`{"Assets":[{"AssetID":"a1","icon":{"Type":"IMAGE","Value":"%s/img/icon.png"}}]}`, srv.URL))

	client := newTestClient(t, srv)

	asset, err := client.Get(waitCtx(t), "c1", "a1")
	require.NoError(t, err)

	icon, ok := asset.Attribute("icon")
	require.True(t, ok)
	decoded, ok := icon.AsImage()
	require.True(t, ok)
	assert.Equal(t, 8, decoded.Width)
	assert.Equal(t, 6, decoded.Height)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.ImageFetches)
	assert.Equal(t, 1, stats.Images)
}

func TestClient_ImageMissingFailsContainer(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", fmt.Sprintf(
		`{"Assets":[{"AssetID":"a1","icon":{"Type":"IMAGE","Value":"%s/img/missing.png"}}]}`, srv.URL))
	client := newTestClient(t, srv)

	_, err := client.Get(waitCtx(t), "c1", "a1")
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	_, ok := client.Lookup("c1", "a1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), client.Stats().FetchErrors, "one failed download counts once")
}

func TestClient_Subscribe(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	var (
		mu    sync.Mutex
		order []string
		got   []Event
	)
	unsubscribe := client.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "first")
		got = append(got, e)
	})
	client.Subscribe(func(Event) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "second")
	})

	req := client.GetAsset(ctx, "c1", "a1")
	asset, err := req.Wait(ctx)
	require.NoError(t, err)

	hit := client.GetAsset(ctx, "c1", "a1")

	mu.Lock()
	require.Len(t, got, 2)
	assert.Equal(t, req.ID(), got[0].RequestID)
	assert.Equal(t, "c1", got[0].ContainerID)
	assert.Equal(t, "a1", got[0].AssetID)
	assert.Same(t, asset, got[0].Asset)
	assert.False(t, got[0].CacheHit)
	assert.Equal(t, hit.ID(), got[1].RequestID)
	assert.True(t, got[1].CacheHit)
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	client.GetAsset(ctx, "c1", "a1")

	mu.Lock()
	assert.Len(t, got, 2, "unsubscribed listener is not called")
	mu.Unlock()
	assert.Equal(t, 1, client.Stats().Listeners)
}

func TestClient_OnAssetLoaded(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	var loaded []string
	var mu sync.Mutex
	client.OnAssetLoaded(func(a *Asset) {
		mu.Lock()
		defer mu.Unlock()
		loaded = append(loaded, a.ID)
	})

	_, err := client.Get(ctx, "c1", "a1")
	require.NoError(t, err)
	_, err = client.Get(ctx, "c1", "nope")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a1"}, loaded)
}

func TestRequest_WaitAndResult(t *testing.T) {
	t.Parallel()

	req := newRequest("c1", "a1")
	assert.NotEmpty(t, req.ID())
	assert.NotEqual(t, req.ID(), newRequest("c1", "a1").ID())

	_, err := req.Result()
	assert.ErrorIs(t, err, ErrRequestPending)
	assert.False(t, req.CacheHit())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = req.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))

	asset := &Asset{ID: "a1"}
	notified := 0
	assert.True(t, req.resolve(asset, nil, true, func() { notified++ }))
	assert.False(t, req.resolve(nil, ErrNetwork, false, func() { notified++ }), "resolves once")
	assert.Equal(t, 1, notified)

	got, err := req.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, asset, got)
	assert.True(t, req.CacheHit())
}

func TestClient_Close(t *testing.T) {
	t.Parallel()

	srv := newAssetServer(t)
	srv.setContainer("c1", scenarioPayload)
	client := newTestClient(t, srv)
	ctx := waitCtx(t)

	_, err := client.Get(ctx, "c1", "a1")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = client.Get(ctx, "c1", "a1")
	assert.NoError(t, err, "cached assets remain available")

	_, err = client.Get(ctx, "c2", "a1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}
