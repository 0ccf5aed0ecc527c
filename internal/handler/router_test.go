package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tophome-storefront/internal/api"
	"tophome-storefront/internal/catalog"
	"tophome-storefront/internal/middleware"
	"tophome-storefront/internal/repository/memory"
	"tophome-storefront/internal/shopper"
	"tophome-storefront/internal/testutil"
	"tophome-storefront/internal/websocket"
	"tophome-storefront/web"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteAPI fakes the upstream store API. The product endpoints always
// fail so the catalog serves its bundled products.
type remoteAPI struct {
	t *testing.T

	mu         sync.Mutex
	favorites  map[int]bool
	failWrites bool
	listCalls  atomic.Int32
}

func newRemoteAPI(t *testing.T) *remoteAPI {
	return &remoteAPI{t: t, favorites: make(map[int]bool)}
}

func (a *remoteAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(r.URL.Path, "/WishList/") && !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
		return
	}

	switch {
	case r.URL.Path == "/Account/Login":
		var creds struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid email or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":    testutil.NewTestToken(a.t, time.Now().Add(time.Hour)),
			"userName": "Amal",
			"email":    creds.Email,
		})

	case r.URL.Path == "/WishList/get-favorites":
		a.listCalls.Add(1)
		a.mu.Lock()
		items := make([]map[string]any, 0, len(a.favorites))
		for id := range a.favorites {
			items = append(items, map[string]any{"id": id, "name": "Remote", "price": 1})
		}
		a.mu.Unlock()
		_ = json.NewEncoder(w).Encode(items)

	case r.URL.Path == "/WishList/create":
		var body struct {
			ProductID int `json:"productId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.failWrites {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"An unexpected error occurred"}`))
			return
		}
		a.favorites[body.ProductID] = true
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))

	case r.URL.Path == "/WishList/Delete":
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.failWrites {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{}`))
			return
		}
		id, _ := strconv.Atoi(r.URL.Query().Get("productId"))
		delete(a.favorites, id)
		_, _ = w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{}`))
	}
}

func (a *remoteAPI) hasFavorite(id int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.favorites[id]
}

func (a *remoteAPI) setFailWrites(fail bool) {
	a.mu.Lock()
	a.failWrites = fail
	a.mu.Unlock()
}

type storefront struct {
	server *httptest.Server
	client *http.Client
	remote *remoteAPI
	hub    *websocket.Hub
}

func newStorefront(t *testing.T) *storefront {
	t.Helper()
	remote := newRemoteAPI(t)
	upstream := httptest.NewServer(remote)
	t.Cleanup(upstream.Close)

	apiClient := api.NewClient(upstream.URL, nil)
	cat, err := catalog.NewService(apiClient, time.Second)
	require.NoError(t, err)
	renderer, err := NewRenderer(web.Templates)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := websocket.NewHub()
	go func() { _ = hub.Run(ctx) }()

	repo := memory.NewStateRepository()
	registry := shopper.NewRegistry(repo, apiClient, shopper.Config{
		TokenCheckInterval: time.Hour,
		IdleTTL:            time.Hour,
	}, hub)
	t.Cleanup(registry.Close)

	router := NewRouter(ctx, Dependencies{
		Shoppers:       registry,
		Catalog:        cat,
		Renderer:       renderer,
		Hub:            hub,
		Storage:        repo,
		AllowedOrigins: []string{"http://localhost:3000"},
		OpenAPI:        middleware.NewOpenAPIValidatorConfig(true, "../../artifacts/openapi.yaml"),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &storefront{server: server, client: client, remote: remote, hub: hub}
}

func (s *storefront) cookie(name string) string {
	u, _ := url.Parse(s.server.URL)
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (s *storefront) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := s.client.Get(s.server.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

// postForm submits a form with the CSRF token taken from the cookie jar
func (s *storefront) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", s.cookie(middleware.CSRFCookieName))
	resp, err := s.client.PostForm(s.server.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (s *storefront) call(t *testing.T, method, path string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-CSRF-Token", s.cookie(middleware.CSRFCookieName))
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

// login signs in and waits for the wishlist's automatic refresh to finish
func (s *storefront) login(t *testing.T) {
	t.Helper()
	s.get(t, "/login")
	resp, _ := s.postForm(t, "/login", url.Values{"email": {"amal@example.com"}, "password": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	require.Eventually(t, func() bool { return s.remote.listCalls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	resp, _ = s.call(t, http.MethodPost, "/api/v1/wishlist/refresh")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// getAs requests path with only the given shopper cookie, like a second browser
func (s *storefront) getAs(t *testing.T, shopperID, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: middleware.ShopperCookieName, Value: shopperID})

	client := &http.Client{CheckRedirect: s.client.CheckRedirect}
	resp, err := client.Do(req)
	require.NoError(t, err)
	readBody(t, resp)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRouter_HomeServesBundledCatalog(t *testing.T) {
	sf := newStorefront(t)

	resp, body := sf.get(t, "/?category=sofas")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Oslo Three-Seat Sofa")
	assert.NotEmpty(t, sf.cookie(middleware.ShopperCookieName))
	assert.NotEmpty(t, sf.cookie(middleware.CSRFCookieName))
}

func TestRouter_HomeSurvivesHugePageIndex(t *testing.T) {
	sf := newStorefront(t)

	resp, body := sf.get(t, "/?page=1537228672809129301")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "Oslo Three-Seat Sofa")
}

func TestRouter_ProductPages(t *testing.T) {
	sf := newStorefront(t)

	resp, body := sf.get(t, "/products/1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Oslo Three-Seat Sofa")

	resp, _ = sf.get(t, "/products/9999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = sf.get(t, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ProtectedPagesRedirectToLogin(t *testing.T) {
	sf := newStorefront(t)

	resp, body := sf.get(t, "/wishlist")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.NotContains(t, body, "المفضلة</h1>")
}

func TestRouter_LoginFlow(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)

	resp, body := sf.call(t, http.MethodGet, "/api/v1/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":true,"userName":"Amal","email":"amal@example.com"}`, body)

	// signed-in shoppers are bounced away from the login page
	resp, _ = sf.get(t, "/login")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = sf.get(t, "/wishlist")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_SignInAndOutRotateShopperID(t *testing.T) {
	sf := newStorefront(t)
	sf.get(t, "/login")
	planted := sf.cookie(middleware.ShopperCookieName)
	require.NotEmpty(t, planted)

	sf.login(t)
	signedIn := sf.cookie(middleware.ShopperCookieName)
	assert.NotEqual(t, planted, signedIn)

	// a client still holding the pre-login id gets nothing
	resp := sf.getAs(t, planted, "/wishlist")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = sf.get(t, "/wishlist")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = sf.postForm(t, "/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.NotEqual(t, signedIn, sf.cookie(middleware.ShopperCookieName))

	resp = sf.getAs(t, signedIn, "/wishlist")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestRouter_LoginRejected(t *testing.T) {
	sf := newStorefront(t)
	sf.get(t, "/login")

	resp, body := sf.postForm(t, "/login", url.Values{"email": {"amal@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, api.InvalidCredentialsMessage)

	resp, body = sf.call(t, http.MethodGet, "/api/v1/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"isAuthenticated":false}`, body)
}

func TestRouter_LoginValidation(t *testing.T) {
	sf := newStorefront(t)
	sf.get(t, "/login")

	resp, body := sf.postForm(t, "/login", url.Values{"email": {"not-an-email"}, "password": {""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "البريد الإلكتروني غير صالح")
	assert.Contains(t, body, "كلمة المرور مطلوبة")
}

func TestRouter_CSRFRequired(t *testing.T) {
	sf := newStorefront(t)
	sf.get(t, "/login")

	resp, err := sf.client.PostForm(sf.server.URL+"/login", url.Values{"email": {"a@b.co"}, "password": {"secret1"}})
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_WishlistAPIRequiresAuth(t *testing.T) {
	sf := newStorefront(t)
	sf.get(t, "/")

	resp, _ := sf.call(t, http.MethodGet, "/api/v1/wishlist")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = sf.call(t, http.MethodPost, "/api/v1/wishlist/1")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, sf.remote.listCalls.Load())
}

func TestRouter_WishlistAddAndRemove(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)

	resp, body := sf.call(t, http.MethodPost, "/api/v1/wishlist/3")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var result ResultResponse
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.Equal(t, "committed", string(result.Outcome))
	assert.Len(t, result.Items, 1)
	assert.Empty(t, result.Pending)
	assert.True(t, sf.remote.hasFavorite(3))

	// adding again is a no-op
	resp, body = sf.call(t, http.MethodPost, "/api/v1/wishlist/3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"outcome":"skipped"`)

	resp, body = sf.call(t, http.MethodDelete, "/api/v1/wishlist/3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"outcome":"committed"`)
	assert.False(t, sf.remote.hasFavorite(3))
}

func TestRouter_WishlistRollback(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)
	sf.remote.setFailWrites(true)

	resp, body := sf.call(t, http.MethodPost, "/api/v1/wishlist/3/toggle")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var result ResultResponse
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.Equal(t, "rolled_back", string(result.Outcome))
	assert.Equal(t, api.FallbackMessage, result.Error)
	assert.Empty(t, result.Items)

	resp, body = sf.call(t, http.MethodGet, "/api/v1/wishlist")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[],"pending":[]}`, body)
}

func TestRouter_WishlistRejectsBadIDs(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)

	resp, _ := sf.call(t, http.MethodPost, "/api/v1/wishlist/abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = sf.call(t, http.MethodPost, "/api/v1/wishlist/9999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_TogglePageRedirectsBack(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)

	resp, _ := sf.postForm(t, "/wishlist/5/toggle", url.Values{"return_to": {"/products/5"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/products/5", resp.Header.Get("Location"))
	assert.True(t, sf.remote.hasFavorite(5))

	resp, body := sf.get(t, "/wishlist")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/products/5")

	resp, _ = sf.postForm(t, "/wishlist/5/toggle", url.Values{"return_to": {"https://evil.example/"}})
	assert.Equal(t, "/wishlist", resp.Header.Get("Location"))
	assert.False(t, sf.remote.hasFavorite(5))
}

func TestRouter_TogglePageCanonicalizesIDs(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)

	sf.postForm(t, "/wishlist/5/toggle", nil)
	require.True(t, sf.remote.hasFavorite(5))

	// "05" names the same product, so this toggle removes it
	resp, _ := sf.postForm(t, "/wishlist/05/toggle", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.False(t, sf.remote.hasFavorite(5))

	resp, body := sf.call(t, http.MethodGet, "/api/v1/wishlist")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[],"pending":[]}`, body)
}

func TestRouter_Logout(t *testing.T) {
	sf := newStorefront(t)
	sf.login(t)
	sf.call(t, http.MethodPost, "/api/v1/wishlist/2")

	resp, _ := sf.postForm(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = sf.get(t, "/wishlist")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, _ = sf.call(t, http.MethodGet, "/api/v1/wishlist")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_APIValidation(t *testing.T) {
	sf := newStorefront(t)
	sf.get(t, "/")

	resp, _ := sf.call(t, http.MethodGet, "/api/v1/products?pageSize=500")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := sf.call(t, http.MethodGet, "/api/v1/products?category=chairs&pageSize=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"pageSize":2`)

	resp, body = sf.call(t, http.MethodGet, "/api/v1/categories")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "sofas")
}

func TestRouter_Health(t *testing.T) {
	sf := newStorefront(t)

	resp, body := sf.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	resp, body = sf.get(t, "/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(body, `"rabbitmq":{"status":"disabled"}`), body)
	assert.Empty(t, sf.cookie(middleware.ShopperCookieName))
}

func TestRouter_WebSocketPushesWishlistUpdates(t *testing.T) {
	sf := newStorefront(t)

	wsURL := "ws" + strings.TrimPrefix(sf.server.URL, "http") + "/ws/wishlist"
	header := func() http.Header {
		u, _ := url.Parse(sf.server.URL)
		h := http.Header{}
		for _, c := range sf.client.Jar.Cookies(u) {
			h.Add("Cookie", c.Name+"="+c.Value)
		}
		return h
	}

	sf.get(t, "/")
	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL, header())
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	sf.login(t)
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, header())
	require.NoError(t, err)
	defer conn.Close()

	read := func() websocket.ServerMessage {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg websocket.ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, websocket.TypeWishlistSnapshot, read().Type)

	// the snapshot is written after the client registered with the hub
	resp, _ = sf.call(t, http.MethodPost, "/api/v1/wishlist/4/toggle")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := read()
	assert.Equal(t, websocket.TypeWishlistUpdated, msg.Type)
	assert.Equal(t, "4", msg.ProductID)
	assert.Equal(t, "committed", msg.Outcome)
	require.Len(t, msg.Items, 1)
}
