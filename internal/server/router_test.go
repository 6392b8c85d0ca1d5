package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/listopt/internal/jsondoc"
	"github.com/maruel/listopt/internal/models"
	"github.com/maruel/listopt/internal/optimizer"
	"github.com/maruel/listopt/internal/server/handlers"
	"github.com/maruel/listopt/internal/server/ratelimit"
	"github.com/maruel/listopt/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testServer struct {
	t *testing.T
	h http.Handler
}

func newTestServer(t *testing.T, limiters *ratelimit.Limiters, maxBody int64) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	stores, err := storage.OpenStores(t.TempDir(), &jsondoc.Options{Metrics: jsondoc.NewMetrics(reg)})
	if err != nil {
		t.Fatal(err)
	}
	cfg := &handlers.Config{JWTSecret: testSecret, TokenTTL: 30 * time.Minute, MaxRequestBodyBytes: maxBody}
	svc := &Services{
		Users:         storage.NewUserService(stores.Users),
		Products:      storage.NewProductService(stores.Products),
		Optimizations: storage.NewOptimizationService(stores.Optimizations),
		Optimizer:     optimizer.Rules{},
		Dispatcher:    optimizer.NewDispatcher(),
		Schemas: map[string]handlers.SchemaProvider{
			"users":         stores.Users,
			"products":      stores.Products,
			"optimizations": stores.Optimizations,
		},
		Documents: map[string]handlers.Counter{
			"users":         stores.Users,
			"products":      stores.Products,
			"optimizations": stores.Optimizations,
		},
		Version: "test",
	}
	return &testServer{t: t, h: NewRouter(svc, cfg, limiters, reg)}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r *http.Request
	switch b := body.(type) {
	case nil:
		r = httptest.NewRequest(method, path, nil)
	case string:
		r = httptest.NewRequest(method, path, strings.NewReader(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Details map[string]any `json:"details"`
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, status, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expect(t, w, status)
	if got := decode[errorBody](t, w).Error.Code; got != code {
		t.Errorf("code = %q, want %q", got, code)
	}
}

func (ts *testServer) register(email string) (string, *models.User) {
	ts.t.Helper()
	w := ts.do("POST", "/api/auth/register", "", map[string]string{"email": email, "password": "password123", "first_name": "Test"})
	expect(ts.t, w, http.StatusCreated)
	resp := decode[handlers.TokenResponse](ts.t, w)
	return resp.AccessToken, resp.User
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, nil, 0)

	w := ts.do("POST", "/api/auth/register", "", map[string]string{"email": "joe@example.com", "password": "password123"})
	expect(t, w, http.StatusCreated)
	resp := decode[handlers.TokenResponse](t, w)
	if resp.TokenType != "bearer" || resp.AccessToken == "" || resp.ExpiresIn != 1800 {
		t.Errorf("unexpected token response %+v", resp)
	}
	if resp.User == nil || resp.User.Email != "joe@example.com" || resp.User.SubscriptionPlan != models.PlanFree {
		t.Errorf("unexpected user %+v", resp.User)
	}
	if strings.Contains(w.Body.String(), "hashed_password") {
		t.Error("password hash leaked")
	}

	t.Run("RegisterErrors", func(t *testing.T) {
		tests := []struct {
			name   string
			body   any
			status int
			code   string
		}{
			{"duplicate", map[string]string{"email": "JOE@example.com", "password": "password123"}, http.StatusConflict, "CONFLICT"},
			{"bad email", map[string]string{"email": "joe", "password": "password123"}, http.StatusBadRequest, "VALIDATION_FAILED"},
			{"short password", map[string]string{"email": "a@example.com", "password": "x"}, http.StatusBadRequest, "VALIDATION_FAILED"},
			{"missing password", map[string]string{"email": "a@example.com"}, http.StatusBadRequest, "MISSING_FIELD"},
			{"unknown field", map[string]string{"email": "a@example.com", "password": "password123", "role": "admin"}, http.StatusBadRequest, "VALIDATION_FAILED"},
			{"bad json", "{", http.StatusBadRequest, "VALIDATION_FAILED"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				expectError(t, ts.do("POST", "/api/auth/register", "", tt.body), tt.status, tt.code)
			})
		}
	})

	t.Run("Login", func(t *testing.T) {
		w := ts.do("POST", "/api/auth/login", "", map[string]string{"email": "joe@example.com", "password": "password123"})
		expect(t, w, http.StatusOK)
		if decode[handlers.TokenResponse](t, w).User.ID != resp.User.ID {
			t.Error("login returned another user")
		}
		expectError(t, ts.do("POST", "/api/auth/login", "", map[string]string{"email": "joe@example.com", "password": "nope"}), http.StatusUnauthorized, "UNAUTHORIZED")
		expectError(t, ts.do("POST", "/api/auth/login", "", map[string]string{"email": "bob@example.com", "password": "nope"}), http.StatusUnauthorized, "UNAUTHORIZED")
	})

	t.Run("Me", func(t *testing.T) {
		w := ts.do("GET", "/api/auth/me", resp.AccessToken, nil)
		expect(t, w, http.StatusOK)
		if decode[models.User](t, w).ID != resp.User.ID {
			t.Error("wrong user")
		}
	})

	t.Run("InvalidTokens", func(t *testing.T) {
		sign := func(claims jwt.MapClaims, secret []byte) string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
			if err != nil {
				t.Fatal(err)
			}
			return s
		}
		exp := time.Now().Add(time.Hour).Unix()
		tests := []struct {
			name   string
			header string
		}{
			{"none", ""},
			{"not bearer", "Basic abc"},
			{"garbage", "Bearer abc"},
			{"expired", "Bearer " + sign(jwt.MapClaims{"sub": resp.User.ID, "exp": time.Now().Add(-time.Minute).Unix()}, testSecret)},
			{"no exp", "Bearer " + sign(jwt.MapClaims{"sub": resp.User.ID}, testSecret)},
			{"wrong secret", "Bearer " + sign(jwt.MapClaims{"sub": resp.User.ID, "exp": exp}, []byte("another secret another secret!!!"))},
			{"unknown user", "Bearer " + sign(jwt.MapClaims{"sub": "ghost", "exp": exp}, testSecret)},
			{"no subject", "Bearer " + sign(jwt.MapClaims{"exp": exp}, testSecret)},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				r := httptest.NewRequest("GET", "/api/auth/me", nil)
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}
				w := httptest.NewRecorder()
				ts.h.ServeHTTP(w, r)
				expectError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
				if w.Header().Get("WWW-Authenticate") != "Bearer" {
					t.Error("missing WWW-Authenticate")
				}
			})
		}
	})
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	alice, _ := ts.register("alice@example.com")
	bob, _ := ts.register("bob@example.com")

	body := map[string]any{
		"title":       "Ceramic mug",
		"description": "Sturdy.",
		"price":       12.5,
		"category":    "Home",
		"tags":        []string{"mug"},
		"attributes":  map[string]string{"color": "blue"},
		"images":      []string{},
		"variants":    []any{},
	}
	w := ts.do("POST", "/api/products", alice, body)
	expect(t, w, http.StatusCreated)
	p := decode[models.Product](t, w)
	if p.ID == "" || p.Title != "Ceramic mug" || p.CreatedAt.IsZero() {
		t.Fatalf("unexpected product %+v", p)
	}

	expectError(t, ts.do("POST", "/api/products", alice, map[string]any{"price": 1}), http.StatusBadRequest, "MISSING_FIELD")
	expectError(t, ts.do("POST", "/api/products", alice, map[string]any{"title": "x", "price": -1}), http.StatusBadRequest, "VALIDATION_FAILED")
	expectError(t, ts.do("POST", "/api/products", "", body), http.StatusUnauthorized, "UNAUTHORIZED")

	t.Run("List", func(t *testing.T) {
		w := ts.do("GET", "/api/products", alice, nil)
		expect(t, w, http.StatusOK)
		if list := decode[[]models.Product](t, w); len(list) != 1 || list[0].ID != p.ID {
			t.Errorf("unexpected list %+v", list)
		}
		w = ts.do("GET", "/api/products", bob, nil)
		expect(t, w, http.StatusOK)
		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("expected empty array, got %s", w.Body.String())
		}
	})

	t.Run("Get", func(t *testing.T) {
		expect(t, ts.do("GET", "/api/products/"+p.ID, alice, nil), http.StatusOK)
		expectError(t, ts.do("GET", "/api/products/"+p.ID, bob, nil), http.StatusForbidden, "FORBIDDEN")
		expectError(t, ts.do("GET", "/api/products/missing", alice, nil), http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("Update", func(t *testing.T) {
		upd := map[string]any{"title": "Stoneware mug", "price": 14}
		expectError(t, ts.do("PUT", "/api/products/"+p.ID, bob, upd), http.StatusForbidden, "FORBIDDEN")
		w := ts.do("PUT", "/api/products/"+p.ID, alice, upd)
		expect(t, w, http.StatusOK)
		got := decode[models.Product](t, w)
		if got.Title != "Stoneware mug" || got.UserID != p.UserID || !got.CreatedAt.Equal(p.CreatedAt.Time) {
			t.Errorf("unexpected product %+v", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		expectError(t, ts.do("DELETE", "/api/products/"+p.ID, bob, nil), http.StatusForbidden, "FORBIDDEN")
		w := ts.do("DELETE", "/api/products/"+p.ID, alice, nil)
		expect(t, w, http.StatusNoContent)
		if w.Body.Len() != 0 {
			t.Errorf("unexpected body %q", w.Body.String())
		}
		expectError(t, ts.do("DELETE", "/api/products/"+p.ID, alice, nil), http.StatusNotFound, "NOT_FOUND")
	})
}

func TestOptimizations(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	alice, _ := ts.register("alice@example.com")
	bob, _ := ts.register("bob@example.com")
	w := ts.do("POST", "/api/products", alice, map[string]any{"title": "Ceramic mug", "price": 12.5, "category": "home", "tags": []string{"mug", "gift"}})
	expect(t, w, http.StatusCreated)
	p := decode[models.Product](t, w)

	req := func(platforms ...string) map[string]any {
		return map[string]any{"product_id": p.ID, "platforms": platforms, "optimization_focus": "seo"}
	}
	expectError(t, ts.do("POST", "/api/optimizations", alice, req("etsy", "amazon")), http.StatusPaymentRequired, "QUOTA_EXCEEDED")
	expectError(t, ts.do("POST", "/api/optimizations", alice, req("ebay")), http.StatusBadRequest, "VALIDATION_FAILED")
	expectError(t, ts.do("POST", "/api/optimizations", bob, req("etsy")), http.StatusForbidden, "FORBIDDEN")
	expectError(t, ts.do("POST", "/api/optimizations", alice, map[string]any{"product_id": p.ID}), http.StatusBadRequest, "MISSING_FIELD")

	w = ts.do("POST", "/api/optimizations", alice, req("etsy"))
	expect(t, w, http.StatusCreated)
	o := decode[models.Optimization](t, w)
	if o.MasterProductID != p.ID || len(o.OptimizedListings) != 1 || o.OptimizedListings[0].Platform != "etsy" {
		t.Fatalf("unexpected optimization %+v", o)
	}

	t.Run("GetAndList", func(t *testing.T) {
		expect(t, ts.do("GET", "/api/optimizations/"+o.ID, alice, nil), http.StatusOK)
		expectError(t, ts.do("GET", "/api/optimizations/"+o.ID, bob, nil), http.StatusForbidden, "FORBIDDEN")
		w := ts.do("GET", "/api/optimizations?product_id="+p.ID, alice, nil)
		expect(t, w, http.StatusOK)
		if list := decode[[]models.Optimization](t, w); len(list) != 1 {
			t.Errorf("unexpected list %+v", list)
		}
		w = ts.do("GET", "/api/optimizations?product_id=other", alice, nil)
		expect(t, w, http.StatusOK)
		if list := decode[[]models.Optimization](t, w); len(list) != 0 {
			t.Errorf("unexpected list %+v", list)
		}
	})

	t.Run("Quota", func(t *testing.T) {
		for range 4 {
			expect(t, ts.do("POST", "/api/optimizations", alice, req("shopify")), http.StatusCreated)
		}
		expectError(t, ts.do("POST", "/api/optimizations", alice, req("shopify")), http.StatusPaymentRequired, "QUOTA_EXCEEDED")
		w := ts.do("GET", "/api/optimizations/usage", alice, nil)
		expect(t, w, http.StatusOK)
		u := decode[handlers.UsageResponse](t, w)
		if u.UsedThisMonth != 5 || u.Limits.OptimizationsPerMonth != 5 || u.Plan != models.PlanFree {
			t.Errorf("unexpected usage %+v", u)
		}

		w = ts.do("PUT", "/api/auth/me/plan", alice, map[string]string{"subscription_plan": "pro"})
		expect(t, w, http.StatusOK)
		w = ts.do("POST", "/api/optimizations", alice, req("shopify", "etsy", "amazon"))
		expect(t, w, http.StatusCreated)
		if got := decode[models.Optimization](t, w); len(got.OptimizedListings) != 3 {
			t.Errorf("expected 3 listings, got %d", len(got.OptimizedListings))
		}
		expectError(t, ts.do("PUT", "/api/auth/me/plan", alice, map[string]string{"subscription_plan": "gold"}), http.StatusBadRequest, "VALIDATION_FAILED")
	})
}

func TestPublishing(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	tok, _ := ts.register("alice@example.com")
	listing := map[string]any{"platform": "shopify", "title": "Blue Mug", "description": "", "tags": []string{}, "category": "Home & Garden", "original_product_id": "p1"}

	w := ts.do("POST", "/api/publishing", tok, map[string]any{
		"optimized_listing":    listing,
		"platform_credentials": map[string]any{"platform": "shopify", "credentials": map[string]string{"shop_name": "s", "access_token": "t"}},
	})
	expect(t, w, http.StatusOK)
	if res := decode[models.PublishResult](t, w); !res.Success || res.ListingURL != "https://s.myshopify.com/products/blue-mug" {
		t.Errorf("unexpected result %+v", res)
	}

	w = ts.do("POST", "/api/publishing/batch", tok, map[string]any{"requests": []any{
		map[string]any{"optimized_listing": listing, "platform_credentials": map[string]any{"platform": "ebay"}},
		map[string]any{"optimized_listing": listing, "platform_credentials": map[string]any{"platform": "amazon", "credentials": map[string]string{"seller_id": "s", "access_token": "t"}}},
	}})
	expect(t, w, http.StatusOK)
	res := decode[map[string]models.PublishResult](t, w)
	if res["ebay"].Success || !res["amazon"].Success {
		t.Errorf("unexpected results %+v", res)
	}
	expectError(t, ts.do("POST", "/api/publishing/batch", tok, map[string]any{"requests": []any{}}), http.StatusBadRequest, "VALIDATION_FAILED")
}

func TestPublicEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	ts.register("alice@example.com")

	t.Run("Root", func(t *testing.T) {
		w := ts.do("GET", "/", "", nil)
		expect(t, w, http.StatusOK)
		if w.Header().Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		expect(t, ts.do("GET", "/nope", "", nil), http.StatusNotFound)
	})

	t.Run("Health", func(t *testing.T) {
		w := ts.do("GET", "/api/health", "", nil)
		expect(t, w, http.StatusOK)
		h := decode[handlers.HealthResponse](t, w)
		if h.Status != "ok" || h.Documents["users"].Records != 1 || len(h.Documents) != 3 {
			t.Errorf("unexpected health %+v", h)
		}
	})

	t.Run("Platforms", func(t *testing.T) {
		w := ts.do("GET", "/api/platforms", "", nil)
		expect(t, w, http.StatusOK)
		resp := decode[handlers.PlatformsResponse](t, w)
		if len(resp.Platforms) != 3 || resp.Plans[models.PlanBasic].PlatformsPerRequest != 2 {
			t.Errorf("unexpected platforms %+v", resp)
		}
		w = ts.do("GET", "/api/platforms/etsy", "", nil)
		expect(t, w, http.StatusOK)
		if r := decode[models.PlatformRequirements](t, w); r.MaxTags != 13 {
			t.Errorf("unexpected requirements %+v", r)
		}
		expectError(t, ts.do("GET", "/api/platforms/ebay", "", nil), http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("Schemas", func(t *testing.T) {
		w := ts.do("GET", "/api/schemas/products", "", nil)
		expect(t, w, http.StatusOK)
		for _, field := range []string{`"title"`, `"user_id"`, `"created_at"`} {
			if !strings.Contains(w.Body.String(), field) {
				t.Errorf("schema lacks %s", field)
			}
		}
		w = ts.do("GET", "/api/schemas/users", "", nil)
		expect(t, w, http.StatusOK)
		if strings.Contains(w.Body.String(), "hashed_password") {
			t.Error("users schema exposes hashed_password")
		}
		expectError(t, ts.do("GET", "/api/schemas/orders", "", nil), http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("Metrics", func(t *testing.T) {
		w := ts.do("GET", "/metrics", "", nil)
		expect(t, w, http.StatusOK)
		for _, name := range []string{"jsondoc_operations_total", "listopt_http_requests_total"} {
			if !strings.Contains(w.Body.String(), name) {
				t.Errorf("metrics lack %s", name)
			}
		}
	})
}

func TestRateLimit(t *testing.T) {
	limiters := ratelimit.NewLimiters(2, 0)
	defer limiters.Close()
	ts := newTestServer(t, limiters, 0)
	login := map[string]string{"email": "nobody@example.com", "password": "password123"}
	for range 2 {
		w := ts.do("POST", "/api/auth/login", "", login)
		expect(t, w, http.StatusUnauthorized)
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("missing rate limit headers: %v", w.Header())
		}
	}
	w := ts.do("POST", "/api/auth/login", "", login)
	expectError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestBodyLimit(t *testing.T) {
	ts := newTestServer(t, nil, 64)
	body := map[string]string{"email": "a@example.com", "password": strings.Repeat("x", 100)}
	expectError(t, ts.do("POST", "/api/auth/register", "", body), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE")
}

func TestOptimizationQuotaConcurrent(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	tok, _ := ts.register("alice@example.com")
	w := ts.do("POST", "/api/products", tok, map[string]any{"title": "Ceramic mug", "price": 12.5})
	expect(t, w, http.StatusCreated)
	p := decode[models.Product](t, w)
	body, err := json.Marshal(map[string]any{"product_id": p.ID, "platforms": []string{"etsy"}})
	if err != nil {
		t.Fatal(err)
	}

	const n = 30
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := httptest.NewRequest("POST", "/api/optimizations", bytes.NewReader(body))
			r.Header.Set("Authorization", "Bearer "+tok)
			w := httptest.NewRecorder()
			ts.h.ServeHTTP(w, r)
			codes[i] = w.Code
		}()
	}
	wg.Wait()
	created, refused := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusPaymentRequired:
			refused++
		default:
			t.Errorf("unexpected status %d", c)
		}
	}
	if created != 5 || refused != n-5 {
		t.Errorf("created = %d, refused = %d, want 5/%d", created, refused, n-5)
	}
	w = ts.do("GET", "/api/optimizations", tok, nil)
	expect(t, w, http.StatusOK)
	if list := decode[[]models.Optimization](t, w); len(list) != 5 {
		t.Errorf("stored %d optimizations, want 5", len(list))
	}
}

func TestConcurrentRegistration(t *testing.T) {
	ts := newTestServer(t, nil, 0)
	body := []byte(`{"email": "joe@example.com", "password": "password123"}`)
	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			ts.h.ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/register", bytes.NewReader(body)))
			codes[i] = w.Code
		}()
	}
	wg.Wait()
	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", c)
		}
	}
	if created != 1 {
		t.Errorf("%d accounts created, want 1", created)
	}
}
