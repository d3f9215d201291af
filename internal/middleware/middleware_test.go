package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/grouptrip/internal/config"
	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/utils"
)

const secret = "mw-secret"

func bearerFor(t *testing.T, a model.Actor) string {
	t.Helper()
	tok, err := utils.NewAccessToken([]byte(secret), a, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func echoActor(c echo.Context) error {
	a := ActorFrom(c)
	return c.JSON(http.StatusOK, echo.Map{"id": a.UserID, "staff": a.Staff})
}

func TestJWTAuthAndRequireStaff(t *testing.T) {
	e := echo.New()
	e.GET("/x", echoActor, JWTAuth(secret), RequireStaff())

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"member", bearerFor(t, model.Actor{UserID: "u1"}), http.StatusForbidden},
		{"staff", bearerFor(t, model.Actor{UserID: "s1", Staff: true}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e, tc.auth)
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tc.status, rec.Body)
			}
			if tc.status != http.StatusOK && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("error envelope missing: %s", rec.Body)
			}
		})
	}
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/x", echoActor, OptionalJWT(secret))
	if rec := serve(e, "Bearer junk"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":""`) {
		t.Fatalf("broken token on public route: %d %s", rec.Code, rec.Body)
	}
	if rec := serve(e, bearerFor(t, model.Actor{UserID: "u9"})); !strings.Contains(rec.Body.String(), `"id":"u9"`) {
		t.Fatalf("valid token ignored: %s", rec.Body)
	}
}

func TestDisabledRedisFeaturesPassThrough(t *testing.T) {
	e := echo.New()
	rc := NewResponseCache(config.CacheConfig{Enabled: true}, nil, zerolog.Nop())
	rl := NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, "read", 1, zerolog.Nop())
	e.GET("/x", echoActor, rl, rc.Middleware(), rc.Invalidate())
	for i := 0; i < 3; i++ {
		if rec := serve(e, ""); rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
			t.Fatalf("request %d: %d cache=%q", i, rec.Code, rec.Header().Get("X-Cache"))
		}
	}
	if err := rc.Purge(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"groups":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	status, gotHdr, body, ok := decodePayload(bs)
	if !ok || status != 200 || gotHdr.Get("Content-Type") != "application/json" || string(body) != `{"groups":[]}` {
		t.Fatalf("decode = %d %v %q %v", status, gotHdr, body, ok)
	}
	if _, _, _, ok := decodePayload(bs[:6]); ok {
		t.Fatal("short payload decoded")
	}
	bad := append([]byte{}, bs...)
	bad[7] = 0xff
	if _, _, _, ok := decodePayload(bad); ok {
		t.Fatal("oversized header length decoded")
	}
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	if got := rateKey("rl", "write", c); got != "rl:write:10.0.0.7:anon" {
		t.Fatalf("rateKey = %q", got)
	}
	c.Set(actorKey, model.Actor{UserID: "u1"})
	if got := rateKey("rl", "write", c); got != "rl:write:10.0.0.7:u1" {
		t.Fatalf("rateKey = %q", got)
	}
}
