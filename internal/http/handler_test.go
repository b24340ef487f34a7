package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anpr-watch/internal/domain/anpr"
	"anpr-watch/internal/pipeline"
	"anpr-watch/internal/registry"
	"anpr-watch/internal/service"
	"anpr-watch/internal/tracker"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router  *gin.Engine
	session *service.Session
	frames  *pipeline.ChannelSource
}

func newFixture(t *testing.T, withFrames bool) fixture {
	t.Helper()

	s, err := service.NewSession(service.Options{
		Mode:     anpr.ModeAlert,
		Tracker:  tracker.Config{RequiredRepeats: 1, RefreshPeriod: 100, Residual: 10},
		Registry: registry.NewSet("XYZ789", "ABC123"),
	}, zerolog.Nop())
	require.NoError(t, err)

	f := fixture{router: gin.New(), session: s}
	var sink FrameSink
	if withFrames {
		f.frames = pipeline.NewChannelSource(1)
		sink = f.frames
	}
	h := NewHandler(s, service.NewHistoryService(s, nil, zerolog.Nop()), sink, zerolog.Nop())
	h.Register(f.router, AuthMiddleware(secret))
	return f
}

func token(t *testing.T, key string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func do(r *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusAndConfirmations(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	f.session.ProcessFrame(context.Background(), anpr.FrameInput{
		Seq:          1,
		Observations: []anpr.PlateObservation{{RawText: "XYZ789"}, {RawText: "DEF456"}},
	})

	w := do(f.router, http.MethodGet, "/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Data service.Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, uint64(1), status.Data.Frames)
	assert.Equal(t, uint64(2), status.Data.Confirmations)
	assert.InDelta(t, 0.775, status.Data.Intensity, 1e-12)
	assert.Equal(t, 2, status.Data.RegistrySize)

	w = do(f.router, http.MethodGet, "/api/v1/confirmations?hits=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []anpr.Confirmation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "XYZ789", list.Data[0].Plate)
	assert.True(t, list.Data[0].Hit)

	w = do(f.router, http.MethodGet, "/api/v1/confirmations?plate=XYZ789", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var byPlate struct {
		Data            []anpr.Confirmation `json:"data"`
		LastConfirmedAt *time.Time          `json:"last_confirmed_at"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &byPlate))
	require.Len(t, byPlate.Data, 1)
	require.NotNil(t, byPlate.LastConfirmedAt)
	assert.True(t, byPlate.LastConfirmedAt.Equal(byPlate.Data[0].At))

	w = do(f.router, http.MethodGet, "/api/v1/confirmations?plate=QQQ999", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_confirmed_at":null`)

	w = do(f.router, http.MethodGet, "/api/v1/confirmations", "", "")
	assert.NotContains(t, w.Body.String(), "last_confirmed_at")

	w = do(f.router, http.MethodGet, "/api/v1/confirmations?from=not-a-time", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegistryRequiresToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)

	w := do(f.router, http.MethodGet, "/api/v1/registry", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(f.router, http.MethodGet, "/api/v1/registry", "", token(t, "other-secret", time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(f.router, http.MethodGet, "/api/v1/registry", "", token(t, secret, time.Now().Add(-time.Minute)))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "expired")

	w = do(f.router, http.MethodGet, "/api/v1/registry", "", token(t, secret, time.Now().Add(time.Hour)))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, []string{"ABC123", "XYZ789"}, list.Data)
}

func TestPushFrame(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	bearer := token(t, secret, time.Now().Add(time.Hour))
	body := `{"plates":[{"text":"XYZ789","warpedBox":[0,0,1,0,1,1,0,1]}]}`

	w := do(f.router, http.MethodPost, "/api/v1/anpr/frames", body, bearer)
	require.Equal(t, http.StatusAccepted, w.Code)

	frame, err := f.frames.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, body, string(frame.Data))

	f.frames.Close()
	w = do(f.router, http.MethodPost, "/api/v1/anpr/frames", body, bearer)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPushFrameDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	w := do(f.router, http.MethodPost, "/api/v1/anpr/frames", "{}", token(t, secret, time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthMiddlewareWithoutSecret(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.GET("/open", AuthMiddleware(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	w := do(r, http.MethodGet, "/open", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
