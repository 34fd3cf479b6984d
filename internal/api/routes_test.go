package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/api"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/repository"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/service"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/internal/storage"
	"github.com/prgrms-web-devcourse-final-project/WEB3-4-Quizzle-BE-sub000/pkg/config"
)

type apiEnv struct {
	router   *gin.Engine
	services *service.Services
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	cfg.Lock.WaitTime = 100 * time.Millisecond

	clock := clockwork.NewRealClock()
	store := storage.NewMemoryStore(clock)
	repos := repository.NewRepositories(nil, store)
	services, err := service.NewServices(cfg, repos, store, service.NewStoreBus(store, zerolog.Nop()), clock, zerolog.Nop())
	require.NoError(t, err)

	r := gin.New()
	api.SetupRoutes(r, services, cfg, zerolog.Nop())
	return &apiEnv{router: r, services: services}
}

func (e *apiEnv) do(t *testing.T, method, path, member string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if member != "" {
		token, err := e.services.Tokens.GenerateToken(member, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestRoutes_RequireBearer(t *testing.T) {
	env := newAPIEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_CREDENTIAL", body["code"])

	code, body = env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRoutes_RoomLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/rooms", "O", map[string]any{"title": "t", "capacity": 9})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_CAPACITY", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/rooms", "O", map[string]any{"title": "friday", "capacity": 2})
	require.Equal(t, http.StatusCreated, code)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	code, _ = env.do(t, http.MethodPost, "/api/rooms/"+id+"/join", "A", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = env.do(t, http.MethodPost, "/api/rooms/"+id+"/ready", "A", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ready"])

	code, body = env.do(t, http.MethodPost, "/api/rooms/"+id+"/start", "A", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_ROOM_OWNER", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/rooms/"+id+"/start", "O", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "IN_GAME", body["status"])

	code, body = env.do(t, http.MethodPost, "/api/rooms/"+id+"/join", "B", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ROOM_IS_FULL", body["code"])
	assert.Equal(t, false, body["retryable"])

	code, body = env.do(t, http.MethodGet, "/api/rooms/"+id, "B", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["playerCount"])

	code, _ = env.do(t, http.MethodPost, "/api/rooms/"+id+"/end", "O", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = env.do(t, http.MethodGet, "/api/rooms/missing", "O", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ROOM_NOT_FOUND", body["code"])
}

func TestRoutes_Blacklist(t *testing.T) {
	env := newAPIEnv(t)
	_, body := env.do(t, http.MethodPost, "/api/rooms", "O", map[string]any{"title": "t", "capacity": 4})
	id := body["id"].(string)

	code, _ := env.do(t, http.MethodPost, "/api/rooms/"+id+"/blacklist/X", "O", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = env.do(t, http.MethodPost, "/api/rooms/"+id+"/join", "X", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "MEMBER_BLACKLISTED", body["code"])

	code, _ = env.do(t, http.MethodDelete, "/api/rooms/"+id+"/blacklist/X", "O", nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = env.do(t, http.MethodDelete, "/api/rooms/"+id+"/blacklist/X", "O", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_BLACKLISTED", body["code"])
}

func TestRoutes_Submission(t *testing.T) {
	env := newAPIEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/quizzes/q1/questions/abc/submissions", "A", map[string]any{"answer": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_QUESTION_NUMBER", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/quizzes/q1/questions/1/submissions", "A", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_REQUEST", body["code"])

	code, body = env.do(t, http.MethodPost, "/api/quizzes/q1/questions/1/submissions", "A", map[string]any{"answer": "x"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "QUIZ_NOT_FOUND", body["code"])
}

func TestRoutes_IssueWSToken(t *testing.T) {
	env := newAPIEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/ws-token", "A", nil)
	require.Equal(t, http.StatusOK, code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	hs, err := env.services.Sessions.Handshake(token)
	require.NoError(t, err)
	assert.Equal(t, "A", hs.Identity)
}
