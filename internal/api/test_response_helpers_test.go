package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/terraincognita07/tierly/internal/db"
	"github.com/terraincognita07/tierly/internal/models"
	"go.uber.org/zap/zaptest"
)

var apiTestNow = time.Date(2025, time.May, 5, 8, 0, 0, 0, time.UTC)

const apiTestSecretKey = "0123456789abcdef0123456789abcdef"

func newAPITestApp(t *testing.T, options Options) (*fiber.App, *db.Repositories) {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "tierly-api-test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("open sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if options.Logger == nil {
		options.Logger = zaptest.NewLogger(t)
	}
	if options.Now == nil {
		options.Now = func() time.Time { return apiTestNow }
	}

	handler, err := NewHandler(database, options)
	if err != nil {
		t.Fatalf("init handler: %v", err)
	}

	app := fiber.New()
	RegisterRoutes(app, handler)
	app.Use(handler.NotFound)
	return app, db.NewRepositories(database)
}

func createAPITestUser(t *testing.T, repositories *db.Repositories, name string) models.User {
	t.Helper()

	user := models.User{Name: name, Username: name}
	if err := repositories.Users.Create(context.Background(), &user); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func userHeaders(userID uint) map[string]string {
	return map[string]string{userIDHeader: strconv.FormatUint(uint64(userID), 10)}
}

func doRequest(t *testing.T, app *fiber.App, method string, path string, body any, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	switch typed := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	request := httptest.NewRequest(method, path, reader)
	if reader != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := app.Test(request, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	return response
}

func decodeJSONResponse(t *testing.T, response *http.Response, target any) {
	t.Helper()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("decode response body %q: %v", raw, err)
	}
}

func readAPIError(t *testing.T, body io.Reader) string {
	t.Helper()

	payload := map[string]string{}
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return payload["error"]
}

func buildIdentityToken(t *testing.T, secretKey string, userID uint, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := identityClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
	if err != nil {
		t.Fatalf("sign identity token: %v", err)
	}
	return token
}
