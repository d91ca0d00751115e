package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/version"
	"github.com/callscope/callscope/pkg/warehouse"
)

func healthServer(db *sql.DB) *Server {
	deps := Deps{Config: &config.Config{Server: &config.ServerConfig{}}}
	if db != nil {
		deps.DB = warehouse.NewClientFromDB(sqlx.NewDb(db, "pgx"))
	}
	return NewServer(deps)
}

func getHealth(s *Server) (*httptest.ResponseRecorder, *HealthResponse) {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, &body
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		rec, body := getHealth(healthServer(db))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, healthStatusHealthy, body.Status)
		assert.Equal(t, version.Full(), body.Version)
		require.NotNil(t, body.Warehouse)
		assert.Equal(t, "healthy", body.Warehouse.Status)
	})

	t.Run("warehouse down", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		rec, body := getHealth(healthServer(db))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, healthStatusUnhealthy, body.Status)
	})

	t.Run("no warehouse configured", func(t *testing.T) {
		rec, body := getHealth(healthServer(nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, healthStatusHealthy, body.Status)
		assert.Nil(t, body.Warehouse)
	})
}
