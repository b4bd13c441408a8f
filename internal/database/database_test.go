package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconvert/internal/config"
)

func TestBuildPostgresDSN(t *testing.T) {
	base := config.DatabaseConfig{Host: "db", Port: "5432", User: "app", Name: "sessions"}

	tests := []struct {
		name   string
		mutate func(*config.DatabaseConfig)
		want   string
	}{
		{"minimal", func(*config.DatabaseConfig) {}, "postgres://app@db:5432/sessions?application_name=docconvert"},
		{"password and sslmode", func(c *config.DatabaseConfig) {
			c.Password = "p@ss"
			c.SSLMode = "require"
		}, "postgres://app:p%40ss@db:5432/sessions?application_name=docconvert&sslmode=require"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			got, err := BuildPostgresDSN(c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, missing := range []string{"host", "port", "user", "name"} {
		t.Run("missing "+missing, func(t *testing.T) {
			c := base
			switch missing {
			case "host":
				c.Host = ""
			case "port":
				c.Port = ""
			case "user":
				c.User = ""
			case "name":
				c.Name = ""
			}
			_, err := BuildPostgresDSN(c)
			assert.Error(t, err)
		})
	}
}

func stubOpen(t *testing.T, db *sql.DB, err error) *string {
	t.Helper()
	var gotDSN string
	orig := sqlOpen
	sqlOpen = func(_, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return db, err
	}
	t.Cleanup(func() { sqlOpen = orig })
	return &gotDSN
}

func TestNewPostgres(t *testing.T) {
	conf := config.DatabaseConfig{
		Host:         "db",
		Port:         "5432",
		User:         "app",
		Name:         "sessions",
		MaxOpenConns: 4,
	}

	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		dsn := stubOpen(t, db, nil)
		mock.ExpectPing()

		got, err := NewPostgres(context.Background(), conf)
		require.NoError(t, err)
		assert.Same(t, db, got)
		assert.Equal(t, 4, got.Stats().MaxOpenConnections)
		assert.Contains(t, *dsn, "application_name=docconvert")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open error", func(t *testing.T) {
		stubOpen(t, nil, errors.New("open error"))
		got, err := NewPostgres(context.Background(), conf)
		assert.ErrorContains(t, err, "sql open: open error")
		assert.Nil(t, got)
	})

	t.Run("ping error closes the pool", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		stubOpen(t, db, nil)
		mock.ExpectPing().WillReturnError(errors.New("ping failed"))
		mock.ExpectClose()

		got, err := NewPostgres(context.Background(), conf)
		assert.ErrorContains(t, err, "db ping db: ping failed")
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid config", func(t *testing.T) {
		got, err := NewPostgres(context.Background(), config.DatabaseConfig{})
		assert.Error(t, err)
		assert.Nil(t, got)
	})
}
