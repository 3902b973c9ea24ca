package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
	"github.com/Emmanuelombaye/POS-System-sub000/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, store.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, store.ErrNotFound},
		{"check constraint", &pgconn.PgError{Code: "23514"}, domain.ErrValidation},
		{"missing table", &pgconn.PgError{Code: "42P01"}, store.ErrStoreUnavailable},
		{"missing column", &pgconn.PgError{Code: "42703"}, store.ErrStoreUnavailable},
		{"connection", errors.New("dial tcp: connection refused"), store.ErrStoreUnavailable},
		{"domain passthrough", domain.InvalidStatef("shift closed"), domain.ErrInvalidState},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
	assert.NoError(t, classify(nil))
}

func TestRowOr(t *testing.T) {
	notFound := store.NotFound("shift", "shf_x")
	assert.Equal(t, notFound, rowOr(pgx.ErrNoRows, notFound))
	assert.ErrorIs(t, rowOr(fmt.Errorf("scan: %w", pgx.ErrNoRows), notFound), store.ErrNotFound)
	assert.ErrorIs(t, rowOr(&pgconn.PgError{Code: "42P01"}, notFound), store.ErrStoreUnavailable)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
