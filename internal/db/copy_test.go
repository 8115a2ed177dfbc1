package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFromSchema_EmptyRows(t *testing.T) {
	n, err := CopyFromSchema(context.TODO(), nil, "geo", "landuse_areas", []string{"kind"}, [][]any{})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFromSchema_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geo", "landuse_areas"}, []string{"kind", "ref"}).WillReturnResult(2)

	rows := [][]any{{"way", int64(1)}, {"way", int64(2)}}
	n, err := CopyFromSchema(context.Background(), mock, "geo", "landuse_areas", []string{"kind", "ref"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromSchema_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geo", "landuse_areas"}, []string{"kind"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFromSchema(context.Background(), mock, "geo", "landuse_areas", []string{"kind"}, [][]any{{"way"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO geo.landuse_areas")
	assert.NoError(t, mock.ExpectationsWereMet())
}
