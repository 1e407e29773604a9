package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "peaking_audit", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock := newMock(t)
	mock.ExpectCopyFrom(pgx.Identifier{"city_data", "peaking_audit"}, []string{"city", "year"}).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "city_data.peaking_audit", []string{"city", "year"},
		[][]any{{"Accra", 1990}, {"Accra", 1991}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock := newMock(t)
	mock.ExpectCopyFrom(pgx.Identifier{"peaking_audit"}, []string{"a"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err := CopyFrom(context.Background(), mock, "peaking_audit", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO peaking_audit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "city_data"."peaking_audit"`)).
		WillReturnResult(pgxmock.NewResult("DELETE", 10))
	mock.ExpectCopyFrom(pgx.Identifier{"city_data", "peaking_audit"}, []string{"city", "year"}).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := ReplaceAll(context.Background(), mock, "city_data.peaking_audit", []string{"city", "year"},
		[][]any{{"Accra", 1990}, {"Lima", 1990}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_EmptyRowsStillClears(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCommit()

	n, err := ReplaceAll(context.Background(), mock, "peaking_audit", []string{"city"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_CopyErrorRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"peaking_audit"}, []string{"city"}).WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	_, err := ReplaceAll(context.Background(), mock, "peaking_audit", []string{"city"}, [][]any{{"Accra"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: replace: COPY INTO peaking_audit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_NoColumns(t *testing.T) {
	_, err := ReplaceAll(context.Background(), nil, "peaking_audit", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "city_data.peaking_emissions",
		Columns:      []string{"city", "year"},
		ConflictKeys: []string{"city", "year"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_Validation(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock := newMock(t)
	cfg := UpsertConfig{
		Table:        "city_data.peaking_emissions",
		Columns:      []string{"city", "year", "emissions"},
		ConflictKeys: []string{"city", "year"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_tmp_upsert_city_data_peaking_emissions" (LIKE "city_data"."peaking_emissions" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_city_data_peaking_emissions"}, cfg.Columns).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT ("city", "year") DO UPDATE SET "emissions" = EXCLUDED."emissions"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cfg, [][]any{{"Accra", 1990, 200.0}, {"Accra", 1991, 0.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_DoNothingWhenAllColumnsAreKeys(t *testing.T) {
	got := upsertSQL(UpsertConfig{
		Table:        "city_peak_emissions",
		Columns:      []string{"c40_city_name"},
		ConflictKeys: []string{"c40_city_name"},
	}, "tmp")
	assert.Equal(t,
		`INSERT INTO "city_peak_emissions" ("c40_city_name") SELECT "c40_city_name" FROM "tmp" ON CONFLICT ("c40_city_name") DO NOTHING`,
		got)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"city_data.peaking_emissions", `"city_data"."peaking_emissions"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"city", "year", "emissions"`, quoteAndJoin([]string{"city", "year", "emissions"}))
}
