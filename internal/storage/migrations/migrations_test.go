package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedFiles(t *testing.T) {
	for _, tc := range []struct {
		name string
		dir  string
	}{
		{"postgres", "postgres"},
		{"clickhouse", "clickhouse"},
		{"sqlite", "sqlite"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var files []string
			var err error
			switch tc.dir {
			case "postgres":
				files, err = sqlFiles(PostgresFS, tc.dir)
			case "clickhouse":
				files, err = sqlFiles(ClickhouseFS, tc.dir)
			default:
				files, err = sqlFiles(SQLiteFS, tc.dir)
			}
			require.NoError(t, err)
			assert.NotEmpty(t, files)
		})
	}
}

func TestSplitStatements(t *testing.T) {
	input := `
-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE TABLE b (y String) ENGINE = Memory;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", stmts[1])
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'a''b'; SELECT 1;`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/prices")
	require.NoError(t, err)
	assert.Equal(t, "prices", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
