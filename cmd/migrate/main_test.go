package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	t.Run("按分号分割并跳过注释", func(t *testing.T) {
		sql := stripComments(`-- 表
CREATE TABLE a (id INT);

-- 索引
CREATE INDEX idx_a ON a (id);
`)
		stmts := splitStatements(sql)
		require.Len(t, stmts, 2)
		assert.Equal(t, "CREATE TABLE a (id INT)", stmts[0])
		assert.Equal(t, "CREATE INDEX idx_a ON a (id)", stmts[1])
	})

	t.Run("字符串中的分号不分割", func(t *testing.T) {
		stmts := splitStatements("INSERT INTO a VALUES ('x;y'); SELECT 1")
		require.Len(t, stmts, 2)
		assert.Equal(t, "INSERT INTO a VALUES ('x;y')", stmts[0])
		assert.Equal(t, "SELECT 1", stmts[1])
	})

	t.Run("空内容", func(t *testing.T) {
		assert.Empty(t, splitStatements(stripComments("-- only comment\n\n")))
	})
}

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"001_a.up.sql", "002_b.up.sql", "001_a.down.sql", "002_b.down.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}

	up, err := migrationFiles(dir, "up")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "001_a.up.sql"), filepath.Join(dir, "002_b.up.sql")}, up)

	down, err := migrationFiles(dir, "down")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "002_b.down.sql"), filepath.Join(dir, "001_a.down.sql")}, down)

	_, err = migrationFiles(t.TempDir(), "up")
	assert.Error(t, err)
}

func TestBundledMigrationsParse(t *testing.T) {
	for _, dbType := range []string{"postgres", "mysql"} {
		t.Run(dbType, func(t *testing.T) {
			files, err := migrationFiles(filepath.Join("..", "..", "migrations", dbType), "up")
			require.NoError(t, err)

			content, err := os.ReadFile(files[0])
			require.NoError(t, err)
			stmts := splitStatements(stripComments(string(content)))
			assert.NotEmpty(t, stmts)
			for _, stmt := range stmts {
				assert.NotContains(t, stmt, "--")
			}
		})
	}
}
