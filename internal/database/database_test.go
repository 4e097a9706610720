package database_test

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/database"
	"carbon-scribe/marketplace/marketplace-backend/internal/database/databasetest"
)

type widget struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code string    `gorm:"uniqueIndex"`
}

func TestNewDBMigratesAndDetectsDuplicates(t *testing.T) {
	db := databasetest.NewDB(t, func(db *gorm.DB) error { return db.AutoMigrate(&widget{}) })

	require.NoError(t, db.Create(&widget{ID: uuid.New(), Code: "A"}).Error)
	err := db.Create(&widget{ID: uuid.New(), Code: "A"}).Error

	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestMigrateStopsOnError(t *testing.T) {
	calls := 0
	db := databasetest.NewDB(t)

	err := database.Migrate(db,
		func(*gorm.DB) error { calls++; return errors.New("boom") },
		func(*gorm.DB) error { calls++; return nil },
	)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, database.IsUniqueViolation(nil))
	assert.True(t, database.IsUniqueViolation(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, database.IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "idx_x"`)))
	assert.False(t, database.IsUniqueViolation(errors.New("connection refused")))
	assert.True(t, database.IsUniqueViolation(fmt.Errorf("insert file: %w", &pq.Error{Code: "23505"})))
	assert.False(t, database.IsUniqueViolation(&pq.Error{Code: "23503"}))
}

func TestOpenSQLXSharesSqliteHandle(t *testing.T) {
	db := databasetest.NewDB(t, func(db *gorm.DB) error { return db.AutoMigrate(&widget{}) })
	require.NoError(t, db.Create(&widget{ID: uuid.New(), Code: "shared"}).Error)

	sqlxDB, err := database.OpenSQLX(config.DatabaseConfig{Driver: "sqlite"}, db)
	require.NoError(t, err)

	var code string
	require.NoError(t, sqlxDB.Get(&code, sqlxDB.Rebind("SELECT code FROM widgets WHERE code = ?"), "shared"))
	assert.Equal(t, "shared", code)
}

// Production binaries link this package, so it must not pull in testing.
func TestPackageDoesNotImportTesting(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotEqual(t, "testing", path, name)
		}
	}
}
