package persistence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kcay/local-ai-grader/internal/domain"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func essayRubric() *domain.RubricSchema {
	return &domain.RubricSchema{
		AssignmentID: 7,
		Name:         "Essay",
		Kind:         domain.KindDiscrete,
		Criteria: []domain.Criterion{
			{
				ID: 502, Description: "Evidence", SortOrder: 2, Kind: domain.KindDiscrete,
				Levels: []domain.Level{{ID: 21, Definition: "Weak", Score: 5}, {ID: 22, Definition: "Strong", Score: 10}},
			},
			{
				ID: 501, Description: "Thesis", SortOrder: 1, Kind: domain.KindDiscrete,
				Levels: []domain.Level{
					{ID: 14, Definition: "Missing", Score: 0},
					{ID: 11, Definition: "Excellent", Score: 20},
					{ID: 13, Definition: "Fair", Score: 10},
					{ID: 12, Definition: "Good", Score: 15},
				},
			},
		},
	}
}
