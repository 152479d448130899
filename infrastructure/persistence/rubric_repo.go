package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// RubricRepository loads rubric schemas from the rubric tables. Schemas are
// read fresh on every call; nothing is cached between attempts.
type RubricRepository struct {
	db *gorm.DB
}

var _ ports.RubricStore = (*RubricRepository)(nil)

// NewRubricRepository creates a RubricRepository.
func NewRubricRepository(db *gorm.DB) *RubricRepository {
	return &RubricRepository{db: db}
}

// LoadDiscrete returns the discrete rubric of an assignment.
func (r *RubricRepository) LoadDiscrete(ctx context.Context, assignmentID int64) (*domain.RubricSchema, error) {
	def, err := r.definition(ctx, assignmentID, MethodRubric)
	if err != nil {
		return nil, err
	}

	var rows []RubricCriterionModel
	err = r.db.WithContext(ctx).
		Preload("Levels", func(db *gorm.DB) *gorm.DB { return db.Order("score DESC, id ASC") }).
		Where("definition_id = ?", def.ID).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, ports.NewStoreError("rubric", "load_discrete", err)
	}

	schema := &domain.RubricSchema{
		AssignmentID: assignmentID,
		Name:         def.Name,
		Kind:         domain.KindDiscrete,
		Criteria:     make([]domain.Criterion, 0, len(rows)),
	}
	for _, row := range rows {
		c := domain.Criterion{
			ID:          row.ID,
			Description: row.Description,
			SortOrder:   row.SortOrder,
			Kind:        domain.KindDiscrete,
			Levels:      make([]domain.Level, 0, len(row.Levels)),
		}
		for _, l := range row.Levels {
			c.Levels = append(c.Levels, domain.Level{ID: l.ID, Definition: l.Definition, Score: l.Score})
		}
		schema.Criteria = append(schema.Criteria, c)
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// LoadRanged returns the ranged rubric of an assignment. When no ranged
// criteria are stored the discrete rubric is converted instead.
func (r *RubricRepository) LoadRanged(ctx context.Context, assignmentID int64) (*domain.RubricSchema, error) {
	def, err := r.definition(ctx, assignmentID, MethodRangedRubric)
	switch {
	case errors.Is(err, domain.ErrRubricNotFound):
		return r.rangedFromDiscrete(ctx, assignmentID, false)
	case err != nil:
		return nil, err
	}

	var rows []RangedCriterionModel
	err = r.db.WithContext(ctx).
		Preload("Ranges", func(db *gorm.DB) *gorm.DB { return db.Order("max_score DESC, id ASC") }).
		Where("definition_id = ?", def.ID).
		Order("sort_order ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, ports.NewStoreError("rubric", "load_ranged", err)
	}
	if len(rows) == 0 {
		return r.rangedFromDiscrete(ctx, assignmentID, true)
	}

	schema := &domain.RubricSchema{
		AssignmentID: assignmentID,
		Name:         def.Name,
		Kind:         domain.KindRanged,
		Criteria:     make([]domain.Criterion, 0, len(rows)),
	}
	for _, row := range rows {
		c := domain.Criterion{
			ID:          row.ID,
			Description: row.Description,
			SortOrder:   row.SortOrder,
			Kind:        domain.KindRanged,
			Ranges:      make([]domain.ScoreRange, 0, len(row.Ranges)),
		}
		for _, rg := range row.Ranges {
			c.Ranges = append(c.Ranges, domain.ScoreRange{
				ID:         rg.ID,
				Definition: rg.Definition,
				MinScore:   domain.RoundTo(rg.MinScore, 2),
				MaxScore:   domain.RoundTo(rg.MaxScore, 2),
				LevelScore: rg.LevelScore,
			})
		}
		schema.Criteria = append(schema.Criteria, c)
	}

	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// rangedFromDiscrete derives the ranged schema from the discrete rubric. An
// existing but empty ranged definition with no discrete fallback is reported
// as an empty rubric rather than a missing one.
func (r *RubricRepository) rangedFromDiscrete(ctx context.Context, assignmentID int64, rangedDefined bool) (*domain.RubricSchema, error) {
	discrete, err := r.LoadDiscrete(ctx, assignmentID)
	if err != nil {
		if rangedDefined && errors.Is(err, domain.ErrRubricNotFound) {
			return nil, fmt.Errorf("assignment %d: %w", assignmentID, domain.ErrEmptyRubric)
		}
		return nil, err
	}
	return domain.ToRanged(discrete), nil
}

func (r *RubricRepository) definition(ctx context.Context, assignmentID int64, method string) (*RubricDefinitionModel, error) {
	var def RubricDefinitionModel
	err := r.db.WithContext(ctx).
		Where("assignment_id = ? AND method = ?", assignmentID, method).
		First(&def).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("assignment %d (%s): %w", assignmentID, method, domain.ErrRubricNotFound)
	case err != nil:
		return nil, ports.NewStoreError("rubric", "load_definition", err)
	}
	return &def, nil
}

// SaveRubric stores schema as the assignment's rubric of the schema's kind,
// replacing any criteria stored before.
func (r *RubricRepository) SaveRubric(ctx context.Context, schema *domain.RubricSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	method := MethodRubric
	if schema.Kind == domain.KindRanged {
		method = MethodRangedRubric
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var def RubricDefinitionModel
		err := tx.Where(RubricDefinitionModel{AssignmentID: schema.AssignmentID, Method: method}).
			Assign(RubricDefinitionModel{Name: schema.Name}).
			FirstOrCreate(&def).Error
		if err != nil {
			return err
		}

		if method == MethodRubric {
			return replaceDiscrete(tx, def.ID, schema.Criteria)
		}
		return replaceRanged(tx, def.ID, schema.Criteria)
	})
	if err != nil {
		return ports.NewStoreError("rubric", "save", err)
	}
	return nil
}

func replaceDiscrete(tx *gorm.DB, definitionID int64, criteria []domain.Criterion) error {
	var ids []int64
	if err := tx.Model(&RubricCriterionModel{}).Where("definition_id = ?", definitionID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := tx.Where("criterion_id IN ?", ids).Delete(&RubricLevelModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", ids).Delete(&RubricCriterionModel{}).Error; err != nil {
			return err
		}
	}

	for _, c := range criteria {
		row := RubricCriterionModel{ID: c.ID, DefinitionID: definitionID, Description: c.Description, SortOrder: c.SortOrder}
		for _, l := range c.Levels {
			row.Levels = append(row.Levels, RubricLevelModel{ID: l.ID, Definition: l.Definition, Score: l.Score})
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func replaceRanged(tx *gorm.DB, definitionID int64, criteria []domain.Criterion) error {
	var ids []int64
	if err := tx.Model(&RangedCriterionModel{}).Where("definition_id = ?", definitionID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) > 0 {
		if err := tx.Where("criterion_id IN ?", ids).Delete(&RangedLevelModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", ids).Delete(&RangedCriterionModel{}).Error; err != nil {
			return err
		}
	}

	for _, c := range criteria {
		ranges := c.Ranges
		if len(ranges) == 0 {
			ranges = domain.BuildRanges(c.Levels)
		}
		row := RangedCriterionModel{ID: c.ID, DefinitionID: definitionID, Description: c.Description, SortOrder: c.SortOrder}
		for _, rg := range ranges {
			row.Ranges = append(row.Ranges, RangedLevelModel{
				ID:         rg.ID,
				Definition: rg.Definition,
				MinScore:   rg.MinScore,
				MaxScore:   rg.MaxScore,
				LevelScore: rg.LevelScore,
			})
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// FormatForPrompt renders a schema as plain rubric text: a bold description
// per criterion followed by one line per level or range.
func FormatForPrompt(schema *domain.RubricSchema) string {
	var b strings.Builder
	for _, c := range schema.Criteria {
		fmt.Fprintf(&b, "**%s**\n", c.Description)
		if c.Kind == domain.KindRanged {
			for _, rg := range c.Ranges {
				fmt.Fprintf(&b, "- %s: %s-%s points\n", rg.Definition, formatNumber(rg.MinScore), formatNumber(rg.MaxScore))
			}
		} else {
			for _, l := range c.Levels {
				fmt.Fprintf(&b, "- %s (%s points)\n", l.Definition, formatNumber(l.Score))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(domain.RoundTo(v, 2), 'f', -1, 64)
}
