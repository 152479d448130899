package persistence

import (
	"time"

	"gorm.io/datatypes"
)

// AssignmentModel stores per-assignment grading settings.
type AssignmentModel struct {
	ID                 int64   `gorm:"primaryKey"`
	CourseID           int64   `gorm:"index"`
	Name               string  `gorm:"size:255;not null"`
	Instructions       string  `gorm:"type:text"`
	MaxGrade           float64 `gorm:"not null"`
	Mode               string  `gorm:"size:32"`
	Provider           string  `gorm:"size:32"`
	Leniency           string  `gorm:"size:32"`
	CustomInstructions string  `gorm:"type:text"`
	ReferenceText      string  `gorm:"type:text"`
	CourseTranscript   string  `gorm:"type:text"`
	AutoGrade          bool    `gorm:"not null;default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (AssignmentModel) TableName() string { return "assignments" }

// Rubric definition methods.
const (
	MethodRubric       = "rubric"
	MethodRangedRubric = "ranged_rubric"
)

// RubricDefinitionModel marks that an assignment has a rubric of the given
// method. Its criteria live in rubric_criteria or ranged_criteria.
type RubricDefinitionModel struct {
	ID           int64  `gorm:"primaryKey"`
	AssignmentID int64  `gorm:"uniqueIndex:idx_definition_method;not null"`
	Method       string `gorm:"uniqueIndex:idx_definition_method;size:32;not null"`
	Name         string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (RubricDefinitionModel) TableName() string { return "rubric_definitions" }

// RubricCriterionModel is one discrete rubric criterion.
type RubricCriterionModel struct {
	ID           int64  `gorm:"primaryKey"`
	DefinitionID int64  `gorm:"index;not null"`
	Description  string `gorm:"type:text"`
	SortOrder    int
	Levels       []RubricLevelModel `gorm:"foreignKey:CriterionID;constraint:OnDelete:CASCADE"`
}

func (RubricCriterionModel) TableName() string { return "rubric_criteria" }

// RubricLevelModel is one discrete performance level.
type RubricLevelModel struct {
	ID          int64  `gorm:"primaryKey"`
	CriterionID int64  `gorm:"index;not null"`
	Definition  string `gorm:"type:text"`
	Score       float64
}

func (RubricLevelModel) TableName() string { return "rubric_levels" }

// RangedCriterionModel is one criterion of a ranged rubric.
type RangedCriterionModel struct {
	ID           int64  `gorm:"primaryKey"`
	DefinitionID int64  `gorm:"index;not null"`
	Description  string `gorm:"type:text"`
	SortOrder    int
	Ranges       []RangedLevelModel `gorm:"foreignKey:CriterionID;constraint:OnDelete:CASCADE"`
}

func (RangedCriterionModel) TableName() string { return "ranged_criteria" }

// RangedLevelModel is one performance level with its score interval.
type RangedLevelModel struct {
	ID          int64  `gorm:"primaryKey"`
	CriterionID int64  `gorm:"index;not null"`
	Definition  string `gorm:"type:text"`
	MinScore    float64
	MaxScore    float64
	LevelScore  float64
}

func (RangedLevelModel) TableName() string { return "ranged_levels" }

// SubmissionModel is a student submission with its extracted content.
type SubmissionModel struct {
	ID           int64  `gorm:"primaryKey"`
	AssignmentID int64  `gorm:"index;not null"`
	UserID       int64  `gorm:"index;not null"`
	Status       string `gorm:"size:32;not null;default:submitted"`
	OnlineText   string `gorm:"type:text"`
	Files        []SubmissionFileModel `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

func (SubmissionModel) TableName() string { return "submissions" }

// SubmissionFileModel holds the text extracted from one uploaded file.
// Text is empty when extraction failed.
type SubmissionFileModel struct {
	ID           int64  `gorm:"primaryKey"`
	SubmissionID int64  `gorm:"index;not null"`
	FileName     string `gorm:"size:255;not null"`
	Text         string `gorm:"type:text"`
	SortOrder    int
}

func (SubmissionFileModel) TableName() string { return "submission_files" }

// GradeModel is the stored grade for a submission. One row per submission.
type GradeModel struct {
	ID             int64          `gorm:"primaryKey"`
	SubmissionID   int64          `gorm:"uniqueIndex;not null"`
	AssignmentID   int64          `gorm:"index;not null"`
	UserID         int64          `gorm:"index;not null"`
	Grade          float64        `gorm:"not null"`
	Feedback       string         `gorm:"type:text"`
	CriteriaScores datatypes.JSON `gorm:"type:json"`
	GradedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (GradeModel) TableName() string { return "grades" }

// AuditLogModel is one grading attempt record.
type AuditLogModel struct {
	ID             int64  `gorm:"primaryKey"`
	AttemptID      string `gorm:"size:36;uniqueIndex;not null"`
	AssignmentID   int64  `gorm:"index"`
	SubmissionID   int64  `gorm:"index"`
	UserID         int64
	Provider       string `gorm:"size:32"`
	Model          string `gorm:"size:128"`
	GradingMode    string `gorm:"size:32"`
	RawScore       *float64
	AdjustedScore  *float64
	LeniencyLevel  string         `gorm:"size:32"`
	Feedback       string         `gorm:"type:text"`
	AIResponse     datatypes.JSON `gorm:"type:json"`
	Status         string         `gorm:"size:16;not null"`
	ErrorMessage   string         `gorm:"type:text"`
	ProcessingTime float64
	CreatedAt      time.Time `gorm:"index"`
}

func (AuditLogModel) TableName() string { return "audit_logs" }

// AllModels lists every table managed by this package, in migration order.
func AllModels() []any {
	return []any{
		&AssignmentModel{},
		&RubricDefinitionModel{},
		&RubricCriterionModel{},
		&RubricLevelModel{},
		&RangedCriterionModel{},
		&RangedLevelModel{},
		&SubmissionModel{},
		&SubmissionFileModel{},
		&GradeModel{},
		&AuditLogModel{},
	}
}
