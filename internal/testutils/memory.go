package testutils

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// MemoryStore is an in-memory implementation of the storage ports used by
// the orchestrator and batch runner. Fail* fields inject errors.
type MemoryStore struct {
	mu sync.Mutex

	Assignments map[int64]*domain.Assignment
	Discrete    map[int64]*domain.RubricSchema
	Ranged      map[int64]*domain.RubricSchema
	Texts       map[int64]string
	Contexts    map[int64]string
	Refs        []domain.SubmissionRef
	Grades      map[int64]domain.GradeRecord

	FailSave    error
	FailContext error
	FailList    error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Assignments: make(map[int64]*domain.Assignment),
		Discrete:    make(map[int64]*domain.RubricSchema),
		Ranged:      make(map[int64]*domain.RubricSchema),
		Texts:       make(map[int64]string),
		Contexts:    make(map[int64]string),
		Grades:      make(map[int64]domain.GradeRecord),
	}
}

// GetAssignment implements ports.AssignmentSource.
func (s *MemoryStore) GetAssignment(_ context.Context, id int64) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %d: %w", id, ports.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// LoadDiscrete implements ports.RubricStore.
func (s *MemoryStore) LoadDiscrete(_ context.Context, assignmentID int64) (*domain.RubricSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSchema(s.Discrete[assignmentID])
}

// LoadRanged implements ports.RubricStore, deriving ranges from the
// discrete rubric when no ranged one is stored.
func (s *MemoryStore) LoadRanged(_ context.Context, assignmentID int64) (*domain.RubricSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.Ranged[assignmentID]; ok {
		return cloneSchema(r)
	}
	d, err := cloneSchema(s.Discrete[assignmentID])
	if err != nil {
		return nil, err
	}
	return domain.ToRanged(d), nil
}

func cloneSchema(src *domain.RubricSchema) (*domain.RubricSchema, error) {
	if src == nil {
		return nil, domain.ErrRubricNotFound
	}
	if len(src.Criteria) == 0 {
		return nil, domain.ErrEmptyRubric
	}
	out := &domain.RubricSchema{
		AssignmentID: src.AssignmentID,
		Name:         src.Name,
		Kind:         src.Kind,
		Criteria:     make([]domain.Criterion, len(src.Criteria)),
	}
	for i, c := range src.Criteria {
		c.Levels = slices.Clone(c.Levels)
		c.Ranges = slices.Clone(c.Ranges)
		out.Criteria[i] = c
	}
	return out, nil
}

// GetText implements ports.SubmissionSource.
func (s *MemoryStore) GetText(_ context.Context, submissionID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.Texts[submissionID]
	if !ok {
		return domain.MissingContentMarker, nil
	}
	return text, nil
}

// GetContext implements ports.CourseContextSource.
func (s *MemoryStore) GetContext(_ context.Context, assignmentID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailContext != nil {
		return "", s.FailContext
	}
	return s.Contexts[assignmentID], nil
}

// ListUngraded implements ports.SubmissionLister over Refs.
func (s *MemoryStore) ListUngraded(_ context.Context, since time.Time, limit int) ([]domain.SubmissionRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	var out []domain.SubmissionRef
	for _, ref := range s.Refs {
		if _, graded := s.Grades[ref.ID]; graded || !ref.ModifiedAt.After(since) {
			continue
		}
		out = append(out, ref)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveGrade implements ports.GradeStore. The last write wins.
func (s *MemoryStore) SaveGrade(_ context.Context, rec domain.GradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return ports.NewStoreError("grade", "save", s.FailSave)
	}
	s.Grades[rec.SubmissionID] = rec
	return nil
}

// Grade returns the stored grade for a submission.
func (s *MemoryStore) Grade(submissionID int64) (domain.GradeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Grades[submissionID]
	return rec, ok
}

var (
	_ ports.AssignmentSource    = (*MemoryStore)(nil)
	_ ports.RubricStore         = (*MemoryStore)(nil)
	_ ports.SubmissionSource    = (*MemoryStore)(nil)
	_ ports.CourseContextSource = (*MemoryStore)(nil)
	_ ports.SubmissionLister    = (*MemoryStore)(nil)
	_ ports.GradeStore          = (*MemoryStore)(nil)
)
