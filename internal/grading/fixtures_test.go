package grading

import "github.com/kcay/local-ai-grader/internal/domain"

// essaySchema is a two-criterion discrete rubric worth 30 points.
func essaySchema() *domain.RubricSchema {
	return &domain.RubricSchema{
		AssignmentID: 7,
		Kind:         domain.KindDiscrete,
		Criteria: []domain.Criterion{
			{
				ID: 501, Description: "Thesis", Kind: domain.KindDiscrete,
				Levels: []domain.Level{
					{ID: 11, Definition: "Excellent", Score: 20},
					{ID: 12, Definition: "Good", Score: 15},
					{ID: 13, Definition: "Fair", Score: 10},
					{ID: 14, Definition: "Missing", Score: 0},
				},
			},
			{
				ID: 502, Description: "Evidence", Kind: domain.KindDiscrete,
				Levels: []domain.Level{
					{ID: 21, Definition: "Strong", Score: 10},
					{ID: 22, Definition: "Weak", Score: 5},
				},
			},
		},
	}
}

// threeCriteriaSchema has IDs 501, 502 and 503, ten points each.
func threeCriteriaSchema() *domain.RubricSchema {
	s := &domain.RubricSchema{Kind: domain.KindDiscrete}
	for _, id := range []int64{501, 502, 503} {
		s.Criteria = append(s.Criteria, domain.Criterion{
			ID: id, Description: "C", Kind: domain.KindDiscrete,
			Levels: []domain.Level{{ID: id * 10, Definition: "Top", Score: 10}, {ID: id*10 + 1, Definition: "None", Score: 0}},
		})
	}
	return domain.ToRanged(s)
}

func ptr[T any](v T) *T { return &v }
