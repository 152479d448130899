package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"student name", "Student Name: Ada Lovelace\nEssay body", "[REDACTED]\nEssay body"},
		{"student id", "student id 12345\nbody", "[REDACTED]\nbody"},
		{"bare name", "Name - Alan\nbody", "[REDACTED]\nbody"},
		{"id number", "ID Number: 998877", "[REDACTED]"},
		{"matric", "Matriculation No. 2021001", "[REDACTED]"},
		{"matric short", "Matric Number: 42", "[REDACTED]"},
		{"nothing to redact", "The mitochondria is the powerhouse.", "The mitochondria is the powerhouse."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Anonymize(tt.in))
		})
	}
}
