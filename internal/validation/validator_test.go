package validation_test

import (
	"errors"
	"testing"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string `json:"name" validate:"required"`
	Short string `json:"short,omitempty" validate:"max=3"`
	Count int    `json:"count" validate:"gte=0"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(testDoc{Name: "ok", Short: "abc", Count: 1})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name   string
		doc    testDoc
		fields map[string]string
	}{
		{
			name:   "missing required field",
			doc:    testDoc{},
			fields: map[string]string{"name": "is required"},
		},
		{
			name: "several failures",
			doc:  testDoc{Short: "abcd", Count: -1},
			fields: map[string]string{
				"name":  "is required",
				"short": "must not exceed 3 characters",
				"count": "must be greater than or equal to 0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.doc)
			require.Error(t, err)

			var verr *validation.Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.fields, verr.Fields)
		})
	}
}

func TestValidator_DomainDocuments(t *testing.T) {
	v := validation.New()

	err := v.Validate(&domain.Book{Title: "", AuthorID: "author-1"})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"title": "is required"}, verr.Fields)

	assert.NoError(t, v.Validate(&domain.Author{Name: "Sandi Metz"}))

	err = v.Validate(&domain.Book{Title: "Huge", AuthorID: "author-1", Published: 3_000_000_000})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"published": "must be less than or equal to 2147483647"}, verr.Fields)

	born := -3_000_000_000
	err = v.Validate(&domain.Author{Name: "Sandi Metz", Born: &born})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"born": "must be greater than or equal to -2147483648"}, verr.Fields)

	err = v.Validate(&domain.User{Username: "reader"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"favorite_genre": "is required"}, verr.Fields)
}

func TestError_MessageIsSorted(t *testing.T) {
	err := &validation.Error{Fields: map[string]string{"title": "is required", "author_id": "is required"}}
	assert.Equal(t, "validation failed: author_id is required, title is required", err.Error())
}
