package utils

import (
	"encoding/json"
	"testing"

	"tuitionflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "919876543210", NormalizePhone("+91 98765-43210"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("919876543210"))
	assert.False(t, IsValidPhone("98765"))
	assert.False(t, IsValidPhone("91987654321a"))
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("s3cret", hash))
	assert.Error(t, CheckPassword("wrong", hash))
}

func TestStudentViewFlattensStudent(t *testing.T) {
	due, err := models.ParseDate("2026-11-15")
	require.NoError(t, err)
	views := ToStudentViews([]models.Student{{ID: "1", Name: "Anshu", Status: models.StatusPaid}},
		func(models.Student) models.Date { return due })

	out, err := json.Marshal(views)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"name":"Anshu"`)
	assert.Contains(t, string(out), `"nextDueDate":"2026-11-15"`)

	empty, err := json.Marshal(ToStudentViews(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
