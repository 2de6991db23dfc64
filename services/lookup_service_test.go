package services

import (
	"context"
	"testing"
	"time"

	"github.com/edulink/course_platform/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGormLookup(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Course{}, &models.Enrollment{}))

	ctx := context.Background()
	lookup := NewGormLookup(db)

	student := &models.User{FirstName: "Ada", LastName: "Wanjiru", Email: "ada@example.com", Password: "x"}
	require.NoError(t, db.Create(student).Error)

	course := &models.Course{Name: "Distributed Systems 101", StartDate: time.Now()}
	require.NoError(t, db.Create(course).Error)

	t.Run("user lookup", func(t *testing.T) {
		found, err := lookup.GetUser(ctx, student.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Ada Wanjiru", found.FullName())

		missing, err := lookup.GetUser(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing, "missing user is nil, not an error")
	})

	t.Run("course lookup", func(t *testing.T) {
		found, err := lookup.GetCourse(ctx, course.ID)
		require.NoError(t, err)
		require.NotNil(t, found)

		missing, err := lookup.GetCourse(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("enrollment check", func(t *testing.T) {
		enrolled, err := lookup.IsEnrolled(ctx, student.ID, course.ID)
		require.NoError(t, err)
		assert.False(t, enrolled)

		require.NoError(t, db.Create(&models.Enrollment{StudentID: student.ID, CourseID: course.ID, Status: "active"}).Error)

		enrolled, err = lookup.IsEnrolled(ctx, student.ID, course.ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
	})

	t.Run("cancelled enrollment does not count", func(t *testing.T) {
		other := &models.Course{Name: "Compilers", StartDate: time.Now()}
		require.NoError(t, db.Create(other).Error)
		require.NoError(t, db.Create(&models.Enrollment{StudentID: student.ID, CourseID: other.ID, Status: "cancelled"}).Error)

		enrolled, err := lookup.IsEnrolled(ctx, student.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, enrolled)
	})
}
