package models

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// The schema must migrate on any GORM dialect: primary keys carry no
// database-side default, the BeforeCreate hooks assign them instead.
func TestMigrateAndCreateAssignsIDs(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Course{}, &Enrollment{}, &Certificate{}))

	user := &User{FirstName: "Ada", LastName: "Wanjiru", Email: "ada@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)
	assert.NotEqual(t, uuid.Nil, user.ID)

	course := &Course{Name: "Distributed Systems 101", StartDate: time.Now()}
	require.NoError(t, db.Create(course).Error)
	assert.NotEqual(t, uuid.Nil, course.ID)

	enrollment := &Enrollment{StudentID: user.ID, CourseID: course.ID, Status: "active"}
	require.NoError(t, db.Create(enrollment).Error)
	assert.NotEqual(t, uuid.Nil, enrollment.ID)

	cert := &Certificate{
		DisplayCode:      "CERT-A1B2C3D4E5",
		VerificationCode: "aa:bb",
		StudentID:        user.ID,
		CourseID:         course.ID,
		TeacherID:        uuid.New(),
		GeneratedAt:      time.Now(),
		GeneratedBy:      uuid.New(),
		IsActive:         true,
	}
	require.NoError(t, db.Create(cert).Error)
	assert.NotEqual(t, uuid.Nil, cert.ID)

	t.Run("explicit id wins over the hook", func(t *testing.T) {
		id := uuid.New()
		keep := &User{ID: id, FirstName: "Grace", LastName: "Otieno", Email: "grace@example.com", Password: "x"}
		require.NoError(t, db.Create(keep).Error)
		assert.Equal(t, id, keep.ID)
	})
}
