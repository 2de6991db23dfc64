package services

import (
	"errors"
	"fmt"
)

// ErrNotEnrolled means the student has no active enrollment in the course.
// A business precondition, not a data-integrity problem.
var ErrNotEnrolled = errors.New("student is not enrolled in this course")

// NotFoundError names which referenced entity is missing so the caller can
// report the right precondition without leaking anything else.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// DeliveryError wraps a failure of the PDF or email collaborator. Stage is
// "render" or "email".
type DeliveryError struct {
	Stage string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("certificate delivery failed (%s): %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
