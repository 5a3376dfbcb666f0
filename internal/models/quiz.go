package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Question techniques.
const (
	QuestionSingleChoice = 0
	QuestionMultiChoice  = 1
	QuestionTrueFalse    = 2
)

// Quiz is attached to exactly one of a topic, a course (final quiz) or a
// certificated course.
type Quiz struct {
	BaseModel
	Title                string              `json:"title"`
	Slug                 string              `gorm:"uniqueIndex" json:"slug"`
	TopicID              *uuid.UUID          `gorm:"type:uuid;uniqueIndex" json:"topic_id"`
	Topic                *Topic              `json:"topic,omitempty"`
	CourseID             *uuid.UUID          `gorm:"type:uuid;uniqueIndex" json:"course_id"`
	Course               *Course             `json:"course,omitempty"`
	CertificatedCourseID *uuid.UUID          `gorm:"type:uuid;uniqueIndex" json:"certificated_course_id"`
	CertificatedCourse   *CertificatedCourse `json:"certificated_course,omitempty"`
	// Duration of the quiz in minutes, informational for clients.
	Duration            int        `gorm:"default:40" json:"duration"`
	RequiredScoreToPass int        `gorm:"default:80" json:"required_score_to_pass"`
	Chances             int        `gorm:"default:5" json:"chances"`
	Questions           []Question `json:"questions,omitempty"`
}

var errQuizParent = errors.New("quiz must reference exactly one of topic, course, certificated course")

// BeforeSave enforces the exactly-one-parent rule and derives the slug
// from the title when not set explicitly.
func (q *Quiz) BeforeSave(tx *gorm.DB) error {
	if q.Slug == "" {
		q.Slug = slug.Make(q.Title)
	}
	defined := 0
	if q.TopicID != nil {
		defined++
	}
	if q.CourseID != nil {
		defined++
	}
	if q.CertificatedCourseID != nil {
		defined++
	}
	if defined != 1 {
		return errQuizParent
	}
	return nil
}

// IsFinal reports whether this is a course's final quiz.
func (q *Quiz) IsFinal() bool { return q.CourseID != nil }

// IsForCertificatedCourse reports whether this quiz belongs to a bundle.
func (q *Quiz) IsForCertificatedCourse() bool { return q.CertificatedCourseID != nil }

type Question struct {
	BaseModel
	QuizID    uuid.UUID `gorm:"type:uuid;index" json:"quiz_id"`
	Title     string    `json:"title"`
	Technique int       `json:"technique"`
	Position  int       `gorm:"index" json:"position"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	Answers   []Answer  `json:"answers,omitempty"`
}

type Answer struct {
	BaseModel
	QuestionID uuid.UUID `gorm:"type:uuid;index" json:"question_id"`
	Title      string    `json:"title"`
	IsCorrect  bool      `json:"-"`
}

// QuizTaker is one user's attempt state on a quiz.
type QuizTaker struct {
	BaseModel
	UserID      uuid.UUID  `gorm:"type:uuid;index:idx_quiz_taker,unique" json:"user_id"`
	QuizID      uuid.UUID  `gorm:"type:uuid;index:idx_quiz_taker,unique" json:"quiz_id"`
	Score       int        `json:"score"`
	Completed   bool       `json:"completed"`
	ChancesLeft int        `json:"chances_left"`
	UnlockAt    *time.Time `json:"unlock_at"`
}

// TimeLeft returns the remaining seconds of the quiz duration since the
// attempt was created. Negative when the nominal time has run out.
func (t *QuizTaker) TimeLeft(duration int, now time.Time) int {
	return duration*60 - int(now.Sub(t.CreatedAt).Seconds())
}

// UserAnswer links a taker and a question to the set of answers currently
// selected. The selection is replaced wholesale on every save.
type UserAnswer struct {
	BaseModel
	QuizTakerID uuid.UUID `gorm:"type:uuid;index:idx_taker_question,unique" json:"quiz_taker_id"`
	QuestionID  uuid.UUID `gorm:"type:uuid;index:idx_taker_question,unique" json:"question_id"`
	Answers     []Answer  `gorm:"many2many:user_answer_selections;" json:"answers,omitempty"`
}
