package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
)

// AccessGate answers unlock questions over the catalog graph and a user's
// progress records. All methods are read-only; missing progress rows are
// treated as "not completed".
type AccessGate struct {
	db *gorm.DB
}

// NewAccessGate constructs an AccessGate.
func NewAccessGate(db *gorm.DB) *AccessGate {
	return &AccessGate{db: db}
}

// CoursePaid reports whether the user has a paid cart row for the course.
func (g *AccessGate) CoursePaid(userID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := g.db.Model(&models.CartCourse{}).
		Joins("JOIN carts ON carts.id = cart_courses.cart_id").
		Where("carts.user_id = ? AND cart_courses.course_id = ? AND cart_courses.paid = ?", userID, courseID, true).
		Count(&count).Error
	return count > 0, err
}

// CourseStatus returns new/progress/finished for the user and course:
// finished once a certificate exists, progress once the course is paid.
func (g *AccessGate) CourseStatus(userID, courseID uuid.UUID) (string, error) {
	var count int64
	if err := g.db.Model(&models.CourseCertificate{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error; err != nil {
		return "", err
	}
	if count > 0 {
		return models.StatusFinished, nil
	}

	paid, err := g.CoursePaid(userID, courseID)
	if err != nil {
		return "", err
	}
	if paid {
		return models.StatusProgress, nil
	}
	return models.StatusNew, nil
}

// LessonFinished reports whether the user finished the lesson.
func (g *AccessGate) LessonFinished(userID, lessonID uuid.UUID) (bool, error) {
	var count int64
	err := g.db.Model(&models.UserLesson{}).
		Where("user_id = ? AND lesson_id = ? AND status = ?", userID, lessonID, models.StatusFinished).
		Count(&count).Error
	return count > 0, err
}

// QuizCompleted reports whether the user has a completed taker for the quiz.
func (g *AccessGate) QuizCompleted(userID, quizID uuid.UUID) (bool, error) {
	var count int64
	err := g.db.Model(&models.QuizTaker{}).
		Where("user_id = ? AND quiz_id = ? AND completed = ?", userID, quizID, true).
		Count(&count).Error
	return count > 0, err
}

// courseTopics loads the course's topics in their stored sequence order.
func (g *AccessGate) courseTopics(courseID uuid.UUID) ([]models.Topic, error) {
	var topics []models.Topic
	err := g.db.Where("course_id = ?", courseID).
		Order("position asc, created_at asc").
		Preload("Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc, created_at asc")
		}).
		Find(&topics).Error
	return topics, err
}

// topicQuiz returns the topic's quiz, or nil when the topic has none.
func (g *AccessGate) topicQuiz(topicID uuid.UUID) (*models.Quiz, error) {
	var quiz models.Quiz
	err := g.db.Where("topic_id = ?", topicID).First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// LessonBlocked reports whether the lesson is locked for the user.
// The first lesson of a course is always open. Otherwise the lesson opens
// only after the previous topic's quiz (when one exists) is completed, the
// course is paid, and the immediately preceding lesson is finished.
func (g *AccessGate) LessonBlocked(userID uuid.UUID, lesson *models.Lesson) (bool, error) {
	var topic models.Topic
	if err := g.db.First(&topic, "id = ?", lesson.TopicID).Error; err != nil {
		return true, err
	}

	topics, err := g.courseTopics(topic.CourseID)
	if err != nil {
		return true, err
	}

	topicIdx := -1
	lessonIdx := -1
	var previous *models.Lesson
	flat := 0
	for ti := range topics {
		for li := range topics[ti].Lessons {
			if topics[ti].Lessons[li].ID == lesson.ID {
				topicIdx = ti
				lessonIdx = flat
				break
			}
			previous = &topics[ti].Lessons[li]
			flat++
		}
		if lessonIdx >= 0 {
			break
		}
	}

	if lessonIdx <= 0 {
		// First lesson of the course, or not part of the ordered chain at all.
		return false, nil
	}

	if topicIdx > 0 {
		quiz, err := g.topicQuiz(topics[topicIdx-1].ID)
		if err != nil {
			return true, err
		}
		if quiz != nil {
			completed, err := g.QuizCompleted(userID, quiz.ID)
			if err != nil {
				return true, err
			}
			if !completed {
				return true, nil
			}
		}
	}

	paid, err := g.CoursePaid(userID, topic.CourseID)
	if err != nil {
		return true, err
	}
	if !paid {
		return true, nil
	}

	finished, err := g.LessonFinished(userID, previous.ID)
	if err != nil {
		return true, err
	}
	return !finished, nil
}

// CourseCompleted reports whether the user finished the course: the last
// topic's quiz completed when one exists, the last lesson finished otherwise.
func (g *AccessGate) CourseCompleted(userID, courseID uuid.UUID) (bool, error) {
	topics, err := g.courseTopics(courseID)
	if err != nil {
		return false, err
	}
	if len(topics) == 0 {
		return false, nil
	}

	last := topics[len(topics)-1]
	quiz, err := g.topicQuiz(last.ID)
	if err != nil {
		return false, err
	}
	if quiz != nil {
		return g.QuizCompleted(userID, quiz.ID)
	}
	if len(last.Lessons) == 0 {
		return false, nil
	}
	return g.LessonFinished(userID, last.Lessons[len(last.Lessons)-1].ID)
}

// CertificatedCourseCompleted reports whether every sub-course of the bundle
// is completed by the user.
func (g *AccessGate) CertificatedCourseCompleted(userID uuid.UUID, bundle *models.CertificatedCourse) (bool, error) {
	if len(bundle.SubCourses) == 0 {
		return false, nil
	}
	for _, sub := range bundle.SubCourses {
		done, err := g.CourseCompleted(userID, sub.ID)
		if err != nil {
			return false, err
		}
		if !done {
			return false, nil
		}
	}
	return true, nil
}

// QuizBlocked reports whether the quiz is locked for the user, branching by
// quiz kind: bundle quizzes need every sub-course completed, final quizzes
// need the last topic reached (and its own quiz passed when present), topic
// quizzes need the topic's last lesson finished.
func (g *AccessGate) QuizBlocked(userID uuid.UUID, quiz *models.Quiz) (bool, error) {
	if quiz.IsForCertificatedCourse() {
		var bundle models.CertificatedCourse
		if err := g.db.Preload("SubCourses").First(&bundle, "id = ?", *quiz.CertificatedCourseID).Error; err != nil {
			return true, err
		}
		done, err := g.CertificatedCourseCompleted(userID, &bundle)
		if err != nil {
			return true, err
		}
		return !done, nil
	}

	if quiz.IsFinal() {
		topics, err := g.courseTopics(*quiz.CourseID)
		if err != nil {
			return true, err
		}
		if len(topics) == 0 {
			return true, nil
		}
		last := topics[len(topics)-1]

		topicQuiz, err := g.topicQuiz(last.ID)
		if err != nil {
			return true, err
		}
		if topicQuiz != nil && topicQuiz.ID != quiz.ID {
			// The last topic carries its own quiz: it gates the final one.
			completed, err := g.QuizCompleted(userID, topicQuiz.ID)
			if err != nil {
				return true, err
			}
			return !completed, nil
		}

		if len(last.Lessons) == 0 {
			return true, nil
		}
		finished, err := g.LessonFinished(userID, last.Lessons[len(last.Lessons)-1].ID)
		if err != nil {
			return true, err
		}
		return !finished, nil
	}

	// Topic quiz: the topic's last lesson must be finished.
	var lessons []models.Lesson
	if err := g.db.Where("topic_id = ?", *quiz.TopicID).
		Order("position asc, created_at asc").
		Find(&lessons).Error; err != nil {
		return true, err
	}
	if len(lessons) == 0 {
		return true, nil
	}
	finished, err := g.LessonFinished(userID, lessons[len(lessons)-1].ID)
	if err != nil {
		return true, err
	}
	return !finished, nil
}
