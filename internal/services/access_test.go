package services

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
)

// seedLinearCourse builds a course with two topics of two lessons each and
// returns the course plus its lessons in sequence order.
func seedLinearCourse(t *testing.T, db *gorm.DB, name string) (*models.Course, []models.Lesson) {
	t.Helper()
	course := seedCourse(t, db, name, 100)

	var lessons []models.Lesson
	for ti := 0; ti < 2; ti++ {
		topic := models.Topic{CourseID: course.ID, Name: "Topic", Position: ti + 1}
		if err := db.Create(&topic).Error; err != nil {
			t.Fatalf("seed topic: %v", err)
		}
		for li := 0; li < 2; li++ {
			lesson := models.Lesson{TopicID: topic.ID, Name: "Lesson", Position: li + 1}
			if err := db.Create(&lesson).Error; err != nil {
				t.Fatalf("seed lesson: %v", err)
			}
			lessons = append(lessons, lesson)
		}
	}
	return course, lessons
}

func finishLesson(t *testing.T, db *gorm.DB, userID, lessonID uuid.UUID) {
	t.Helper()
	record := models.UserLesson{UserID: userID, LessonID: lessonID, Status: models.StatusFinished}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("finish lesson: %v", err)
	}
}

func TestFirstLessonIsAlwaysOpen(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	_, lessons := seedLinearCourse(t, db, "Open Course")
	gate := NewAccessGate(db)

	blocked, err := gate.LessonBlocked(user.ID, &lessons[0])
	if err != nil {
		t.Fatalf("lesson blocked: %v", err)
	}
	if blocked {
		t.Fatal("the first lesson of a course must be open")
	}
}

func TestLessonUnlocksAfterPaymentAndPredecessor(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	course, lessons := seedLinearCourse(t, db, "Gated Course")
	gate := NewAccessGate(db)

	blocked, err := gate.LessonBlocked(user.ID, &lessons[1])
	if err != nil {
		t.Fatalf("lesson blocked: %v", err)
	}
	if !blocked {
		t.Fatal("an unpaid course must keep later lessons locked")
	}

	markCoursePaid(t, db, user.ID, course.ID)

	blocked, err = gate.LessonBlocked(user.ID, &lessons[1])
	if err != nil {
		t.Fatalf("lesson blocked after payment: %v", err)
	}
	if !blocked {
		t.Fatal("payment alone must not skip the previous lesson")
	}

	finishLesson(t, db, user.ID, lessons[0].ID)

	blocked, err = gate.LessonBlocked(user.ID, &lessons[1])
	if err != nil {
		t.Fatalf("lesson blocked after progress: %v", err)
	}
	if blocked {
		t.Fatal("a paid course with the predecessor finished must open the lesson")
	}
}

func TestCourseStatusProgression(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	course := seedCourse(t, db, "Status Course", 100)
	gate := NewAccessGate(db)

	status, err := gate.CourseStatus(user.ID, course.ID)
	if err != nil {
		t.Fatalf("course status: %v", err)
	}
	if status != models.StatusNew {
		t.Fatalf("expected new, got %s", status)
	}

	markCoursePaid(t, db, user.ID, course.ID)
	status, err = gate.CourseStatus(user.ID, course.ID)
	if err != nil {
		t.Fatalf("course status after payment: %v", err)
	}
	if status != models.StatusProgress {
		t.Fatalf("expected progress, got %s", status)
	}

	cert := models.CourseCertificate{UserID: user.ID, CourseID: &course.ID, Hash: "hash-" + course.Slug}
	if err := db.Create(&cert).Error; err != nil {
		t.Fatalf("seed certificate: %v", err)
	}
	status, err = gate.CourseStatus(user.ID, course.ID)
	if err != nil {
		t.Fatalf("course status with certificate: %v", err)
	}
	if status != models.StatusFinished {
		t.Fatalf("expected finished, got %s", status)
	}
}

func TestCourseCompletedByLastLesson(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	course, lessons := seedLinearCourse(t, db, "Completable Course")
	gate := NewAccessGate(db)

	done, err := gate.CourseCompleted(user.ID, course.ID)
	if err != nil {
		t.Fatalf("course completed: %v", err)
	}
	if done {
		t.Fatal("an untouched course must not count as completed")
	}

	// Without topic quizzes, completion hinges on the very last lesson.
	finishLesson(t, db, user.ID, lessons[len(lessons)-1].ID)

	done, err = gate.CourseCompleted(user.ID, course.ID)
	if err != nil {
		t.Fatalf("course completed after last lesson: %v", err)
	}
	if !done {
		t.Fatal("finishing the last lesson must complete the course")
	}
}

func TestQuizBlockedForTopic(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	quiz, _ := seedTopicQuiz(t, db, "Gatekeeper", 1)
	gate := NewAccessGate(db)

	var loaded models.Quiz
	if err := db.First(&loaded, "id = ?", quiz.ID).Error; err != nil {
		t.Fatalf("load quiz: %v", err)
	}

	// The topic created by the seed has no lessons, so its quiz stays locked.
	blocked, err := gate.QuizBlocked(user.ID, &loaded)
	if err != nil {
		t.Fatalf("quiz blocked: %v", err)
	}
	if !blocked {
		t.Fatal("a topic without finishable lessons must keep its quiz locked")
	}

	lesson := models.Lesson{TopicID: *loaded.TopicID, Name: "Lesson", Position: 1}
	if err := db.Create(&lesson).Error; err != nil {
		t.Fatalf("seed lesson: %v", err)
	}
	finishLesson(t, db, user.ID, lesson.ID)

	blocked, err = gate.QuizBlocked(user.ID, &loaded)
	if err != nil {
		t.Fatalf("quiz blocked after lesson: %v", err)
	}
	if blocked {
		t.Fatal("finishing the topic's last lesson must unlock its quiz")
	}
}
