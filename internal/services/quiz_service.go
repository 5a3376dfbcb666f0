package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
)

var (
	// ErrQuizLocked is returned when the taker has no chances left and the
	// lockout window has not elapsed.
	ErrQuizLocked = errors.New("quiz is locked")
	// ErrQuizCompleted is returned when the taker has already passed.
	ErrQuizCompleted = errors.New("quiz is already completed")
	// ErrAnswerNotFound is returned when a selected answer does not belong
	// to the question being answered.
	ErrAnswerNotFound = errors.New("answer does not belong to the question")
)

const lockoutDuration = 24 * time.Hour

// QuizService runs quiz sessions: starting attempts, recording selections,
// scoring submissions and managing the chance ledger.
type QuizService struct {
	db    *gorm.DB
	certs *CertificateService
}

// NewQuizService constructs a QuizService.
func NewQuizService(db *gorm.DB, certs *CertificateService) *QuizService {
	return &QuizService{db: db, certs: certs}
}

// Start returns the user's taker for the quiz, creating it together with one
// empty answer sheet row per active question on first call. Calling Start on
// an existing attempt is a no-op and returns the current state.
func (s *QuizService) Start(userID, quizID uuid.UUID) (*models.QuizTaker, error) {
	var quiz models.Quiz
	if err := s.db.First(&quiz, "id = ?", quizID).Error; err != nil {
		return nil, err
	}

	var taker models.QuizTaker
	err := s.db.Where("user_id = ? AND quiz_id = ?", userID, quizID).First(&taker).Error
	if err == nil {
		return s.reconciled(&quiz, &taker)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	taker = models.QuizTaker{
		UserID:      userID,
		QuizID:      quizID,
		ChancesLeft: quiz.Chances,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&taker).Error; err != nil {
			return err
		}
		var questions []models.Question
		if err := tx.Where("quiz_id = ? AND is_active = ?", quizID, true).Find(&questions).Error; err != nil {
			return err
		}
		for _, q := range questions {
			sheet := models.UserAnswer{QuizTakerID: taker.ID, QuestionID: q.ID}
			if err := tx.Create(&sheet).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &taker, nil
}

// Taker fetches an existing attempt, reconciling an expired lockout first.
func (s *QuizService) Taker(userID, quizID uuid.UUID) (*models.QuizTaker, error) {
	var quiz models.Quiz
	if err := s.db.First(&quiz, "id = ?", quizID).Error; err != nil {
		return nil, err
	}
	var taker models.QuizTaker
	if err := s.db.Where("user_id = ? AND quiz_id = ?", userID, quizID).First(&taker).Error; err != nil {
		return nil, err
	}
	return s.reconciled(&quiz, &taker)
}

// Locked reports whether the taker is under an active lockout: out of
// chances and the unlock time still in the future.
func Locked(taker *models.QuizTaker, now time.Time) bool {
	return taker.ChancesLeft <= 0 && taker.UnlockAt != nil && now.Before(*taker.UnlockAt)
}

// LockoutExpired reports whether a lockout existed and has elapsed, so the
// taker is due a chance replenishment.
func LockoutExpired(taker *models.QuizTaker, now time.Time) bool {
	return taker.ChancesLeft <= 0 && taker.UnlockAt != nil && !now.Before(*taker.UnlockAt)
}

// ReconcileLockout replenishes the taker's chances to the quiz's full
// allowance and clears the unlock time. Callers decide when via
// LockoutExpired; the transition itself is unconditional.
func (s *QuizService) ReconcileLockout(quiz *models.Quiz, taker *models.QuizTaker) error {
	taker.ChancesLeft = quiz.Chances
	taker.UnlockAt = nil
	return s.db.Model(taker).Updates(map[string]any{
		"chances_left": taker.ChancesLeft,
		"unlock_at":    nil,
	}).Error
}

func (s *QuizService) reconciled(quiz *models.Quiz, taker *models.QuizTaker) (*models.QuizTaker, error) {
	if LockoutExpired(taker, time.Now()) {
		if err := s.ReconcileLockout(quiz, taker); err != nil {
			return nil, err
		}
	}
	return taker, nil
}

// SaveAnswer replaces the taker's selection for one question. The previous
// selection is cleared first, so re-answering always reflects the latest
// choice only.
func (s *QuizService) SaveAnswer(taker *models.QuizTaker, questionID uuid.UUID, answerIDs []uuid.UUID) error {
	if taker.Completed {
		return ErrQuizCompleted
	}
	if Locked(taker, time.Now()) {
		return ErrQuizLocked
	}

	var sheet models.UserAnswer
	if err := s.db.Where("quiz_taker_id = ? AND question_id = ?", taker.ID, questionID).First(&sheet).Error; err != nil {
		return err
	}

	var answers []models.Answer
	if len(answerIDs) > 0 {
		if err := s.db.Where("question_id = ? AND id IN ?", questionID, answerIDs).Find(&answers).Error; err != nil {
			return err
		}
		if len(answers) != len(answerIDs) {
			return ErrAnswerNotFound
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&sheet).Association("Answers").Clear(); err != nil {
			return err
		}
		if len(answers) == 0 {
			return nil
		}
		return tx.Model(&sheet).Association("Answers").Append(&answers)
	})
}

// SubmitResult is the outcome of a quiz submission.
type SubmitResult struct {
	Score       int
	Passed      bool
	ChancesLeft int
	UnlockAt    *time.Time
	Certificate *models.CourseCertificate
}

// Submit scores the attempt against the active questions. A question counts
// as correct when the selection is non-empty and every selected answer is a
// correct one. Passing marks the attempt completed and, for final or bundle
// quizzes, issues the certificate when the whole course is done. Failing
// burns a chance; burning the last one starts the lockout window.
func (s *QuizService) Submit(userID uuid.UUID, quiz *models.Quiz) (*SubmitResult, error) {
	taker, err := s.Taker(userID, quiz.ID)
	if err != nil {
		return nil, err
	}
	if taker.Completed {
		return nil, ErrQuizCompleted
	}
	if Locked(taker, time.Now()) {
		return nil, ErrQuizLocked
	}

	score, err := s.score(taker)
	if err != nil {
		return nil, err
	}
	passed := score >= quiz.RequiredScoreToPass

	result := &SubmitResult{Score: score, Passed: passed}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		taker.Score = score
		if passed {
			taker.Completed = true
			if err := tx.Model(taker).Updates(map[string]any{
				"score":     score,
				"completed": true,
			}).Error; err != nil {
				return err
			}
		} else {
			taker.ChancesLeft--
			updates := map[string]any{
				"score":        score,
				"chances_left": taker.ChancesLeft,
			}
			if taker.ChancesLeft <= 0 {
				unlock := time.Now().Add(lockoutDuration)
				taker.UnlockAt = &unlock
				updates["unlock_at"] = unlock
			}
			if err := tx.Model(taker).Updates(updates).Error; err != nil {
				return err
			}
		}
		result.ChancesLeft = taker.ChancesLeft
		result.UnlockAt = taker.UnlockAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if passed {
		cert, err := s.maybeIssueCertificate(userID, quiz)
		if err != nil {
			return nil, err
		}
		result.Certificate = cert
	}
	return result, nil
}

// score computes floor(100 * correct / total) over the active questions.
// A quiz with no active questions scores zero.
func (s *QuizService) score(taker *models.QuizTaker) (int, error) {
	var questions []models.Question
	if err := s.db.Where("quiz_id = ? AND is_active = ?", taker.QuizID, true).Find(&questions).Error; err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, nil
	}

	correct := 0
	for _, q := range questions {
		var sheet models.UserAnswer
		err := s.db.Where("quiz_taker_id = ? AND question_id = ?", taker.ID, q.ID).
			Preload("Answers").
			First(&sheet).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if answeredCorrectly(sheet.Answers) {
			correct++
		}
	}
	return correct * 100 / len(questions), nil
}

// answeredCorrectly holds for a non-empty selection where every selected
// answer is correct. Extra correct answers left unselected do not hurt.
func answeredCorrectly(selected []models.Answer) bool {
	if len(selected) == 0 {
		return false
	}
	for _, a := range selected {
		if !a.IsCorrect {
			return false
		}
	}
	return true
}

// maybeIssueCertificate issues the course certificate after a passed final
// quiz once the course (or every bundle sub-course) is fully completed.
func (s *QuizService) maybeIssueCertificate(userID uuid.UUID, quiz *models.Quiz) (*models.CourseCertificate, error) {
	if s.certs == nil {
		return nil, nil
	}
	gate := NewAccessGate(s.db)

	switch {
	case quiz.IsForCertificatedCourse():
		var bundle models.CertificatedCourse
		if err := s.db.Preload("SubCourses").First(&bundle, "id = ?", *quiz.CertificatedCourseID).Error; err != nil {
			return nil, err
		}
		done, err := gate.CertificatedCourseCompleted(userID, &bundle)
		if err != nil || !done {
			return nil, err
		}
		return s.certs.IssueForBundle(userID, bundle.ID)
	case quiz.IsFinal():
		var course models.Course
		if err := s.db.First(&course, "id = ?", *quiz.CourseID).Error; err != nil {
			return nil, err
		}
		if !course.Certificate {
			return nil, nil
		}
		done, err := gate.CourseCompleted(userID, *quiz.CourseID)
		if err != nil || !done {
			return nil, err
		}
		return s.certs.IssueForCourse(userID, *quiz.CourseID)
	}
	return nil, nil
}
