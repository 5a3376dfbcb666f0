package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
	"github.com/example/aristotle/internal/utils"
)

// QuizHandler serves quiz lists and the quiz session endpoints.
type QuizHandler struct {
	db      *gorm.DB
	gate    *services.AccessGate
	session *services.QuizService
}

// NewQuizHandler constructs a QuizHandler.
func NewQuizHandler(db *gorm.DB, session *services.QuizService) *QuizHandler {
	return &QuizHandler{db: db, gate: services.NewAccessGate(db), session: session}
}

func quizSearch(db *gorm.DB, q string) *gorm.DB {
	if q == "" {
		return db
	}
	return db.Joins("LEFT JOIN topics ON topics.id = quizzes.topic_id").
		Where("quizzes.title ILIKE ? OR topics.name ILIKE ?", "%"+q+"%", "%"+q+"%")
}

func quizListResponse(c *fiber.Ctx, quizzes []models.Quiz) error {
	if len(quizzes) == 0 {
		return c.JSON(fiber.Map{"success": false, "code": 604, "result": []models.Quiz{}})
	}
	return c.JSON(fiber.Map{"success": true, "code": 600, "result": quizzes})
}

// ListAll returns every quiz, optionally filtered by title or topic name.
func (h *QuizHandler) ListAll(c *fiber.Ctx) error {
	var quizzes []models.Quiz
	if err := quizSearch(h.db.Model(&models.Quiz{}), c.Query("q")).
		Find(&quizzes).Error; err != nil {
		return err
	}
	return quizListResponse(c, quizzes)
}

// ListCompleted returns quizzes the user has a completed attempt on.
func (h *QuizHandler) ListCompleted(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var quizzes []models.Quiz
	query := h.db.Model(&models.Quiz{}).
		Joins("JOIN quiz_takers ON quiz_takers.quiz_id = quizzes.id").
		Where("quiz_takers.user_id = ? AND quiz_takers.completed = ?", userID, true)
	if err := quizSearch(query, c.Query("q")).Find(&quizzes).Error; err != nil {
		return err
	}
	return quizListResponse(c, quizzes)
}

// ListUncompleted returns quizzes the user has started but not passed.
func (h *QuizHandler) ListUncompleted(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var quizzes []models.Quiz
	query := h.db.Model(&models.Quiz{}).
		Joins("JOIN quiz_takers ON quiz_takers.quiz_id = quizzes.id").
		Where("quiz_takers.user_id = ? AND quiz_takers.completed = ?", userID, false)
	if err := quizSearch(query, c.Query("q")).Find(&quizzes).Error; err != nil {
		return err
	}
	return quizListResponse(c, quizzes)
}

// GetUncompleted returns one of the user's unfinished quizzes by slug.
func (h *QuizHandler) GetUncompleted(c *fiber.Ctx) error {
	var quiz models.Quiz
	err := h.db.Where("slug = ?", c.Params("slug")).First(&quiz).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"success": false, "code": 606, "error": "quiz not found"})
		}
		return err
	}
	return c.JSON(fiber.Map{"success": true, "code": 605, "quiz": quiz})
}

// ListQuestions returns a quiz's active questions in sequence order, with
// answers (correctness never serialized).
func (h *QuizHandler) ListQuestions(c *fiber.Ctx) error {
	var quiz models.Quiz
	if err := h.db.Where("slug = ?", c.Params("slug")).First(&quiz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "quiz not found")
		}
		return err
	}

	p := utils.ParsePagination(c)
	var questions []models.Question
	if err := h.db.Where("quiz_id = ? AND is_active = ?", quiz.ID, true).
		Order("position asc").
		Preload("Answers").
		Offset(p.Offset).Limit(p.Limit).
		Find(&questions).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    questions,
		"page":    p.Page,
		"limit":   p.Limit,
	})
}

// checkAvailable applies the access gate and the lockout to a quiz request.
func (h *QuizHandler) checkAvailable(userID uuid.UUID, quiz *models.Quiz) error {
	blocked, err := h.gate.QuizBlocked(userID, quiz)
	if err != nil {
		return err
	}
	if blocked {
		return fiber.NewError(fiber.StatusForbidden, "quiz is blocked")
	}
	return nil
}

// Start begins (or resumes) the user's attempt: first call creates the
// taker and its empty answer sheet, later calls report the last answered
// question so the client can resume.
func (h *QuizHandler) Start(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var quiz models.Quiz
	if err := h.db.Where("slug = ?", c.Params("slug")).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ?", true).Order("questions.position asc")
		}).
		Preload("Questions.Answers").
		First(&quiz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "quiz not found")
		}
		return err
	}

	if err := h.checkAvailable(userID, &quiz); err != nil {
		return err
	}

	taker, err := h.session.Start(userID, quiz.ID)
	if err != nil {
		return err
	}
	if services.Locked(taker, time.Now()) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success":   false,
			"error":     "quiz is locked",
			"unlock_at": taker.UnlockAt,
		})
	}

	lastQuestionID, err := h.lastAnsweredQuestion(taker.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"status":           true,
		"code":             900,
		"quiz":             quiz,
		"chances_left":     taker.ChancesLeft,
		"time_left":        taker.TimeLeft(quiz.Duration, time.Now()),
		"last_question_id": lastQuestionID,
	})
}

// lastAnsweredQuestion returns the question id of the most recent non-empty
// selection, or nil when nothing is answered yet.
func (h *QuizHandler) lastAnsweredQuestion(takerID uuid.UUID) (*uuid.UUID, error) {
	var sheet models.UserAnswer
	err := h.db.Model(&models.UserAnswer{}).
		Joins("JOIN user_answer_selections ON user_answer_selections.user_answer_id = user_answers.id").
		Where("user_answers.quiz_taker_id = ?", takerID).
		Order("user_answers.updated_at desc").
		First(&sheet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sheet.QuestionID, nil
}

type saveAnswerRequest struct {
	QuestionID uuid.UUID   `json:"question_id"`
	AnswerIDs  []uuid.UUID `json:"answers"`
}

// SaveAnswer replaces the selection for one question of the running attempt.
func (h *QuizHandler) SaveAnswer(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req saveAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var question models.Question
	if err := h.db.First(&question, "id = ?", req.QuestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "question not found")
		}
		return err
	}

	var quiz models.Quiz
	if err := h.db.First(&quiz, "id = ?", question.QuizID).Error; err != nil {
		return err
	}
	if err := h.checkAvailable(userID, &quiz); err != nil {
		return err
	}

	taker, err := h.session.Taker(userID, quiz.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusBadRequest, "quiz was not started")
		}
		return err
	}

	if err := h.session.SaveAnswer(taker, question.ID, req.AnswerIDs); err != nil {
		switch {
		case errors.Is(err, services.ErrQuizCompleted):
			return fiber.NewError(fiber.StatusBadRequest, "quiz is already completed")
		case errors.Is(err, services.ErrQuizLocked):
			return fiber.NewError(fiber.StatusForbidden, "quiz is locked")
		case errors.Is(err, services.ErrAnswerNotFound):
			return fiber.NewError(fiber.StatusBadRequest, "answer does not belong to the question")
		}
		return err
	}

	return c.JSON(fiber.Map{
		"status":  true,
		"code":    900,
		"message": "answer saved",
	})
}

// Submit scores the attempt and reports the outcome.
func (h *QuizHandler) Submit(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var quiz models.Quiz
	if err := h.db.Where("slug = ?", c.Params("slug")).First(&quiz).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "quiz not found")
		}
		return err
	}
	if err := h.checkAvailable(userID, &quiz); err != nil {
		return err
	}

	result, err := h.session.Submit(userID, &quiz)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.JSON(fiber.Map{"success": false, "code": 901, "error": "quiz was not started"})
		case errors.Is(err, services.ErrQuizCompleted):
			return fiber.NewError(fiber.StatusBadRequest, "quiz is already completed")
		case errors.Is(err, services.ErrQuizLocked):
			return fiber.NewError(fiber.StatusForbidden, "quiz is locked")
		}
		return err
	}

	if result.Passed {
		if err := services.CreateNotification(h.db, userID,
			"Tabriklaymiz!!! Siz kursni muvaffaqiyatli tugatdingiz."); err != nil {
			return err
		}
	}

	response := fiber.Map{
		"status":       true,
		"code":         901,
		"score":        result.Score,
		"passed":       result.Passed,
		"chances_left": result.ChancesLeft,
	}
	if result.UnlockAt != nil {
		response["unlock_at"] = result.UnlockAt
	}
	if result.Certificate != nil {
		if err := services.CreateNotification(h.db, userID,
			"Kursni muvaffaqiyatli tugatganingiz munosabati bilan siz sertifikat bilan taqdirlandingiz."); err != nil {
			return err
		}
		response["certificate"] = result.Certificate
	}

	return c.JSON(response)
}
