package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/middleware"
	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/services"
	"github.com/example/aristotle/internal/utils"
)

// CourseHandler serves the catalog read endpoints, lesson progress and
// certificates.
type CourseHandler struct {
	db    *gorm.DB
	gate  *services.AccessGate
	certs *services.CertificateService
	carts *services.CartService
}

// NewCourseHandler constructs a CourseHandler.
func NewCourseHandler(db *gorm.DB, certs *services.CertificateService) *CourseHandler {
	return &CourseHandler{
		db:    db,
		gate:  services.NewAccessGate(db),
		certs: certs,
		carts: services.NewCartService(db),
	}
}

// ListCategories returns active categories ordered by priority.
func (h *CourseHandler) ListCategories(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	var categories []models.Category
	if err := h.db.Where("is_active = ?", true).
		Order("priority asc").
		Offset(p.Offset).Limit(p.Limit).
		Find(&categories).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    categories,
		"page":    p.Page,
		"limit":   p.Limit,
	})
}

// ListCourses returns active courses, optionally filtered by category slug
// or a name search.
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.db.Where("is_active = ?", true).Order("priority asc")
	if category := c.Query("category"); category != "" {
		query = query.Joins("JOIN categories ON categories.id = courses.category_id").
			Where("categories.slug = ?", category)
	}
	if q := c.Query("q"); q != "" {
		query = query.Where("courses.name ILIKE ?", "%"+q+"%")
	}

	var courses []models.Course
	if err := query.Offset(p.Offset).Limit(p.Limit).Find(&courses).Error; err != nil {
		return err
	}

	data := make([]fiber.Map, 0, len(courses))
	for i := range courses {
		entry, err := h.decorateCourse(c, &courses[i])
		if err != nil {
			return err
		}
		data = append(data, entry)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"page":    p.Page,
		"limit":   p.Limit,
	})
}

// decorateCourse attaches the per-user status to a catalog entry when the
// request carries a valid token.
func (h *CourseHandler) decorateCourse(c *fiber.Ctx, course *models.Course) (fiber.Map, error) {
	entry := fiber.Map{
		"id":        course.ID,
		"name":      course.Name,
		"slug":      course.Slug,
		"author":    course.Author,
		"price":     course.Price,
		"old_price": course.OldPrice,
		"status":    models.StatusNew,
	}
	if userID, err := middleware.GetCurrentUserID(c); err == nil {
		status, err := h.gate.CourseStatus(userID, course.ID)
		if err != nil {
			return nil, err
		}
		entry["status"] = status
	}
	return entry, nil
}

// GetCourse returns one course by slug with its ordered topics and lessons,
// bumping the view counter.
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	var course models.Course
	err := h.db.Where("slug = ? AND is_active = ?", c.Params("slug"), true).
		Preload("Category").
		Preload("Topics", func(db *gorm.DB) *gorm.DB { return db.Order("topics.position asc") }).
		Preload("Topics.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("lessons.position asc") }).
		First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "course not found")
		}
		return err
	}

	if err := h.db.Model(&models.Course{}).Where("id = ?", course.ID).
		Update("views", gorm.Expr("views + 1")).Error; err != nil {
		return err
	}

	entry, err := h.decorateCourse(c, &course)
	if err != nil {
		return err
	}
	entry["description"] = course.Description
	entry["topics"] = course.Topics
	entry["views"] = course.Views + 1

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// ListTopics returns a course's topics in sequence order.
func (h *CourseHandler) ListTopics(c *fiber.Ctx) error {
	courseID, err := uuid.Parse(c.Params("courseId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid course id")
	}

	var topics []models.Topic
	if err := h.db.Where("course_id = ?", courseID).
		Order("position asc").
		Preload("Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("lessons.position asc") }).
		Find(&topics).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    topics,
	})
}

// GetLesson returns one lesson together with its gate state and the user's
// progress.
func (h *CourseHandler) GetLesson(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var lesson models.Lesson
	if err := h.db.First(&lesson, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "lesson not found")
		}
		return err
	}

	blocked, err := h.gate.LessonBlocked(userID, &lesson)
	if err != nil {
		return err
	}

	status := models.StatusNew
	var progress models.UserLesson
	if err := h.db.Where("user_id = ? AND lesson_id = ?", userID, lesson.ID).
		First(&progress).Error; err == nil {
		status = progress.Status
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"lesson":  lesson,
			"blocked": blocked,
			"status":  status,
		},
	})
}

type lessonStatusRequest struct {
	Status string `json:"status"`
}

// UpdateLessonStatus records the user's progress on a lesson. Blocked
// lessons reject the update.
func (h *CourseHandler) UpdateLessonStatus(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	var req lessonStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status != models.StatusNew && req.Status != models.StatusProgress && req.Status != models.StatusFinished {
		return fiber.NewError(fiber.StatusBadRequest, "invalid status")
	}

	var lesson models.Lesson
	if err := h.db.First(&lesson, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "lesson not found")
		}
		return err
	}

	blocked, err := h.gate.LessonBlocked(userID, &lesson)
	if err != nil {
		return err
	}
	if blocked {
		return fiber.NewError(fiber.StatusForbidden, "lesson is blocked")
	}

	var progress models.UserLesson
	err = h.db.Where("user_id = ? AND lesson_id = ?", userID, lesson.ID).First(&progress).Error
	switch {
	case err == nil:
		if err := h.db.Model(&progress).Update("status", req.Status).Error; err != nil {
			return err
		}
		progress.Status = req.Status
	case errors.Is(err, gorm.ErrRecordNotFound):
		progress = models.UserLesson{UserID: userID, LessonID: lesson.ID, Status: req.Status}
		if err := h.db.Create(&progress).Error; err != nil {
			return err
		}
	default:
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    progress,
	})
}

// ListCertificatedCourses returns bundles with per-user pricing when the
// request is authenticated.
func (h *CourseHandler) ListCertificatedCourses(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	var bundles []models.CertificatedCourse
	if err := h.db.Preload("SubCourses").
		Offset(p.Offset).Limit(p.Limit).
		Find(&bundles).Error; err != nil {
		return err
	}

	data := make([]fiber.Map, 0, len(bundles))
	for i := range bundles {
		bundle := &bundles[i]
		price := bundle.ListPrice()
		if userID, err := middleware.GetCurrentUserID(c); err == nil {
			price, err = h.carts.BundlePriceFor(userID, bundle)
			if err != nil {
				return err
			}
		}
		data = append(data, fiber.Map{
			"id":               bundle.ID,
			"name":             bundle.Name,
			"slug":             bundle.Slug,
			"discount_percent": bundle.DiscountPercent,
			"price":            price,
			"sub_courses":      bundle.SubCourses,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"page":    p.Page,
		"limit":   p.Limit,
	})
}

// MyCertificates lists the authenticated user's certificates.
func (h *CourseHandler) MyCertificates(c *fiber.Ctx) error {
	userID, err := middleware.GetCurrentUserID(c)
	if err != nil {
		return err
	}

	certs, err := h.certs.ForUser(userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    certs,
	})
}

// VerifyCertificate is the public QR landing: resolves a certificate hash.
func (h *CourseHandler) VerifyCertificate(c *fiber.Ctx) error {
	cert, err := h.certs.ByHash(c.Params("hash"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false, "code": 556,
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true, "code": 555,
		"certificate_pdf": cert.PDFPath,
	})
}
