package models

import (
	"errors"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Progress status for user lessons and course state decoration.
const (
	StatusNew      = "new"
	StatusProgress = "progress"
	StatusFinished = "finished"
)

type Category struct {
	BaseModel
	Title    string `json:"title"`
	Slug     string `gorm:"uniqueIndex" json:"slug"`
	Priority int    `json:"priority"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// BeforeSave derives the slug from the title when not set explicitly.
func (cat *Category) BeforeSave(tx *gorm.DB) error {
	if cat.Slug == "" {
		cat.Slug = slug.Make(cat.Title)
	}
	return nil
}

type Course struct {
	BaseModel
	Name        string     `json:"name"`
	Slug        string     `gorm:"uniqueIndex" json:"slug"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	CategoryID  *uuid.UUID `gorm:"type:uuid" json:"category_id"`
	Category    *Category  `json:"category,omitempty"`
	OldPrice    float64    `json:"old_price"`
	Price       float64    `json:"price"`
	// Certificate marks whether completing the final quiz awards a certificate.
	Certificate bool    `gorm:"default:true" json:"certificate"`
	IsActive    bool    `gorm:"default:true" json:"is_active"`
	Priority    int     `json:"priority"`
	Views       int     `json:"views"`
	Topics      []Topic `json:"topics,omitempty"`
}

// BeforeSave derives the slug from the name when not set explicitly.
func (c *Course) BeforeSave(tx *gorm.DB) error {
	if c.Slug == "" {
		c.Slug = slug.Make(c.Name)
	}
	return nil
}

// Topic is an ordered section of a course. Position is the explicit sequence
// index; traversal never relies on insertion order.
type Topic struct {
	BaseModel
	CourseID uuid.UUID `gorm:"type:uuid;index" json:"course_id"`
	Name     string    `json:"name"`
	Position int       `gorm:"index" json:"position"`
	Lessons  []Lesson  `json:"lessons,omitempty"`
}

type Lesson struct {
	BaseModel
	TopicID     uuid.UUID `gorm:"type:uuid;index" json:"topic_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Position    int       `gorm:"index" json:"position"`
}

// UserLesson tracks a user's progress through a single lesson.
type UserLesson struct {
	BaseModel
	UserID   uuid.UUID `gorm:"type:uuid;index:idx_user_lesson,unique" json:"user_id"`
	LessonID uuid.UUID `gorm:"type:uuid;index:idx_user_lesson,unique" json:"lesson_id"`
	Status   string    `gorm:"default:new" json:"status"`
}

// CertificatedCourse is a discounted bundle of individual courses.
type CertificatedCourse struct {
	BaseModel
	Name            string   `json:"name"`
	Slug            string   `gorm:"uniqueIndex" json:"slug"`
	Description     string   `json:"description"`
	DiscountPercent int      `json:"discount_percent"`
	SubCourses      []Course `gorm:"many2many:certificated_course_sub_courses;" json:"sub_courses,omitempty"`
}

// BeforeSave derives the slug from the name when not set explicitly.
func (cc *CertificatedCourse) BeforeSave(tx *gorm.DB) error {
	if cc.Slug == "" {
		cc.Slug = slug.Make(cc.Name)
	}
	return nil
}

// Price returns the bundle's discounted list price.
func (cc *CertificatedCourse) ListPrice() float64 {
	var sum float64
	for _, c := range cc.SubCourses {
		sum += c.Price
	}
	if cc.DiscountPercent > 0 {
		sum -= sum * float64(cc.DiscountPercent) / 100
	}
	return sum
}

// CourseCertificate is the persisted award for completing a course or a
// certificated course. Exactly one of the two parents must be set.
type CourseCertificate struct {
	BaseModel
	UserID               uuid.UUID  `gorm:"type:uuid;index:idx_user_course_cert,unique" json:"user_id"`
	CourseID             *uuid.UUID `gorm:"type:uuid;index:idx_user_course_cert,unique" json:"course_id"`
	CertificatedCourseID *uuid.UUID `gorm:"type:uuid" json:"certificated_course_id"`
	Hash                 string     `gorm:"uniqueIndex" json:"hash"`
	PDFPath              string     `json:"pdf_path"`
	QRPath               string     `json:"qr_path"`
}

var errCertificateParent = errors.New("certificate must reference exactly one of course, certificated course")

// BeforeSave enforces the exactly-one-parent rule.
func (c *CourseCertificate) BeforeSave(tx *gorm.DB) error {
	if (c.CourseID == nil) == (c.CertificatedCourseID == nil) {
		return errCertificateParent
	}
	return nil
}
