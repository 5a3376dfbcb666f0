package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
	"github.com/example/aristotle/internal/utils"
)

// Bonus points awarded per qualifying referral event.
const (
	referrerBonusPoints = 2
	referredBonusPoints = 1
)

const defaultBonusRateValue = 1000

// ReferralService owns the referral ledger and the bonus-rate accessor.
type ReferralService struct {
	db *gorm.DB
}

// NewReferralService constructs a ReferralService.
func NewReferralService(db *gorm.DB) *ReferralService {
	return &ReferralService{db: db}
}

// CreateNotification stores a profile notification for the user.
func CreateNotification(db *gorm.DB, userID uuid.UUID, title string) error {
	return db.Create(&models.Notification{UserID: userID, Title: title, ShowStatus: true}).Error
}

// GenerateReferralCode returns a 5-character code not used by any user yet.
func (s *ReferralService) GenerateReferralCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := utils.RandomReferralCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := s.db.Model(&models.User{}).Where("ref = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique referral code")
}

// CurrentRate returns the single active bonus rate, creating the default
// rate when none exists yet.
func (s *ReferralService) CurrentRate() (*models.BonusRate, error) {
	var rate models.BonusRate
	err := s.db.Where("is_active = ?", true).First(&rate).Error
	if err == nil {
		return &rate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rate = models.BonusRate{Value: defaultBonusRateValue, IsActive: true}
	if err := s.db.Create(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

// ActivateRate deactivates the current rate and inserts a new active one,
// in a single transaction so the one-active invariant holds.
func (s *ReferralService) ActivateRate(value float64) (*models.BonusRate, error) {
	rate := models.BonusRate{Value: value, IsActive: true}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BonusRate{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&rate).Error
	})
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// AttachReferral attributes the referred user's signup to the owner of the
// given referral code. Invalid codes and self-referrals are a silent no-op.
func (s *ReferralService) AttachReferral(referred *models.User, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	var referrer models.User
	if err := s.db.Where("ref = ?", key).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if referrer.ID == referred.ID {
		return false, nil
	}

	result := s.db.Model(&models.UserReferral{}).
		Where("user_id = ?", referred.ID).
		Updates(map[string]any{"called_by_id": referrer.ID, "is_referred": true})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if err := CreateNotification(s.db, referrer.ID,
		"Sizning promo-kodingiz orqali yangi foydalanuvchi ro'yhatdan o'tdi. Sizga 2 ball qo'shildi."); err != nil {
		return true, err
	}
	return true, nil
}

// AwardReferralBonus credits the referrer with 2 points and the referred
// user with 1 point, recomputing each balance's amount from the active
// bonus rate. Callers must ensure it runs at most once per qualifying event.
func (s *ReferralService) AwardReferralBonus(userID uuid.UUID) (bool, error) {
	rate, err := s.CurrentRate()
	if err != nil {
		return false, err
	}

	var ref models.UserReferral
	if err := s.db.Where("user_id = ?", userID).First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if !ref.IsReferred || ref.CalledByID == nil {
		return false, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.addBonus(tx, *ref.CalledByID, referrerBonusPoints, rate.Value); err != nil {
			return err
		}
		return s.addBonus(tx, userID, referredBonusPoints, rate.Value)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// awardWithin runs the referral bonus award inside an already open
// transaction, for callers that tie it to a payment commit.
func (s *ReferralService) awardWithin(tx *gorm.DB, userID uuid.UUID) error {
	rate, err := s.CurrentRate()
	if err != nil {
		return err
	}

	var ref models.UserReferral
	if err := tx.Where("user_id = ?", userID).First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !ref.IsReferred || ref.CalledByID == nil {
		return nil
	}

	if err := s.addBonus(tx, *ref.CalledByID, referrerBonusPoints, rate.Value); err != nil {
		return err
	}
	return s.addBonus(tx, userID, referredBonusPoints, rate.Value)
}

func (s *ReferralService) addBonus(tx *gorm.DB, userID uuid.UUID, points int, rateValue float64) error {
	var balance models.AccountBalance
	if err := tx.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	bonus := balance.Bonus + points
	return tx.Model(&models.AccountBalance{}).
		Where("id = ?", balance.ID).
		Updates(map[string]any{
			"bonus":  bonus,
			"amount": float64(bonus) * rateValue,
		}).Error
}

// ReferredUsers lists the users whose signup was attributed to the referrer.
func (s *ReferralService) ReferredUsers(referrerID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := s.db.Model(&models.User{}).
		Joins("JOIN user_referrals ON user_referrals.user_id = users.id").
		Where("user_referrals.called_by_id = ?", referrerID).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list referred users: %w", err)
	}
	return users, nil
}
