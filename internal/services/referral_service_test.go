package services

import (
	"testing"

	"github.com/example/aristotle/internal/models"
)

func TestAttachReferral(t *testing.T) {
	db := newTestDB(t)
	referrer := seedUser(t, db, nextPhone())
	referred := seedUser(t, db, nextPhone())
	referrals := NewReferralService(db)

	ok, err := referrals.AttachReferral(referred, referrer.Ref)
	if err != nil {
		t.Fatalf("attach referral: %v", err)
	}
	if !ok {
		t.Fatal("expected the referral attributed")
	}

	var ref models.UserReferral
	if err := db.Where("user_id = ?", referred.ID).First(&ref).Error; err != nil {
		t.Fatalf("load referral: %v", err)
	}
	if !ref.IsReferred || ref.CalledByID == nil || *ref.CalledByID != referrer.ID {
		t.Fatalf("expected referral pointing at the referrer, got %+v", ref)
	}

	var notifications int64
	if err := db.Model(&models.Notification{}).Where("user_id = ?", referrer.ID).Count(&notifications).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if notifications != 1 {
		t.Fatalf("expected the referrer notified once, got %d", notifications)
	}
}

func TestAttachReferralRejectsSelfAndUnknownCodes(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	referrals := NewReferralService(db)

	if ok, err := referrals.AttachReferral(user, user.Ref); err != nil || ok {
		t.Fatalf("expected self-referral ignored, got ok=%v err=%v", ok, err)
	}
	if ok, err := referrals.AttachReferral(user, "nope!"); err != nil || ok {
		t.Fatalf("expected unknown code ignored, got ok=%v err=%v", ok, err)
	}
	if ok, err := referrals.AttachReferral(user, ""); err != nil || ok {
		t.Fatalf("expected empty code ignored, got ok=%v err=%v", ok, err)
	}
}

func TestAwardReferralBonus(t *testing.T) {
	db := newTestDB(t)
	referrer := seedUser(t, db, nextPhone())
	referred := seedUser(t, db, nextPhone())
	referrals := NewReferralService(db)

	if _, err := referrals.AttachReferral(referred, referrer.Ref); err != nil {
		t.Fatalf("attach referral: %v", err)
	}

	awarded, err := referrals.AwardReferralBonus(referred.ID)
	if err != nil {
		t.Fatalf("award bonus: %v", err)
	}
	if !awarded {
		t.Fatal("expected the bonus awarded")
	}

	// Default rate is 1000 per point: 2 points to the referrer, 1 to the
	// referred user.
	referrerBalance := balanceOf(t, db, referrer.ID)
	if referrerBalance.Bonus != 2 || referrerBalance.Amount != 2000 {
		t.Fatalf("expected referrer at 2 points / 2000, got %+v", referrerBalance)
	}
	referredBalance := balanceOf(t, db, referred.ID)
	if referredBalance.Bonus != 1 || referredBalance.Amount != 1000 {
		t.Fatalf("expected referred user at 1 point / 1000, got %+v", referredBalance)
	}
}

func TestAwardWithoutReferralChangesNothing(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	referrals := NewReferralService(db)

	awarded, err := referrals.AwardReferralBonus(user.ID)
	if err != nil {
		t.Fatalf("award bonus: %v", err)
	}
	if awarded {
		t.Fatal("expected no award for a user who was not referred")
	}

	balance := balanceOf(t, db, user.ID)
	if balance.Bonus != 0 || balance.Amount != 0 {
		t.Fatalf("expected an untouched balance, got %+v", balance)
	}
}

func TestActivateRateKeepsOneActiveRow(t *testing.T) {
	db := newTestDB(t)
	referrals := NewReferralService(db)

	first, err := referrals.CurrentRate()
	if err != nil {
		t.Fatalf("current rate: %v", err)
	}
	if first.Value != 1000 {
		t.Fatalf("expected default rate 1000, got %.2f", first.Value)
	}

	updated, err := referrals.ActivateRate(500)
	if err != nil {
		t.Fatalf("activate rate: %v", err)
	}
	if updated.Value != 500 {
		t.Fatalf("expected new rate 500, got %.2f", updated.Value)
	}

	var active int64
	if err := db.Model(&models.BonusRate{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		t.Fatalf("count active rates: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected exactly one active rate, got %d", active)
	}

	current, err := referrals.CurrentRate()
	if err != nil {
		t.Fatalf("current rate after activate: %v", err)
	}
	if current.Value != 500 {
		t.Fatalf("expected the new rate returned, got %.2f", current.Value)
	}
}
