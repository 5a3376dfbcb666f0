package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
)

var subscribeHTTPClient = &http.Client{Timeout: 15 * time.Second}

// SubscribeService talks to the gateway's subscribe API: card tokenization,
// verification and token-based receipt payments.
type SubscribeService struct {
	db         *gorm.DB
	baseURL    string
	merchantID string
	key        string
	orders     *OrderService
}

// NewSubscribeService constructs a SubscribeService. merchantID goes into
// the X-Auth header for card methods; receipt methods additionally carry
// the secret key.
func NewSubscribeService(db *gorm.DB, baseURL, merchantID, key string) *SubscribeService {
	return &SubscribeService{
		db:         db,
		baseURL:    baseURL,
		merchantID: merchantID,
		key:        key,
		orders:     NewOrderService(db),
	}
}

type subscribeRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type subscribeError struct {
	Code    int    `json:"code"`
	Message any    `json:"message"`
	Data    string `json:"data"`
}

type subscribeResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *subscribeError `json:"error"`
}

// CardInfo is the gateway's view of a tokenized card.
type CardInfo struct {
	Number    string `json:"number"`
	Expire    string `json:"expire"`
	Token     string `json:"token"`
	Verify    bool   `json:"verify"`
	Recurrent bool   `json:"recurrent"`
}

type cardResult struct {
	Card CardInfo `json:"card"`
}

type verifyCodeResult struct {
	Sent  bool   `json:"sent"`
	Phone string `json:"phone"`
	Wait  int    `json:"wait"`
}

type receiptResult struct {
	Receipt struct {
		ID    string `json:"_id"`
		State int    `json:"state"`
	} `json:"receipt"`
}

// call posts one JSON-RPC request to the subscribe API. withKey selects the
// receipts-style X-Auth header.
func (s *SubscribeService) call(method string, params map[string]any, withKey bool) (json.RawMessage, error) {
	payload := subscribeRequest{
		ID:     time.Now().UnixMilli(),
		Method: method,
		Params: params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	auth := s.merchantID
	if withKey {
		auth = s.merchantID + ":" + s.key
	}
	req.Header.Set("X-Auth", auth)

	resp, err := subscribeHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s request: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s failed: status %d, body: %s", method, resp.StatusCode, string(respBody))
	}

	var parsed subscribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s rejected: code %d: %v", method, parsed.Error.Code, parsed.Error.Message)
	}
	return parsed.Result, nil
}

// CreateCard tokenizes a card number and expiry and stores the inactive
// card for the user. The token is not usable until verified.
func (s *SubscribeService) CreateCard(userID uuid.UUID, number, expire string) (*models.Card, error) {
	raw, err := s.call("cards.create", map[string]any{
		"card": map[string]string{"number": number, "expire": expire},
		"save": true,
	}, false)
	if err != nil {
		return nil, err
	}

	var result cardResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal cards.create result: %w", err)
	}

	card := models.Card{
		UserID:   &userID,
		Token:    result.Card.Token,
		Expire:   result.Card.Expire,
		First6:   cardFirst6(number),
		Last4:    cardLast4(result.Card.Number),
		IsVerify: result.Card.Verify,
		Status:   models.CardStatusInactive,
	}
	if err := s.db.Create(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// RequestVerifyCode asks the gateway to send the card's verification SMS and
// returns the masked phone the code went to.
func (s *SubscribeService) RequestVerifyCode(card *models.Card) (string, error) {
	raw, err := s.call("cards.get_verify_code", map[string]any{"token": card.Token}, false)
	if err != nil {
		return "", err
	}
	var result verifyCodeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal cards.get_verify_code result: %w", err)
	}
	if !result.Sent {
		return "", errors.New("verification code was not sent")
	}
	if result.Phone != "" {
		if err := s.db.Model(card).Update("phone", result.Phone).Error; err != nil {
			return "", err
		}
	}
	return result.Phone, nil
}

// VerifyCard confirms the SMS code and activates the stored card.
func (s *SubscribeService) VerifyCard(card *models.Card, code string) error {
	raw, err := s.call("cards.verify", map[string]any{
		"token": card.Token,
		"code":  code,
	}, false)
	if err != nil {
		return err
	}
	var result cardResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("unmarshal cards.verify result: %w", err)
	}
	if !result.Card.Verify {
		return errors.New("card was not verified")
	}

	return s.db.Model(card).Updates(map[string]any{
		"is_verify": true,
		"status":    models.CardStatusActive,
	}).Error
}

// RemoveCard deletes the token on the gateway side and marks the card
// deleted locally.
func (s *SubscribeService) RemoveCard(card *models.Card) error {
	if _, err := s.call("cards.remove", map[string]any{"token": card.Token}, false); err != nil {
		return err
	}
	return s.db.Model(card).Update("status", models.CardStatusDeleted).Error
}

// PayOrder creates a receipt for the order and pays it with the card token.
// On a paid receipt the order is fulfilled in one database transaction.
func (s *SubscribeService) PayOrder(order *models.Order, card *models.Card) (string, error) {
	if !card.IsVerify || card.Status != models.CardStatusActive {
		return "", errors.New("card is not verified")
	}

	createRaw, err := s.call("receipts.create", map[string]any{
		"amount": int64(order.Total * 100),
		"account": map[string]string{
			"order_id": order.PublicID,
		},
	}, true)
	if err != nil {
		return "", err
	}
	var created receiptResult
	if err := json.Unmarshal(createRaw, &created); err != nil {
		return "", fmt.Errorf("unmarshal receipts.create result: %w", err)
	}

	payRaw, err := s.call("receipts.pay", map[string]any{
		"id":    created.Receipt.ID,
		"token": card.Token,
	}, true)
	if err != nil {
		return "", err
	}
	var paid receiptResult
	if err := json.Unmarshal(payRaw, &paid); err != nil {
		return "", fmt.Errorf("unmarshal receipts.pay result: %w", err)
	}
	if paid.Receipt.State != 4 {
		return "", fmt.Errorf("receipt %s not paid, state %d", created.Receipt.ID, paid.Receipt.State)
	}

	now := time.Now().UnixMilli()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txn := models.Transaction{
			CardID:        &card.ID,
			TransactionID: created.Receipt.ID,
			OrderID:       &order.ID,
			CreateTime:    now,
			PerformTime:   now,
			State:         TransactionStatePaid,
			Amount:        order.Total,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		return s.orders.Fulfill(tx, order)
	})
	if err != nil {
		return "", err
	}
	return created.Receipt.ID, nil
}

// Cards lists the user's non-deleted cards.
func (s *SubscribeService) Cards(userID uuid.UUID) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.Where("user_id = ? AND status <> ?", userID, models.CardStatusDeleted).
		Order("created_at desc").
		Find(&cards).Error
	return cards, err
}

// CardByID fetches one of the user's cards.
func (s *SubscribeService) CardByID(userID, cardID uuid.UUID) (*models.Card, error) {
	var card models.Card
	err := s.db.Where("id = ? AND user_id = ?", cardID, userID).First(&card).Error
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func cardFirst6(number string) string {
	if len(number) < 6 {
		return number
	}
	return number[:6]
}

func cardLast4(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}
