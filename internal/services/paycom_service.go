package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/aristotle/internal/models"
)

// Paycom transaction states.
const (
	TransactionStatePaid            = 2
	TransactionStatePending         = 1
	TransactionStatePendingCanceled = -1
	TransactionStatePaidCanceled    = -2
)

// A pending transaction not performed within this window is cancelled with
// reason 4 (timeout).
const transactionTimeout = 12 * time.Minute

const cancelReasonTimeout = 4

// PaycomErrorInfo describes a Paycom-compatible error.
type PaycomErrorInfo struct {
	Name    string
	Code    int
	Message map[string]string
}

var (
	PaycomErrorInvalidAmount = PaycomErrorInfo{
		Name: "InvalidAmount",
		Code: -31001,
		Message: map[string]string{
			"uz": "Noto'g'ri summa",
			"ru": "Недопустимая сумма",
			"en": "Invalid amount",
		},
	}
	PaycomErrorCantDoOperation = PaycomErrorInfo{
		Name: "CantDoOperation",
		Code: -31008,
		Message: map[string]string{
			"uz": "Biz operatsiyani bajara olmaymiz",
			"ru": "Мы не можем сделать операцию",
			"en": "We can't do operation",
		},
	}
	PaycomErrorTransactionNotFound = PaycomErrorInfo{
		Name: "TransactionNotFound",
		Code: -31050,
		Message: map[string]string{
			"uz": "Tranzaktsiya topilmadi",
			"ru": "Транзакция не найдена",
			"en": "Transaction not found",
		},
	}
	PaycomErrorOrderNotFound = PaycomErrorInfo{
		Name: "OrderNotFound",
		Code: -31050,
		Message: map[string]string{
			"uz": "Buyurtma topilmadi",
			"ru": "Заказ не найден",
			"en": "Order not found",
		},
	}
	PaycomErrorAlreadyDone = PaycomErrorInfo{
		Name: "AlreadyDone",
		Code: -31060,
		Message: map[string]string{
			"uz": "Mahsulot uchun to'lov qilingan",
			"ru": "Оплачено за товар",
			"en": "Paid for the product",
		},
	}
	PaycomErrorPending = PaycomErrorInfo{
		Name: "Pending",
		Code: -31050,
		Message: map[string]string{
			"uz": "Mahsulot uchun to'lov kutilayapti",
			"ru": "Ожидается оплата товар",
			"en": "Payment for the product is pending",
		},
	}
	PaycomErrorInvalidAuthorization = PaycomErrorInfo{
		Name: "InvalidAuthorization",
		Code: -32504,
		Message: map[string]string{
			"uz": "Avtorizatsiya yaroqsiz",
			"ru": "Авторизация недействительна",
			"en": "Authorization invalid",
		},
	}
)

// TransactionError is a structured Paycom transaction error carried up to
// the JSON-RPC layer.
type TransactionError struct {
	Info PaycomErrorInfo
	ID   any
	Data any
}

func (e *TransactionError) Error() string {
	return e.Info.Name
}

// PaycomService implements the merchant side of the Paycom JSON-RPC
// protocol over orders and transactions.
type PaycomService struct {
	db     *gorm.DB
	orders *OrderService
}

func NewPaycomService(db *gorm.DB, orders *OrderService) *PaycomService {
	return &PaycomService{db: db, orders: orders}
}

type PaycomAccount struct {
	OrderID string `json:"order_id"`
}

type CheckPerformParams struct {
	Amount  int64         `json:"amount"`
	Account PaycomAccount `json:"account"`
}

type CheckTransactionParams struct {
	ID any `json:"id"`
}

type CreateTransactionParams struct {
	Account PaycomAccount `json:"account"`
	Time    int64         `json:"time"`
	Amount  int64         `json:"amount"`
	ID      string        `json:"id"`
}

type PerformTransactionParams struct {
	ID string `json:"id"`
}

type CancelTransactionParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type CheckTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type PerformTransactionResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type CancelTransactionResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type StatementTransaction struct {
	TransactionID string        `json:"transaction_id"`
	Time          int64         `json:"time"`
	Amount        int64         `json:"amount"`
	Account       PaycomAccount `json:"account"`
	CreateTime    int64         `json:"create_time"`
	PerformTime   int64         `json:"perform_time"`
	CancelTime    int64         `json:"cancel_time"`
	Transaction   string        `json:"transaction"`
	State         int           `json:"state"`
	Reason        *int          `json:"reason"`
}

// CheckPerformTransaction validates that the order exists, is still payable
// and the amount matches. Amounts come in tiyin.
func (s *PaycomService) CheckPerformTransaction(ctx context.Context, params CheckPerformParams, id any) error {
	order, err := s.findOrder(ctx, params.Account.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &TransactionError{Info: PaycomErrorOrderNotFound, ID: id}
		}
		return err
	}

	if order.PaymentStatus == models.PaymentStatusPaid {
		return &TransactionError{Info: PaycomErrorAlreadyDone, ID: id}
	}
	if float64(params.Amount)/100 != order.Total {
		return &TransactionError{Info: PaycomErrorInvalidAmount, ID: id}
	}

	return nil
}

// CheckTransaction returns transaction state by gateway transaction id.
func (s *PaycomService) CheckTransaction(ctx context.Context, params CheckTransactionParams, id any) (*CheckTransactionResult, error) {
	var lookupID string
	switch v := params.ID.(type) {
	case string:
		lookupID = v
	case float64:
		lookupID = strconv.FormatInt(int64(v), 10)
	default:
		return nil, &TransactionError{Info: PaycomErrorTransactionNotFound, ID: id}
	}

	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", lookupID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TransactionError{Info: PaycomErrorTransactionNotFound, ID: id}
		}
		return nil, err
	}

	var reason *int
	if txn.Reason != nil && *txn.Reason != 0 {
		reason = txn.Reason
	}

	return &CheckTransactionResult{
		CreateTime:  txn.CreateTime,
		PerformTime: txn.PerformTime,
		CancelTime:  txn.CancelTime,
		Transaction: txn.TransactionID,
		State:       txn.State,
		Reason:      reason,
	}, nil
}

// CreateTransaction creates a pending transaction for the order, or answers
// idempotently for a repeated create with the same gateway id.
func (s *PaycomService) CreateTransaction(ctx context.Context, params CreateTransactionParams, id any) (*CheckTransactionResult, error) {
	if err := s.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  params.Amount,
		Account: params.Account,
	}, id); err != nil {
		return nil, err
	}

	currentTime := time.Now().UnixMilli()

	var existing models.Transaction
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", params.ID).
		First(&existing).Error
	if err == nil {
		if existing.State != TransactionStatePending {
			return nil, &TransactionError{Info: PaycomErrorCantDoOperation, ID: id}
		}
		if s.expirePending(ctx, &existing, currentTime) {
			return nil, &TransactionError{Info: PaycomErrorCantDoOperation, ID: id}
		}
		return &CheckTransactionResult{
			CreateTime:  existing.CreateTime,
			Transaction: existing.TransactionID,
			State:       TransactionStatePending,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	order, err := s.findOrder(ctx, params.Account.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TransactionError{Info: PaycomErrorOrderNotFound, ID: id}
		}
		return nil, err
	}

	// A second gateway transaction may not race an open one for the same order.
	var pending int64
	if err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("order_id = ? AND state = ?", order.ID, TransactionStatePending).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, &TransactionError{Info: PaycomErrorPending, ID: id}
	}

	txn := models.Transaction{
		TransactionID: params.ID,
		OrderID:       &order.ID,
		CreateTime:    params.Time,
		State:         TransactionStatePending,
		Amount:        float64(params.Amount) / 100,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("state", TransactionStatePending).Error
	})
	if err != nil {
		return nil, err
	}

	return &CheckTransactionResult{
		Transaction: txn.TransactionID,
		State:       TransactionStatePending,
		CreateTime:  txn.CreateTime,
	}, nil
}

// PerformTransaction marks a pending transaction paid and fulfills the
// order in the same database transaction, so a paid transaction without the
// courses granted can never be observed.
func (s *PaycomService) PerformTransaction(ctx context.Context, params PerformTransactionParams, id any) (*PerformTransactionResult, error) {
	currentTime := time.Now().UnixMilli()

	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", params.ID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TransactionError{Info: PaycomErrorTransactionNotFound, ID: id}
		}
		return nil, err
	}

	if txn.State != TransactionStatePending {
		if txn.State != TransactionStatePaid {
			return nil, &TransactionError{Info: PaycomErrorCantDoOperation, ID: id}
		}
		return &PerformTransactionResult{
			PerformTime: txn.PerformTime,
			Transaction: txn.TransactionID,
			State:       TransactionStatePaid,
		}, nil
	}

	if s.expirePending(ctx, &txn, currentTime) {
		return nil, &TransactionError{Info: PaycomErrorCantDoOperation, ID: id}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", txn.ID).
			First(&locked).Error; err != nil {
			return err
		}
		if locked.State != TransactionStatePending {
			return nil
		}

		if err := tx.Model(&models.Transaction{}).
			Where("id = ?", txn.ID).
			Updates(map[string]any{
				"state":        TransactionStatePaid,
				"perform_time": currentTime,
			}).Error; err != nil {
			return err
		}

		var order models.Order
		if err := tx.First(&order, "id = ?", *txn.OrderID).Error; err != nil {
			return err
		}
		return s.orders.Fulfill(tx, &order)
	})
	if err != nil {
		return nil, err
	}

	return &PerformTransactionResult{
		PerformTime: currentTime,
		Transaction: txn.TransactionID,
		State:       TransactionStatePaid,
	}, nil
}

// CancelTransaction cancels a transaction. Canceling a pending one releases
// the order back to payable; canceling a paid one marks it refunded.
func (s *PaycomService) CancelTransaction(ctx context.Context, params CancelTransactionParams, id any) (*CancelTransactionResult, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", params.ID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &TransactionError{Info: PaycomErrorTransactionNotFound, ID: id}
		}
		return nil, err
	}

	currentTime := time.Now().UnixMilli()

	if txn.State > 0 {
		wasPaid := txn.State == TransactionStatePaid
		newState := -txn.State
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Transaction{}).
				Where("id = ?", txn.ID).
				Updates(map[string]any{
					"state":       newState,
					"reason":      params.Reason,
					"cancel_time": currentTime,
				}).Error; err != nil {
				return err
			}
			if txn.OrderID == nil {
				return nil
			}
			status := models.PaymentStatusCancelled
			if wasPaid {
				status = models.PaymentStatusRefunded
			}
			return tx.Model(&models.Order{}).Where("id = ?", *txn.OrderID).
				Updates(map[string]any{
					"payment_status": status,
					"state":          newState,
					"is_active":      false,
				}).Error
		})
		if err != nil {
			return nil, err
		}
		txn.State = newState
		txn.CancelTime = currentTime
	}

	cancelTime := txn.CancelTime
	if cancelTime == 0 {
		cancelTime = currentTime
	}

	return &CancelTransactionResult{
		CancelTime:  cancelTime,
		Transaction: txn.TransactionID,
		State:       -intAbs(txn.State),
	}, nil
}

// GetStatement returns transactions created in the given time range.
func (s *PaycomService) GetStatement(ctx context.Context, params StatementParams) ([]StatementTransaction, error) {
	var txns []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("create_time >= ? AND create_time <= ?", params.From, params.To).
		Find(&txns).Error; err != nil {
		return nil, err
	}

	result := make([]StatementTransaction, 0, len(txns))
	for _, t := range txns {
		account := PaycomAccount{}
		if t.OrderID != nil {
			var order models.Order
			if err := s.db.WithContext(ctx).First(&order, "id = ?", *t.OrderID).Error; err == nil {
				account.OrderID = order.PublicID
			}
		}
		result = append(result, StatementTransaction{
			TransactionID: t.TransactionID,
			Time:          t.CreateTime,
			Amount:        int64(t.Amount * 100),
			Account:       account,
			CreateTime:    t.CreateTime,
			PerformTime:   t.PerformTime,
			CancelTime:    t.CancelTime,
			Transaction:   t.TransactionID,
			State:         t.State,
			Reason:        t.Reason,
		})
	}

	return result, nil
}

// expirePending cancels a pending transaction whose create time is older
// than the timeout window and reports whether it did.
func (s *PaycomService) expirePending(ctx context.Context, txn *models.Transaction, now int64) bool {
	if now-txn.CreateTime < transactionTimeout.Milliseconds() {
		return false
	}
	updates := map[string]any{
		"state":       TransactionStatePendingCanceled,
		"reason":      cancelReasonTimeout,
		"cancel_time": now,
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Updates(updates).Error; err != nil {
		return false
	}
	if txn.OrderID != nil {
		_ = s.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ? AND payment_status = ?", *txn.OrderID, models.PaymentStatusCreated).
			Update("state", TransactionStatePendingCanceled).Error
	}
	return true
}

func (s *PaycomService) findOrder(ctx context.Context, publicID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Where("public_id = ?", publicID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func intAbs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
