package mysql

import (
	"context"
	"errors"
	"time"

	"paytx/domain/payment"
	"paytx/domain/shared"
	"paytx/infrastructure/persistence"
	"paytx/infrastructure/persistence/mysql/po"
	"paytx/infrastructure/persistence/retry"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const entityPaymentOrder = "payment_order"

// PaymentRepository MySQL/GORM implementation of payment.Repository and payment.Backlog
// GORM usage specification: Association features are prohibited to maintain DDD aggregate boundaries
type PaymentRepository struct {
	db  *gorm.DB
	uow *UnitOfWork
	env string
}

// NewPaymentRepository Create payment repository. Backlog queries only see
// orders written under env.
func NewPaymentRepository(db *gorm.DB, env string, retryConfig retry.Config) *PaymentRepository {
	return &PaymentRepository{db: db, uow: NewUnitOfWork(db, retryConfig), env: env}
}

// getDB returns the transaction from context if available, otherwise the default db
func (r *PaymentRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := persistence.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

// NextOrderNo Generate new order number
func (r *PaymentRepository) NextOrderNo(ctx context.Context) (string, error) {
	return payment.NewOrderNo(), nil
}

// Insert Save a newly accepted order with its sub-order and requests
func (r *PaymentRepository) Insert(ctx context.Context, o *payment.Order) error {
	orderPO, subPO := po.FromPaymentDomain(o)

	err := r.uow.Execute(ctx, func(ctx context.Context) error {
		db := r.getDB(ctx)
		if err := db.Create(orderPO).Error; err != nil {
			return err
		}
		if subPO != nil {
			if err := db.Create(subPO).Error; err != nil {
				return err
			}
		}
		return r.saveRequests(db, o)
	})
	if err != nil {
		if isDuplicateKey(err) {
			return shared.NewDuplicateError(entityPaymentOrder, o.BizKey())
		}
		return err
	}
	o.MarkPersisted()
	return nil
}

// Update Version-conditioned update of the order header, then its requests.
// Zero affected rows means another writer got there first.
func (r *PaymentRepository) Update(ctx context.Context, o *payment.Order) error {
	orderPO, _ := po.FromPaymentDomain(o)

	err := r.uow.Execute(ctx, func(ctx context.Context) error {
		db := r.getDB(ctx)
		result := db.Model(&po.PaymentOrderPO{}).
			Where("order_no = ? AND version = ?", o.OrderNo(), o.PersistedVersion()).
			Updates(orderPO.OrderColumns())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewConcurrencyConflictError(entityPaymentOrder, o.OrderNo(), o.PersistedVersion())
		}
		return r.saveRequests(db, o)
	})
	if err != nil {
		return err
	}
	o.MarkPersisted()
	return nil
}

// saveRequests inserts requests created since the last save and rewrites the others
func (r *PaymentRepository) saveRequests(db *gorm.DB, o *payment.Order) error {
	requests := o.Notifications()
	if p := o.Payment(); p != nil {
		requests = append([]*payment.ChannelRequest{p}, requests...)
	}
	for _, req := range requests {
		row := po.FromChannelRequest(req)
		if !req.IsPersisted() {
			if err := db.Create(&row).Error; err != nil {
				return err
			}
			continue
		}
		if err := db.Model(&po.ChannelRequestPO{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"status":           row.Status,
			"retry_count":      row.RetryCount,
			"next_execute_at":  row.NextExecuteAt,
			"last_execute_at":  row.LastExecuteAt,
			"request_payload":  row.RequestPayload,
			"response_payload": row.ResponsePayload,
			"callback_payload": row.CallbackPayload,
			"close_reason":     row.CloseReason,
			"error_code":       row.ErrorCode,
			"error_message":    row.ErrorMessage,
			"updated_at":       row.UpdatedAt,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// FindByBizKey Load the complete order for an idempotency key
func (r *PaymentRepository) FindByBizKey(ctx context.Context, bizIdentify, bizUniqueNo string) (*payment.Order, error) {
	db := r.getDB(ctx)
	var orderPO po.PaymentOrderPO

	result := db.First(&orderPO, "biz_identify = ? AND biz_unique_no = ?", bizIdentify, bizUniqueNo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, payment.NewOrderNotFoundError(payment.BizKey(bizIdentify, bizUniqueNo))
		}
		return nil, result.Error
	}

	orders, err := r.assemble(db, []po.PaymentOrderPO{orderPO})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

// FindByOrderNos Batch load; unknown order numbers are skipped
func (r *PaymentRepository) FindByOrderNos(ctx context.Context, orderNos []string) ([]*payment.Order, error) {
	if len(orderNos) == 0 {
		return nil, nil
	}
	db := r.getDB(ctx)
	var orderPOs []po.PaymentOrderPO
	if err := db.Where("order_no IN ?", orderNos).Order("order_no").Find(&orderPOs).Error; err != nil {
		return nil, err
	}
	return r.assemble(db, orderPOs)
}

// assemble manually queries children (no Preload, to keep aggregate boundaries clear)
func (r *PaymentRepository) assemble(db *gorm.DB, orderPOs []po.PaymentOrderPO) ([]*payment.Order, error) {
	if len(orderPOs) == 0 {
		return nil, nil
	}
	nos := make([]string, len(orderPOs))
	for i := range orderPOs {
		nos[i] = orderPOs[i].OrderNo
	}

	var subPOs []po.SubOrderPO
	if err := db.Where("order_no IN ?", nos).Find(&subPOs).Error; err != nil {
		return nil, err
	}
	var requestPOs []po.ChannelRequestPO
	if err := db.Where("order_no IN ?", nos).Order("id").Find(&requestPOs).Error; err != nil {
		return nil, err
	}

	subs := make(map[string]*po.SubOrderPO, len(subPOs))
	for i := range subPOs {
		subs[subPOs[i].OrderNo] = &subPOs[i]
	}
	requests := make(map[string][]po.ChannelRequestPO, len(orderPOs))
	for _, req := range requestPOs {
		requests[req.OrderNo] = append(requests[req.OrderNo], req)
	}

	orders := make([]*payment.Order, len(orderPOs))
	for i := range orderPOs {
		no := orderPOs[i].OrderNo
		orders[i] = orderPOs[i].ToDomain(subs[no], requests[no])
	}
	return orders, nil
}

// ============================================================================
// Backlog
// ============================================================================

var (
	openRequestStatuses = []string{string(payment.RequestInit), string(payment.RequestProcessing)}
	unpaidOrderStatuses = []string{string(payment.StatusInit), string(payment.StatusPending)}
	paymentTypes        = []string{string(payment.RequestPayment)}
	notifyTypes         = []string{string(payment.RequestNotify), string(payment.RequestBounceNotify)}
)

func (r *PaymentRepository) backlogQuery(ctx context.Context, now time.Time, types []string, orderStatuses []string) *gorm.DB {
	q := r.getDB(ctx).
		Table("payment_channel_requests AS r").
		Joins("JOIN payment_orders AS o ON o.order_no = r.order_no").
		Where("r.request_type IN ? AND r.status IN ? AND r.next_execute_at <= ? AND o.env = ?",
			types, openRequestStatuses, now, r.env)
	if len(orderStatuses) > 0 {
		q = q.Where("o.status IN ?", orderStatuses)
	}
	return q
}

func (r *PaymentRepository) count(ctx context.Context, now time.Time, types, orderStatuses []string) (int64, error) {
	var n int64
	err := r.backlogQuery(ctx, now, types, orderStatuses).Count(&n).Error
	return n, err
}

func (r *PaymentRepository) page(ctx context.Context, now time.Time, types, orderStatuses []string, afterID string, limit int) ([]payment.BacklogEntry, error) {
	var rows []payment.BacklogEntry
	err := r.backlogQuery(ctx, now, types, orderStatuses).
		Select("r.id AS id, r.order_no AS order_no, o.biz_identify AS biz_identify, o.biz_unique_no AS biz_unique_no").
		Where("r.id > ?", afterID).
		Order("r.id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *PaymentRepository) CountUnpaid(ctx context.Context, now time.Time) (int64, error) {
	return r.count(ctx, now, paymentTypes, unpaidOrderStatuses)
}

func (r *PaymentRepository) FindUnpaid(ctx context.Context, now time.Time, afterID string, limit int) ([]payment.BacklogEntry, error) {
	return r.page(ctx, now, paymentTypes, unpaidOrderStatuses, afterID, limit)
}

func (r *PaymentRepository) CountUnsent(ctx context.Context, now time.Time) (int64, error) {
	return r.count(ctx, now, notifyTypes, nil)
}

func (r *PaymentRepository) FindUnsent(ctx context.Context, now time.Time, afterID string, limit int) ([]payment.BacklogEntry, error) {
	return r.page(ctx, now, notifyTypes, nil, afterID, limit)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// Compile-time interface implementation check
var (
	_ payment.Repository = (*PaymentRepository)(nil)
	_ payment.Backlog    = (*PaymentRepository)(nil)
)
