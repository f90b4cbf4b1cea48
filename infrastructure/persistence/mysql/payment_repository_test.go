package mysql

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"paytx/domain/payment"
	"paytx/domain/shared"
	"paytx/infrastructure/persistence/mysql/po"
	"paytx/infrastructure/persistence/retry"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "paytx.db")), GormConfig("silent"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newRepo(t *testing.T) *PaymentRepository {
	return NewPaymentRepository(openTestDB(t), "test", retry.DefaultConfig)
}

func acceptOrder(t *testing.T, uniqueNo string) *payment.Order {
	t.Helper()
	sub, err := payment.NewSubOrder("alipay", "6222000011112222", "Alice", "salary", "http://hr.local/notify")
	require.NoError(t, err)
	o, err := payment.Accept(payment.AcceptParams{
		OrderNo:     payment.NewOrderNo(),
		SourceCode:  "HR",
		BizIdentify: "SALARY",
		BizUniqueNo: uniqueNo,
		Amount:      shared.NewMoney(decimal.RequireFromString("99.90"), "CNY"),
		Direction:   payment.DirectionDebit,
		Env:         "test",
		SubOrder:    sub,
	}, t0)
	require.NoError(t, err)
	return o
}

func TestInsertAndFind(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	o := acceptOrder(t, "A-1")

	require.NoError(t, repo.Insert(ctx, o))
	assert.False(t, o.IsNew())

	got, err := repo.FindByBizKey(ctx, "SALARY", "A-1")
	require.NoError(t, err)
	assert.Equal(t, o.OrderNo(), got.OrderNo())
	assert.Equal(t, payment.StatusInit, got.Status())
	assert.Equal(t, 1, got.Version())
	assert.True(t, got.Amount().Equals(o.Amount()))
	assert.False(t, got.IsLite())
	assert.Equal(t, "alipay", got.SubOrder().ChannelCode())
	assert.Equal(t, o.Payment().ID(), got.Payment().ID())
	assert.True(t, got.Payment().IsPersisted())

	_, err = repo.FindByBizKey(ctx, "SALARY", "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInsertDuplicateBizKey(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, acceptOrder(t, "A-1")))

	err := repo.Insert(ctx, acceptOrder(t, "A-1"))
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestUpdateIsVersionConditioned(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, acceptOrder(t, "A-1")))

	first, err := repo.FindByBizKey(ctx, "SALARY", "A-1")
	require.NoError(t, err)
	stale, err := repo.FindByBizKey(ctx, "SALARY", "A-1")
	require.NoError(t, err)

	require.NoError(t, first.BeginPayment(`{"n":1}`, t0.Add(time.Second)))
	require.NoError(t, repo.Update(ctx, first))

	require.NoError(t, stale.BeginPayment(`{"n":2}`, t0.Add(2*time.Second)))
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	got, err := repo.FindByBizKey(ctx, "SALARY", "A-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, got.Status())
	assert.Equal(t, 2, got.Version())
	assert.Equal(t, 1, got.Payment().RetryCount())
	assert.Equal(t, `{"n":1}`, got.Payment().RequestPayload())
}

func TestUpdateWithoutVersionChange(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	o := acceptOrder(t, "A-1")
	require.NoError(t, repo.Insert(ctx, o))
	require.NoError(t, o.BeginPayment("", t0))
	require.NoError(t, repo.Update(ctx, o))

	require.NoError(t, o.RecordPaymentError("CHANNEL_ERROR", "timeout", t0.Add(time.Minute), t0))
	require.NoError(t, repo.Update(ctx, o))

	got, err := repo.FindByBizKey(ctx, "SALARY", "A-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version())
	assert.Equal(t, "CHANNEL_ERROR", got.ErrorCode())
	assert.True(t, got.Payment().NextExecuteAt().Equal(t0.Add(time.Minute)))
}

func TestNotificationsPersistedAndUnique(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	o := acceptOrder(t, "A-1")
	require.NoError(t, repo.Insert(ctx, o))

	require.NoError(t, o.CompletePayment(payment.ChannelOutcome{Success: true, TraceID: "T1"}, t0))
	_, err := o.AddNotification(payment.RequestNotify, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, o))

	got, err := repo.FindByBizKey(ctx, "SALARY", "A-1")
	require.NoError(t, err)
	require.Len(t, got.Notifications(), 1)
	assert.Equal(t, payment.RequestNotify, got.Notifications()[0].Type())
	assert.Equal(t, payment.RequestSucceeded, got.Payment().Status())

	// a second NOTIFY row for the same order violates the unique index
	dup := po.FromChannelRequest(got.Notifications()[0])
	dup.ID = "0000-duplicate"
	assert.Error(t, repo.db.Create(&dup).Error)
}

func TestFindByOrderNos(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	a, b := acceptOrder(t, "A-1"), acceptOrder(t, "A-2")
	require.NoError(t, repo.Insert(ctx, a))
	require.NoError(t, repo.Insert(ctx, b))

	got, err := repo.FindByOrderNos(ctx, []string{a.OrderNo(), "nope", b.OrderNo()})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, o := range got {
		assert.False(t, o.IsLite())
	}

	got, err = repo.FindByOrderNos(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBacklogKeysetPaging(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	var ids []string
	for _, no := range []string{"B-1", "B-2", "B-3"} {
		o := acceptOrder(t, no)
		require.NoError(t, repo.Insert(ctx, o))
		ids = append(ids, o.Payment().ID())
	}
	// terminal orders leave the unpaid backlog
	done := acceptOrder(t, "B-4")
	require.NoError(t, done.CompletePayment(payment.ChannelOutcome{Success: true, TraceID: "T"}, t0))
	_, err := done.AddNotification(payment.RequestNotify, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, done))
	// deferred requests are not due yet
	later := acceptOrder(t, "B-5")
	require.NoError(t, repo.Insert(ctx, later))
	require.NoError(t, later.BeginPayment("", t0))
	require.NoError(t, later.RecordPaymentError("X", "x", t0.Add(time.Hour), t0))
	require.NoError(t, repo.Update(ctx, later))

	now := t0.Add(time.Minute)
	n, err := repo.CountUnpaid(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	page, err := repo.FindUnpaid(ctx, now, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "SALARY", page[0].BizIdentify)
	assert.Less(t, page[0].ID, page[1].ID)

	rest, err := repo.FindUnpaid(ctx, now, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	seen := []string{page[0].ID, page[1].ID, rest[0].ID}
	assert.ElementsMatch(t, ids, seen)

	n, err = repo.CountUnsent(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	unsent, err := repo.FindUnsent(ctx, now, "", 10)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, "B-4", unsent[0].BizUniqueNo)

	other := NewPaymentRepository(repo.db, "prod", retry.DefaultConfig)
	n, err = other.CountUnpaid(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
