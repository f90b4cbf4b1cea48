/*
Package payment 支付应用层 - 把受理、支付、通知、回调四个命令编排为
txn.Handler 流水线。

每个命令以业务幂等键 bizIdentify:bizUniqueNo 加租约锁串行执行；Probe 判断
命令效果是否已生效（处理器级幂等），活动各自的 Satisfied 判断是否可跳过
（活动级幂等）。渠道传输失败被记录为可重试状态，模型返回 Success=false，
由批处理按退避时间重新驱动。
*/
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paytx/application/txn"
	"paytx/domain/channel"
	"paytx/domain/payment"
	"paytx/domain/shared"
	"paytx/infrastructure/lock"
	"paytx/pkg/logger"
)

// Deps 应用服务依赖
type Deps struct {
	Repo             payment.Repository
	Locks            *lock.Service
	Channels         *channel.Registry
	LeaseTTL         time.Duration
	MaxPayRetries    int
	MaxNotifyRetries int
	// Backoff 返回第 attempt 次失败后的等待时间
	Backoff func(attempt int) time.Duration
	Env     string
	Now     func() time.Time
}

// Service 支付应用服务
type Service struct {
	repo     payment.Repository
	accept   *txn.Handler[AcceptCommand]
	pay      *txn.Handler[PayCommand]
	notify   *txn.Handler[NotifyCommand]
	callback *txn.Handler[CallbackCommand]
}

// NewService 组装四条命令流水线
func NewService(d Deps) (*Service, error) {
	if d.Repo == nil || d.Channels == nil {
		return nil, errors.New("payment service: repository and channel registry are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Backoff == nil {
		d.Backoff = func(int) time.Duration { return time.Minute }
	}
	log := logger.Named("payment")

	pay := &payer{repo: d.Repo, channels: d.Channels, maxRetries: d.MaxPayRetries, backoff: d.Backoff, now: d.Now, log: log}
	notifyOnPay := &notifier[PayCommand]{repo: d.Repo, channels: d.Channels, maxRetries: d.MaxNotifyRetries, backoff: d.Backoff, now: d.Now, log: log}
	notifyOnCallback := &notifier[CallbackCommand]{repo: d.Repo, channels: d.Channels, maxRetries: d.MaxNotifyRetries, backoff: d.Backoff, now: d.Now, log: log}
	notify := &notifier[NotifyCommand]{repo: d.Repo, channels: d.Channels, maxRetries: d.MaxNotifyRetries, backoff: d.Backoff, now: d.Now, log: log}

	s := &Service{repo: d.Repo}
	var err error

	s.accept, err = txn.NewHandler(txn.HandlerConfig[AcceptCommand]{
		Name:     "accept",
		Locks:    d.Locks,
		LeaseTTL: d.LeaseTTL,
		Key:      acceptKey,
		Probe: func(ctx context.Context, tc *txn.Context[AcceptCommand]) (bool, error) {
			return load(ctx, d.Repo, tc, acceptKey, true)
		},
		Activities: []txn.Activity[AcceptCommand]{
			&idGeneration{repo: d.Repo},
			&accept{repo: d.Repo, env: d.Env, now: d.Now},
		},
	})
	if err != nil {
		return nil, err
	}

	s.pay, err = txn.NewHandler(txn.HandlerConfig[PayCommand]{
		Name:     "pay",
		Locks:    d.Locks,
		LeaseTTL: d.LeaseTTL,
		Key:      payKey,
		Probe: func(ctx context.Context, tc *txn.Context[PayCommand]) (bool, error) {
			if _, err := load(ctx, d.Repo, tc, payKey, false); err != nil {
				return false, err
			}
			o := tc.Order()
			if o.PaymentParked() {
				tc.MarkRetryable()
				return true, nil
			}
			return o.IsTerminal() && nextNotification(o) == nil, nil
		},
		Activities: []txn.Activity[PayCommand]{pay, notifyOnPay},
	})
	if err != nil {
		return nil, err
	}

	s.notify, err = txn.NewHandler(txn.HandlerConfig[NotifyCommand]{
		Name:     "notify",
		Locks:    d.Locks,
		LeaseTTL: d.LeaseTTL,
		Key:      notifyKey,
		Probe: func(ctx context.Context, tc *txn.Context[NotifyCommand]) (bool, error) {
			if _, err := load(ctx, d.Repo, tc, notifyKey, false); err != nil {
				return false, err
			}
			return nextNotification(tc.Order()) == nil, nil
		},
		Activities: []txn.Activity[NotifyCommand]{notify},
	})
	if err != nil {
		return nil, err
	}

	s.callback, err = txn.NewHandler(txn.HandlerConfig[CallbackCommand]{
		Name:     "callback",
		Locks:    d.Locks,
		LeaseTTL: d.LeaseTTL,
		Key:      callbackKey,
		Probe: func(ctx context.Context, tc *txn.Context[CallbackCommand]) (bool, error) {
			if _, err := load(ctx, d.Repo, tc, callbackKey, false); err != nil {
				return false, err
			}
			target, ok := tc.Request().Outcome.Target()
			return ok && tc.Order().Status() == target, nil
		},
		After: func(ctx context.Context, tc *txn.Context[CallbackCommand]) error {
			if o := tc.Order(); o != nil {
				log.Info("channel callback applied",
					zap.String("order_no", o.OrderNo()),
					zap.String("outcome", string(tc.Request().Outcome)),
					zap.String("status", o.Status().String()),
				)
			}
			return nil
		},
		Activities: []txn.Activity[CallbackCommand]{
			&callback{repo: d.Repo, now: d.Now},
			notifyOnCallback,
		},
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// load 按幂等键加载支付单到上下文。optional 为真时不存在不算错误，返回是否找到。
func load[C any](ctx context.Context, repo payment.Repository, tc *txn.Context[C], key txn.KeyFunc[C], optional bool) (bool, error) {
	bizIdentify, bizUniqueNo := key(tc.Request())
	o, err := repo.FindByBizKey(ctx, bizIdentify, bizUniqueNo)
	if err != nil {
		if optional && errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	tc.SetOrder(o)
	return true, nil
}

// Accept 受理；重复提交同一业务键返回已存在的支付单，Idempotent=true
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*txn.Model, error) {
	return s.accept.Execute(ctx, cmd)
}

// Pay 发起支付；传输失败时 Success=false，等待批处理重试
func (s *Service) Pay(ctx context.Context, cmd PayCommand) (*txn.Model, error) {
	return s.pay.Execute(ctx, cmd)
}

// Notify 推送待发送的通知
func (s *Service) Notify(ctx context.Context, cmd NotifyCommand) (*txn.Model, error) {
	return s.notify.Execute(ctx, cmd)
}

// Callback 应用渠道回调结果
func (s *Service) Callback(ctx context.Context, cmd CallbackCommand) (*txn.Model, error) {
	return s.callback.Execute(ctx, cmd)
}

// Get 查询支付单（不加锁）
func (s *Service) Get(ctx context.Context, bizIdentify, bizUniqueNo string) (*payment.Order, error) {
	bizIdentify, bizUniqueNo = bizKey(bizIdentify, bizUniqueNo)
	o, err := s.repo.FindByBizKey(ctx, bizIdentify, bizUniqueNo)
	if err != nil {
		return nil, fmt.Errorf("get payment order: %w", err)
	}
	return o, nil
}

// ToResult 命令结果 -> 视图
func ToResult(m *txn.Model) *ResultResponse {
	if m == nil {
		return nil
	}
	return &ResultResponse{Success: m.Success, Idempotent: m.Idempotent, Order: ToOrderResponse(m.Order)}
}
