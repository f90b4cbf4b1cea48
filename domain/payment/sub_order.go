package payment

import "strings"

// SubOrder 子单 - 渠道侧执行所需信息，受理后不可变
type SubOrder struct {
	channelCode  string
	payeeAccount string
	payeeName    string
	remark       string
	notifyURL    string
}

// NewSubOrder 渠道编码与收款账号必填
func NewSubOrder(channelCode, payeeAccount, payeeName, remark, notifyURL string) (*SubOrder, error) {
	s := &SubOrder{
		channelCode:  strings.TrimSpace(channelCode),
		payeeAccount: strings.TrimSpace(payeeAccount),
		payeeName:    strings.TrimSpace(payeeName),
		remark:       remark,
		notifyURL:    strings.TrimSpace(notifyURL),
	}
	if s.channelCode == "" {
		return nil, newValidationError("channel_code", "channel code is required")
	}
	if s.payeeAccount == "" {
		return nil, newValidationError("payee_account", "payee account is required")
	}
	return s, nil
}

func (s *SubOrder) ChannelCode() string { return s.channelCode }
func (s *SubOrder) PayeeAccount() string { return s.payeeAccount }
func (s *SubOrder) PayeeName() string { return s.payeeName }
func (s *SubOrder) Remark() string { return s.remark }
func (s *SubOrder) NotifyURL() string { return s.notifyURL }

// SubOrderDTO 仓储层重建用
type SubOrderDTO struct {
	ChannelCode  string
	PayeeAccount string
	PayeeName    string
	Remark       string
	NotifyURL    string
}

func (s *SubOrder) snapshot() *SubOrderDTO {
	return &SubOrderDTO{
		ChannelCode:  s.channelCode,
		PayeeAccount: s.payeeAccount,
		PayeeName:    s.payeeName,
		Remark:       s.remark,
		NotifyURL:    s.notifyURL,
	}
}

func rebuildSubOrder(dto *SubOrderDTO) *SubOrder {
	if dto == nil {
		return nil
	}
	return &SubOrder{
		channelCode:  dto.ChannelCode,
		payeeAccount: dto.PayeeAccount,
		payeeName:    dto.PayeeName,
		remark:       dto.Remark,
		notifyURL:    dto.NotifyURL,
	}
}
