package payment

// Status 支付单状态
type Status string

const (
	StatusNone    Status = ""        // 尚未受理
	StatusInit    Status = "INIT"    // 已受理
	StatusPending Status = "PENDING" // 渠道处理中
	StatusSuccess Status = "SUCCESS" // 支付成功
	StatusFailed  Status = "FAILED"  // 支付失败
	StatusClosed  Status = "CLOSED"  // 已关闭（人工关闭）
	StatusBounced Status = "BOUNCED" // 退票
)

// transitions 合法状态迁移表，未列出的组合一律非法
var transitions = map[Status]map[Status]bool{
	StatusNone:    {StatusInit: true},
	StatusInit:    {StatusPending: true, StatusSuccess: true, StatusFailed: true, StatusClosed: true, StatusBounced: true},
	StatusPending: {StatusSuccess: true, StatusFailed: true, StatusClosed: true, StatusBounced: true},
	StatusSuccess: {StatusBounced: true},
	StatusFailed:  {StatusBounced: true},
	StatusClosed:  {StatusBounced: true},
	StatusBounced: {},
}

// AllStatuses 所有可落库的状态
var AllStatuses = []Status{StatusInit, StatusPending, StatusSuccess, StatusFailed, StatusClosed, StatusBounced}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// IsTerminal 终态：不再发起支付
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusClosed, StatusBounced:
		return true
	}
	return false
}

func (s Status) String() string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}

// Direction 记账方向
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}
