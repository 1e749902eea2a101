package domain

// State 定义了一次编排的生命周期状态
type State string

const (
	StateInit                State = "INIT"
	StateValidating          State = "VALIDATING"
	StateRejected            State = "REJECTED"             // 校验未通过，没有任何预占，终态
	StateReservingICUBeds    State = "RESERVING_ICU_BEDS"   // 正在预占 ICU 床位
	StateReservingAmbulances State = "RESERVING_AMBULANCES" // 床位已预占，正在预占救护车
	StateCommitted           State = "COMMITTED"            // 两类资源都已预占，终态
	StateCompensating        State = "COMPENSATING"         // 正在按逆序归还已预占的资源
	StateFailed              State = "FAILED"               // 补偿已全部尝试，终态
)

var transitions = map[State][]State{
	StateInit:                {StateValidating},
	StateValidating:          {StateRejected, StateReservingICUBeds},
	StateReservingICUBeds:    {StateReservingAmbulances, StateCompensating},
	StateReservingAmbulances: {StateCommitted, StateCompensating},
	StateCompensating:        {StateFailed},
}

// CanTransition 判断 from -> to 是否合法
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 终态之后不允许任何迁移
func (s State) IsTerminal() bool {
	return s == StateRejected || s == StateCommitted || s == StateFailed
}
