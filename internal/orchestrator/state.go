package orchestrator

import (
	"fmt"

	"github.com/superfm831010/SQLBothp/internal/types"
)

// State 问答记录所处阶段
type State string

const (
	StateInit      State = "INIT"
	StateSQLGen    State = "SQL_GEN"
	StateSQLExec   State = "SQL_EXEC"
	StateChartGen  State = "CHART_GEN"
	StateAnalysis  State = "ANALYSIS"
	StatePredict   State = "PREDICT"
	StateRecommend State = "RECOMMEND"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// transitions 允许的流转，FAILED 可由任意非终态进入
var transitions = map[State][]State{
	StateInit:      {StateSQLGen, StateAnalysis, StatePredict, StateRecommend},
	StateSQLGen:    {StateSQLExec},
	StateSQLExec:   {StateChartGen},
	StateChartGen:  {StateDone, StateAnalysis, StatePredict, StateRecommend},
	StateAnalysis:  {StateDone},
	StatePredict:   {StateDone},
	StateRecommend: {StateDone},
}

// Terminal 是否终态
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransit 是否允许从 from 流转到 to
func CanTransit(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine 单条记录的状态
type machine struct {
	state State
}

func newMachine() *machine {
	return &machine{state: StateInit}
}

func (m *machine) advance(to State) error {
	if !CanTransit(m.state, to) {
		return types.NewAppErrorWithDetails(types.ErrCodeIllegalTransition, "非法的阶段流转",
			fmt.Sprintf("%s -> %s", m.state, to))
	}
	m.state = to
	return nil
}

func (m *machine) fail() {
	if !m.state.Terminal() {
		m.state = StateFailed
	}
}
