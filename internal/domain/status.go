package domain

// RunStatus: итог одного запуска задачи через Runner.
//
//	SKIPPED   блокировка занята (или хранилище недоступно при acquire), тело не запускалось
//	SUCCEEDED тело завершилось без ошибки
//	FAILED    тело вернуло ошибку или паниковало
type RunStatus string

const (
	// RunStatusSkipped: запуск пропущен, это штатный исход.
	RunStatusSkipped RunStatus = "SKIPPED"

	// RunStatusSucceeded: тело задачи выполнено успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed: тело задачи завершилось с ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// String возвращает строковое представление RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// Executed возвращает true, если тело задачи запускалось.
func (s RunStatus) Executed() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// RunState: состояние запуска внутри Runner.
//
// Жизненный цикл:
//
//	IDLE → LOCK_REQUESTED → SKIPPED
//	                      ↘ RUNNING → COMPLETED → RELEASED
//	                                ↘ ERRORED   ↗
type RunState string

const (
	RunStateIdle          RunState = "IDLE"
	RunStateLockRequested RunState = "LOCK_REQUESTED"
	RunStateSkipped       RunState = "SKIPPED"
	RunStateRunning       RunState = "RUNNING"
	RunStateCompleted     RunState = "COMPLETED"
	RunStateErrored       RunState = "ERRORED"
	RunStateReleased      RunState = "RELEASED"
)

// runTransitions: допустимые переходы между состояниями.
var runTransitions = map[RunState][]RunState{
	RunStateIdle:          {RunStateLockRequested},
	RunStateLockRequested: {RunStateSkipped, RunStateRunning},
	RunStateRunning:       {RunStateCompleted, RunStateErrored},
	RunStateCompleted:     {RunStateReleased},
	RunStateErrored:       {RunStateReleased},
}

// CanTransition проверяет, допустим ли переход from → to.
func (s RunState) CanTransition(to RunState) bool {
	for _, next := range runTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для финальных состояний.
func (s RunState) IsTerminal() bool {
	return s == RunStateSkipped || s == RunStateReleased
}
