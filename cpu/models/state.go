package models

import "sync/atomic"

// BootContextID identifica al contexto de arranque, antes de que exista una
// tarea en ejecución.
const BootContextID int64 = -1

// State es el estado de la única CPU lógica simulada: el flag global de
// habilitación de interrupciones, la tabla raíz cargada (CR3), la dirección
// que provocó el último page fault (CR2), el contador monótono de ticks y la
// identidad del contexto en ejecución.
//
// Implementa la compuerta de interrupciones que usa el spinlock: adquirir un
// lock deshabilita interrupciones y la liberación restaura el estado previo.
type State struct {
	interruptsEnabled atomic.Bool
	rootTable         atomic.Uint64
	faultAddress      atomic.Uint64
	ticks             atomic.Uint64
	currentContext    atomic.Int64
}

// NewState crea la CPU con interrupciones deshabilitadas, en contexto de boot.
func NewState() *State {
	s := &State{}
	s.currentContext.Store(BootContextID)
	return s
}

// DisableInterrupts deshabilita las interrupciones y devuelve el estado previo.
func (s *State) DisableInterrupts() bool {
	return s.interruptsEnabled.Swap(false)
}

// RestoreInterrupts restaura el estado de habilitación previo.
func (s *State) RestoreInterrupts(prior bool) {
	s.interruptsEnabled.Store(prior)
}

// EnableInterrupts habilita la compuerta global.
func (s *State) EnableInterrupts() {
	s.interruptsEnabled.Store(true)
}

// InterruptsEnabled indica si la compuerta global está habilitada.
func (s *State) InterruptsEnabled() bool {
	return s.interruptsEnabled.Load()
}

// ContextID identifica al contexto de ejecución actual (PID de la tarea en
// ejecución, o BootContextID durante el arranque).
func (s *State) ContextID() int64 {
	return s.currentContext.Load()
}

// SetContextID registra el contexto de ejecución actual. Lo actualiza el
// scheduler en cada cambio de tarea.
func (s *State) SetContextID(id int64) {
	s.currentContext.Store(id)
}

// SetRootTable carga la dirección física de la tabla raíz (CR3).
func (s *State) SetRootTable(phys uint64) {
	s.rootTable.Store(phys)
}

// RootTable devuelve la tabla raíz cargada.
func (s *State) RootTable() uint64 {
	return s.rootTable.Load()
}

// SetFaultAddress registra la dirección que provocó el último page fault (CR2).
func (s *State) SetFaultAddress(addr uint64) {
	s.faultAddress.Store(addr)
}

// FaultAddress devuelve la dirección del último page fault.
func (s *State) FaultAddress() uint64 {
	return s.faultAddress.Load()
}

// AdvanceTick incrementa el contador monótono de ticks y devuelve el valor
// nuevo. Solo lo llama el handler del timer.
func (s *State) AdvanceTick() uint64 {
	return s.ticks.Add(1)
}

// Ticks devuelve el contador monótono de ticks.
func (s *State) Ticks() uint64 {
	return s.ticks.Load()
}
