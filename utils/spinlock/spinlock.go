// Package spinlock implementa la primitiva de exclusión mutua del kernel.
//
// Adquirir el lock deshabilita las interrupciones de la CPU y las restaura al
// liberarlo: así un handler nunca puede re-entrar a un lock que ya sostiene el
// código que interrumpió. La liberación se garantiza vía Guard, pensado para
// usarse con defer en todos los caminos de salida.
package spinlock

import (
	"runtime"
	"sync/atomic"

	"github.com/sisoputnfrba/kernel-core/utils/fatal"
)

// IntGate abstrae la compuerta de interrupciones de la CPU y la identidad del
// contexto de ejecución actual. La implementa el estado de CPU simulado; un
// gate nil (durante el arranque, antes de instalar interrupciones) deja el
// lock como spin puro.
type IntGate interface {
	// DisableInterrupts deshabilita las interrupciones y devuelve el estado previo.
	DisableInterrupts() bool
	// RestoreInterrupts restaura el estado de habilitación previo.
	RestoreInterrupts(prior bool)
	// ContextID identifica al contexto de ejecución actual (tarea o boot).
	ContextID() int64
}

const bootContextID int64 = -1

// SpinLock es el lock por espera activa. Se embebe en cada estructura
// compartida que protege y nunca la sobrevive.
type SpinLock struct {
	name   string
	state  atomic.Int32
	holder atomic.Int64
	gate   IntGate
}

// New crea un lock con nombre (para diagnóstico) y la compuerta de
// interrupciones que debe operar.
func New(name string, gate IntGate) *SpinLock {
	l := &SpinLock{name: name, gate: gate}
	l.holder.Store(bootContextID - 1) // ningún contexto válido
	return l
}

// SetGate instala la compuerta de interrupciones. Se usa en el arranque para
// los locks creados antes de inicializar la CPU.
func (l *SpinLock) SetGate(gate IntGate) {
	l.gate = gate
}

// Guard representa la tenencia del lock. Release restaura el estado de
// interrupciones previo; es seguro llamarlo una sola vez por Guard.
type Guard struct {
	lock     *SpinLock
	prior    bool
	released bool
}

// Acquire deshabilita interrupciones y gira hasta obtener el lock.
// Re-adquirir un lock ya sostenido por el mismo contexto de ejecución es una
// violación de invariante y detiene el kernel.
func (l *SpinLock) Acquire() *Guard {
	prior := false
	ctx := bootContextID
	if l.gate != nil {
		prior = l.gate.DisableInterrupts()
		ctx = l.gate.ContextID()
	}

	if l.state.Load() == 1 && l.holder.Load() == ctx {
		fatal.Kernel("re-adquisición del lock %q por el mismo contexto (%d)", l.name, ctx)
	}

	for !l.state.CompareAndSwap(0, 1) {
		// Backoff: en un solo CPU lógico girar sin ceder no progresa.
		runtime.Gosched()
		if l.holder.Load() == ctx {
			fatal.Kernel("re-adquisición del lock %q por el mismo contexto (%d)", l.name, ctx)
		}
	}
	l.holder.Store(ctx)

	return &Guard{lock: l, prior: prior}
}

// Release libera el lock y restaura el estado de interrupciones previo.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true

	l := g.lock
	l.holder.Store(bootContextID - 1)
	l.state.Store(0)
	if l.gate != nil {
		l.gate.RestoreInterrupts(g.prior)
	}
}
