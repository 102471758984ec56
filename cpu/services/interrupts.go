package services

import (
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/kernel-core/cpu/models"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

// Handler atiende un vector de interrupción. Corre con las interrupciones
// deshabilitadas, hasta completarse: no debe bloquear ni pedir memoria del
// heap. Puede pedir un cambio de tarea mutando el frame recibido.
type Handler func(*models.InterruptFrame)

// Dispatcher es la tabla de vectores de la CPU y el mecanismo de despacho.
// La tabla es total: todo vector tiene al menos el handler por defecto antes
// de que se habiliten las interrupciones.
type Dispatcher struct {
	cpu   *models.State
	pic   *PIC
	lock  *spinlock.SpinLock
	table [256]Handler

	// resume apunta al contexto vivo de la tarea en ejecución: de ahí se toma
	// la foto de registros a la entrada del trap y ahí se vuelca el frame
	// (posiblemente intercambiado por el scheduler) al retornar.
	resume *models.Context
}

// NewDispatcher construye la tabla con el handler por defecto en cada vector:
// excepción sin registrar es fatal, interrupción externa sin registrar se
// ignora como espuria.
func NewDispatcher(cpu *models.State, pic *PIC, gate spinlock.IntGate) *Dispatcher {
	d := &Dispatcher{
		cpu:  cpu,
		pic:  pic,
		lock: spinlock.New("idt", gate),
	}
	for v := 0; v < 256; v++ {
		d.table[v] = d.defaultHandler(uint8(v))
	}
	return d
}

func (d *Dispatcher) defaultHandler(vector uint8) Handler {
	if vector <= models.VectorLastException {
		return func(frame *models.InterruptFrame) {
			fatal.Trap(fatal.Report{
				Reason:  fmt.Sprintf("excepción sin manejar: %s", models.ExceptionName(vector)),
				Vector:  int(vector),
				Address: d.cpu.FaultAddress(),
				TaskID:  int(d.cpu.ContextID()),
			})
		}
	}
	return func(frame *models.InterruptFrame) {
		slog.Warn(fmt.Sprintf("## Interrupción espuria ignorada - Vector: %d", vector))
	}
}

// Install registra el handler para un vector. Se llama durante el boot, antes
// de Enable.
func (d *Dispatcher) Install(vector uint8, handler Handler) {
	if handler == nil {
		fatal.Kernel("install de handler nulo para el vector %d", vector)
	}

	guard := d.lock.Acquire()
	defer guard.Release()

	d.table[vector] = handler
	slog.Debug("Handler instalado", "vector", vector)
}

// SetResumeContext registra dónde vive el contexto de la tarea en ejecución.
// Lo actualiza el scheduler en cada cambio de tarea.
func (d *Dispatcher) SetResumeContext(ctx *models.Context) {
	d.resume = ctx
}

// Enable habilita la compuerta global de interrupciones. La tabla ya es total
// por construcción; a partir de acá el timer puede desalojar.
func (d *Dispatcher) Enable() {
	d.cpu.EnableInterrupts()
	slog.Debug("Interrupciones habilitadas")
}

// Disable deshabilita la compuerta global.
func (d *Dispatcher) Disable() {
	d.cpu.DisableInterrupts()
}

// DeliverIRQ entrega una interrupción externa. Si la compuerta global está
// deshabilitada o el PIC tiene la línea enmascarada, la interrupción no se
// entrega y devuelve false.
func (d *Dispatcher) DeliverIRQ(vector uint8) bool {
	if vector <= models.VectorLastException {
		fatal.Kernel("DeliverIRQ con vector de excepción %d", vector)
	}
	if !d.cpu.InterruptsEnabled() {
		return false
	}
	if d.pic != nil && !d.pic.Delivers(vector) {
		return false
	}

	d.dispatch(&models.InterruptFrame{Vector: vector})
	return true
}

// RaiseException entrega una excepción de arquitectura. Las excepciones no se
// enmascaran: se despachan siempre.
func (d *Dispatcher) RaiseException(vector uint8, errorCode uint64) {
	if vector > models.VectorLastException {
		fatal.Kernel("RaiseException con vector externo %d", vector)
	}
	d.dispatch(&models.InterruptFrame{Vector: vector, ErrorCode: errorCode})
}

// dispatch emula la entrada del trap: deshabilita interrupciones, toma la foto
// de registros del contexto en ejecución, invoca el handler registrado y al
// retornar vuelca el frame sobre el contexto con el que se retoma (que el
// scheduler puede haber intercambiado).
func (d *Dispatcher) dispatch(frame *models.InterruptFrame) {
	prior := d.cpu.DisableInterrupts()

	if d.resume != nil {
		frame.Context = *d.resume
	}

	d.table[frame.Vector](frame)

	if d.resume != nil {
		*d.resume = frame.Context
	}

	d.cpu.RestoreInterrupts(prior)
}
