package models

import (
	"time"

	cpuModels "github.com/sisoputnfrba/kernel-core/cpu/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
)

// TCB es el bloque de control de una tarea: la unidad de planificación del
// kernel. Lo crean el scheduler o el loader; sus transiciones de estado las
// maneja únicamente el scheduler, bajo su lock.
type TCB struct {
	PID      uint
	Priority int

	EstadoActual   Estado
	SliceRemaining int

	// Context es el estado de registros guardado mientras la tarea no ejecuta.
	Context cpuModels.Context

	// KernelStack es la dirección (en el heap del kernel) del stack de kernel
	// de la tarea; ninguna otra tarea lo comparte.
	KernelStack     uint64
	KernelStackSize uint64

	// AddressSpace es el espacio de direcciones de la tarea. OwnsSpace indica
	// si la tarea es dueña (se destruye al terminar) o lo comparte con el
	// kernel, como la tarea idle.
	AddressSpace *memModels.AddressSpace
	OwnsSpace    bool

	// WakeTick es el deadline absoluto (en ticks) para despertar una tarea
	// dormida; 0 significa que espera una condición externa (Wake explícito).
	WakeTick uint64

	// Métricas por estado: cantidad de entradas y tiempo de permanencia.
	ME map[Estado]int
	MT map[Estado]time.Duration

	UltimoCambio time.Time
}
