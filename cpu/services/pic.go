package services

import (
	"log/slog"

	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

// PIC es el controlador de interrupciones programable simulado: remapea las
// líneas IRQ a partir de un vector base y permite enmascararlas de a una.
// La línea 0 es el timer.
type PIC struct {
	lock   *spinlock.SpinLock
	offset uint8
	mask   uint16
}

// NewPIC crea el controlador con todas las líneas enmascaradas; el boot
// remapea y deshabilita las máscaras que necesita antes de habilitar
// interrupciones.
func NewPIC(gate spinlock.IntGate) *PIC {
	return &PIC{
		lock:   spinlock.New("pic", gate),
		offset: 0x20,
		mask:   0xFFFF,
	}
}

// Remap programa el vector base al que se rutean las líneas IRQ.
func (p *PIC) Remap(offset uint8) {
	guard := p.lock.Acquire()
	defer guard.Release()

	p.offset = offset
	slog.Debug("PIC remapeado", "offset", offset)
}

// UnmaskIRQ habilita una línea IRQ.
func (p *PIC) UnmaskIRQ(line uint8) {
	guard := p.lock.Acquire()
	defer guard.Release()

	p.mask &^= 1 << line
}

// MaskIRQ enmascara una línea IRQ.
func (p *PIC) MaskIRQ(line uint8) {
	guard := p.lock.Acquire()
	defer guard.Release()

	p.mask |= 1 << line
}

// Delivers indica si el vector corresponde a una línea habilitada.
func (p *PIC) Delivers(vector uint8) bool {
	guard := p.lock.Acquire()
	defer guard.Release()

	if vector < p.offset || vector >= p.offset+16 {
		return false
	}
	line := vector - p.offset
	return p.mask&(1<<line) == 0
}

// EOI señala el fin del handler de la interrupción en curso.
func (p *PIC) EOI() {
	// El PIC simulado no encola interrupciones pendientes; el EOI queda como
	// punto de extensión para futuros dispositivos.
}
