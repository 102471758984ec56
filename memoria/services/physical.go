package services

import (
	"encoding/binary"

	"github.com/sisoputnfrba/kernel-core/memoria/models"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
)

// PhysicalMemory es la memoria física simulada: un arreglo de bytes dividido
// en marcos de tamaño fijo. Las tablas de páginas viven adentro de los marcos
// que las respaldan, igual que en el hardware real.
type PhysicalMemory struct {
	data []byte
}

// NewPhysicalMemory crea la memoria física con el tamaño dado, redondeado
// hacia arriba al tamaño de marco.
func NewPhysicalMemory(size uint64) *PhysicalMemory {
	frames := (size + models.FrameSize - 1) / models.FrameSize
	return &PhysicalMemory{data: make([]byte, frames*models.FrameSize)}
}

// Size devuelve el tamaño total en bytes.
func (p *PhysicalMemory) Size() uint64 {
	return uint64(len(p.data))
}

// Frames devuelve la cantidad de marcos que contiene la memoria.
func (p *PhysicalMemory) Frames() uint64 {
	return uint64(len(p.data)) / models.FrameSize
}

// FrameBytes devuelve los bytes del marco dado. Acceder a un marco fuera de
// rango es un bug del kernel.
func (p *PhysicalMemory) FrameBytes(f models.Frame) []byte {
	base := f.Address()
	if base+models.FrameSize > uint64(len(p.data)) {
		fatal.Kernel("acceso al marco %d fuera de la memoria física (%d bytes)", f, len(p.data))
	}
	return p.data[base : base+models.FrameSize]
}

// ZeroFrame limpia por completo el marco dado.
func (p *PhysicalMemory) ZeroFrame(f models.Frame) {
	frame := p.FrameBytes(f)
	for i := range frame {
		frame[i] = 0
	}
}

// ReadEntry lee la entrada idx de la tabla de páginas almacenada en el marco.
func (p *PhysicalMemory) ReadEntry(table models.Frame, idx int) models.PageEntry {
	if idx < 0 || idx >= models.EntriesPerTable {
		fatal.Kernel("índice de entrada de tabla fuera de rango: %d", idx)
	}
	frame := p.FrameBytes(table)
	return models.PageEntry(binary.LittleEndian.Uint64(frame[idx*8:]))
}

// WriteEntry escribe la entrada idx de la tabla de páginas almacenada en el marco.
func (p *PhysicalMemory) WriteEntry(table models.Frame, idx int, entry models.PageEntry) {
	if idx < 0 || idx >= models.EntriesPerTable {
		fatal.Kernel("índice de entrada de tabla fuera de rango: %d", idx)
	}
	frame := p.FrameBytes(table)
	binary.LittleEndian.PutUint64(frame[idx*8:], uint64(entry))
}

// ReadAt copia bytes desde la dirección física dada.
func (p *PhysicalMemory) ReadAt(phys uint64, buf []byte) {
	if phys+uint64(len(buf)) > uint64(len(p.data)) {
		fatal.Kernel("lectura física fuera de rango: %#x + %d bytes", phys, len(buf))
	}
	copy(buf, p.data[phys:])
}

// WriteAt copia bytes hacia la dirección física dada.
func (p *PhysicalMemory) WriteAt(phys uint64, data []byte) {
	if phys+uint64(len(data)) > uint64(len(p.data)) {
		fatal.Kernel("escritura física fuera de rango: %#x + %d bytes", phys, len(data))
	}
	copy(p.data[phys:], data)
}
