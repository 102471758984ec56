package models

import "math"

const (
	// FrameSize es el tamaño fijo de un marco de memoria física.
	FrameSize = 4096
	// PageShift es el desplazamiento equivalente a FrameSize (4096 = 1 << 12).
	PageShift = 12
)

// Frame es el índice de un marco de memoria física.
type Frame uint64

// InvalidFrame es el valor que devuelven los allocators cuando no pueden
// reservar un marco.
const InvalidFrame = Frame(math.MaxUint64)

// Valid indica si el marco es un marco real.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address devuelve la dirección física de comienzo del marco.
func (f Frame) Address() uint64 {
	return uint64(f) << PageShift
}

// FrameForAddress devuelve el marco que contiene la dirección física dada.
func FrameForAddress(addr uint64) Frame {
	return Frame(addr >> PageShift)
}

// FrameState es el estado de un marco dentro del allocator.
// Todo marco está en exactamente uno de estos estados: libre, asignado a un
// único mapeo, o reservado (imagen del kernel, firmware, estructuras de boot).
type FrameState uint8

const (
	FrameFree FrameState = iota
	FrameUsed
	FrameReserved
)

// MemoryRegion es una región del mapa de memoria física que entrega el boot.
type MemoryRegion struct {
	Base   uint64
	Length uint64
	Usable bool
}

// MemoryMap es el mapa de memoria física completo recibido en el handoff de boot.
type MemoryMap []MemoryRegion

// HighestAddress devuelve la dirección física más alta cubierta por el mapa.
func (m MemoryMap) HighestAddress() uint64 {
	var highest uint64
	for _, region := range m {
		if end := region.Base + region.Length; end > highest {
			highest = end
		}
	}
	return highest
}
