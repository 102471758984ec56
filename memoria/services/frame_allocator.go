package services

import (
	"log/slog"

	"github.com/sisoputnfrba/kernel-core/memoria/models"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

// FrameAllocator administra el conjunto de marcos de memoria física. Se
// inicializa con el mapa de memoria del boot: solo las regiones usables entran
// al pool; la imagen del kernel y las regiones de firmware se reservan antes
// de servir la primera asignación.
//
// El bitmap de estados mantiene el invariante global: cada marco está en
// exactamente uno de {libre, asignado, reservado}. Liberar un marco que no
// está asignado es un bug del kernel y detiene el sistema.
type FrameAllocator struct {
	lock     *spinlock.SpinLock
	state    []models.FrameState
	nextFree int // hint para no recorrer el bitmap completo en cada pedido
	free     int
	usable   int
}

// NewFrameAllocator construye el allocator a partir del mapa de memoria
// recibido en el handoff de boot.
func NewFrameAllocator(memoryMap models.MemoryMap, gate spinlock.IntGate) *FrameAllocator {
	frames := int((memoryMap.HighestAddress() + models.FrameSize - 1) / models.FrameSize)

	a := &FrameAllocator{
		lock:  spinlock.New("frames", gate),
		state: make([]models.FrameState, frames),
	}

	// Todo marco arranca reservado; solo los cubiertos por una región usable
	// completa pasan al pool.
	for i := range a.state {
		a.state[i] = models.FrameReserved
	}
	for _, region := range memoryMap {
		if !region.Usable {
			continue
		}
		first := (region.Base + models.FrameSize - 1) / models.FrameSize
		last := (region.Base + region.Length) / models.FrameSize
		for f := first; f < last; f++ {
			if a.state[f] == models.FrameReserved {
				a.state[f] = models.FrameFree
				a.free++
				a.usable++
			}
		}
	}

	slog.Debug("Allocator de marcos inicializado", "frames", frames, "usables", a.usable)
	return a
}

// Allocate entrega un marco libre. No se garantiza ningún orden entre marcos.
func (a *FrameAllocator) Allocate() (models.Frame, error) {
	guard := a.lock.Acquire()
	defer guard.Release()

	if a.free == 0 {
		slog.Error("No hay marcos libres disponibles para asignar")
		return models.InvalidFrame, models.ErrOutOfMemory
	}

	n := len(a.state)
	for off := 0; off < n; off++ {
		i := (a.nextFree + off) % n
		if a.state[i] == models.FrameFree {
			a.state[i] = models.FrameUsed
			a.free--
			a.nextFree = i + 1
			return models.Frame(i), nil
		}
	}

	// free > 0 pero no se encontró ninguno: el bitmap se corrompió.
	fatal.Kernel("bitmap de marcos inconsistente: contador libre %d sin marcos libres", a.free)
	return models.InvalidFrame, models.ErrOutOfMemory
}

// Free devuelve un marco al pool. Liberar un marco ya libre o reservado es una
// violación de invariante (double free) y detiene el kernel.
func (a *FrameAllocator) Free(f models.Frame) {
	guard := a.lock.Acquire()
	defer guard.Release()

	if int(f) >= len(a.state) {
		fatal.Kernel("free del marco %d fuera del mapa de memoria", f)
	}
	switch a.state[f] {
	case models.FrameFree:
		fatal.Kernel("double free del marco %d", f)
	case models.FrameReserved:
		fatal.Kernel("free del marco reservado %d", f)
	}

	a.state[f] = models.FrameFree
	a.free++
	if int(f) < a.nextFree {
		a.nextFree = int(f)
	}
}

// Reserve excluye del pool el rango físico dado. Se usa durante el boot para
// la imagen del kernel y las estructuras del bootloader, antes de que se sirva
// ninguna asignación.
func (a *FrameAllocator) Reserve(base, length uint64) {
	guard := a.lock.Acquire()
	defer guard.Release()

	first := base / models.FrameSize
	last := (base + length + models.FrameSize - 1) / models.FrameSize
	for f := first; f < last && int(f) < len(a.state); f++ {
		switch a.state[f] {
		case models.FrameUsed:
			fatal.Kernel("reserva del marco %d que ya fue asignado", f)
		case models.FrameFree:
			a.state[f] = models.FrameReserved
			a.free--
			a.usable--
		}
	}
}

// FreeCount devuelve la cantidad de marcos libres.
func (a *FrameAllocator) FreeCount() int {
	guard := a.lock.Acquire()
	defer guard.Release()
	return a.free
}

// UsableCount devuelve la cantidad de marcos usables (libres + asignados).
func (a *FrameAllocator) UsableCount() int {
	guard := a.lock.Acquire()
	defer guard.Release()
	return a.usable
}
