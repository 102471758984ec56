package services

import (
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/kernel-core/cpu/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

// TLB es la caché de traducciones de la CPU simulada. Capacidad y algoritmo de
// reemplazo ("FIFO" o "LRU") vienen del config; con capacidad 0 queda
// desactivada. Toda mutación de un mapeo debe invalidar acá antes de darse por
// completa: una traducción vieja observable es un bug de correctitud.
type TLB struct {
	lock      *spinlock.SpinLock
	entries   []models.TLBEntry
	maxSize   int
	algorithm string // "FIFO" o "LRU"
	counter   int64  // para LRU, contador incremental
}

// NewTLB crea la TLB con la capacidad y algoritmo de reemplazo dados.
func NewTLB(maxSize int, algorithm string, gate spinlock.IntGate) *TLB {
	if algorithm != "FIFO" && algorithm != "LRU" {
		slog.Warn("Algoritmo de TLB no reconocido, utilizando FIFO por defecto", "algoritmo", algorithm)
		algorithm = "FIFO"
	}
	return &TLB{
		lock:      spinlock.New("tlb", gate),
		entries:   make([]models.TLBEntry, 0, maxSize),
		maxSize:   maxSize,
		algorithm: algorithm,
	}
}

// Lookup busca la traducción de la página en la caché.
func (t *TLB) Lookup(asid uint32, page uint64) (memModels.Frame, bool) {
	if t.maxSize == 0 {
		return 0, false
	}

	guard := t.lock.Acquire()
	defer guard.Release()

	for i := range t.entries {
		if t.entries[i].ASID == asid && t.entries[i].Page == page {
			if t.algorithm == "LRU" {
				t.counter++
				t.entries[i].LastUsed = t.counter
			}
			slog.Debug(fmt.Sprintf("ASID: %d - TLB HIT - Pagina: %d", asid, page))
			return t.entries[i].Frame, true
		}
	}

	slog.Debug(fmt.Sprintf("ASID: %d - TLB MISS - Pagina: %d", asid, page))
	return 0, false
}

// Insert agrega una traducción, desalojando una víctima según el algoritmo
// configurado si la caché está llena.
func (t *TLB) Insert(asid uint32, page uint64, frame memModels.Frame) {
	if t.maxSize == 0 {
		return
	}

	guard := t.lock.Acquire()
	defer guard.Release()

	t.counter++
	entry := models.TLBEntry{
		ASID:     asid,
		Page:     page,
		Frame:    frame,
		LastUsed: t.counter,
	}

	if len(t.entries) < t.maxSize {
		t.entries = append(t.entries, entry)
		return
	}

	victim := 0
	if t.algorithm == "LRU" {
		for i := range t.entries {
			if t.entries[i].LastUsed < t.entries[victim].LastUsed {
				victim = i
			}
		}
	}
	// FIFO: la víctima es la entrada más vieja, que siempre quedó primera
	// porque las inserciones desplazan hacia el final.
	t.entries = append(t.entries[:victim], t.entries[victim+1:]...)
	t.entries = append(t.entries, entry)
}

// InvalidatePage elimina la traducción cacheada de una página puntual.
func (t *TLB) InvalidatePage(asid uint32, page uint64) {
	if t.maxSize == 0 {
		return
	}

	guard := t.lock.Acquire()
	defer guard.Release()

	for i := range t.entries {
		if t.entries[i].ASID == asid && t.entries[i].Page == page {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// InvalidateSpace elimina todas las traducciones de un espacio de direcciones.
func (t *TLB) InvalidateSpace(asid uint32) {
	if t.maxSize == 0 {
		return
	}

	guard := t.lock.Acquire()
	defer guard.Release()

	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.ASID != asid {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// InvalidateAll vacía la caché completa. Se llama en cada cambio de espacio
// de direcciones.
func (t *TLB) InvalidateAll() {
	if t.maxSize == 0 {
		return
	}

	guard := t.lock.Acquire()
	defer guard.Release()

	t.entries = t.entries[:0]
}

// Size devuelve la cantidad de traducciones cacheadas.
func (t *TLB) Size() int {
	guard := t.lock.Acquire()
	defer guard.Release()
	return len(t.entries)
}
