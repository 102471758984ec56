package services

import (
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/kernel-core/memoria/models"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

// minBlock es la granularidad mínima de bloque del heap; todo tamaño se
// redondea hacia arriba a múltiplo de 8.
const minBlock = 8

// freeBlock es un nodo de la free-list, ordenada por dirección para poder
// fusionar bloques vecinos al liberar.
type freeBlock struct {
	addr uint64
	size uint64
	next *freeBlock
}

// Heap es el allocator dinámico del kernel. Está respaldado por una región
// virtual del espacio de direcciones del kernel, mapeada vía el Manager, y
// crece pidiendo más páginas hasta el techo configurado. Es el único proveedor
// de memoria dinámica del kernel (stacks de kernel, estructuras por tarea);
// Alloc no debe llamarse desde un handler de interrupciones.
type Heap struct {
	lock  *spinlock.SpinLock
	mgr   *Manager
	space *models.AddressSpace

	base        uint64
	mappedPages int
	maxPages    int
	free        *freeBlock
}

// NewHeap mapea la región inicial del heap en el espacio del kernel y deja
// toda la región como un único bloque libre.
func NewHeap(mgr *Manager, space *models.AddressSpace, base uint64, initialPages, maxPages int, gate spinlock.IntGate) (*Heap, error) {
	if initialPages <= 0 || maxPages < initialPages {
		return nil, fmt.Errorf("configuración de heap inválida: inicial %d, máximo %d", initialPages, maxPages)
	}
	if !models.PageAligned(base) {
		return nil, fmt.Errorf("base del heap %#x: %w", base, models.ErrUnaligned)
	}

	if err := mgr.MapRange(space, base, initialPages, models.FlagWritable|models.FlagNoExecute); err != nil {
		return nil, fmt.Errorf("no se pudo mapear la región inicial del heap: %w", err)
	}

	h := &Heap{
		lock:        spinlock.New("heap", gate),
		mgr:         mgr,
		space:       space,
		base:        base,
		mappedPages: initialPages,
		maxPages:    maxPages,
		free:        &freeBlock{addr: base, size: uint64(initialPages) * models.FrameSize},
	}

	slog.Debug("Heap del kernel inicializado", "base", fmt.Sprintf("%#x", base),
		"paginas", initialPages, "techo_paginas", maxPages)
	return h, nil
}

// Alloc reserva size bytes con la alineación pedida y devuelve la dirección
// virtual del bloque. Si la región está agotada intenta crecer; si el techo ya
// se alcanzó o no hay marcos, devuelve el error al que llama (la creación de
// la tarea falla limpiamente, el kernel no se cae).
func (h *Heap) Alloc(size, align uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("alloc de tamaño cero")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, fmt.Errorf("alineación %d no es potencia de dos", align)
	}
	size = roundUp(size, minBlock)

	guard := h.lock.Acquire()
	defer guard.Release()

	if addr, ok := h.carve(size, align); ok {
		return addr, nil
	}

	// La free-list no alcanza: crecer y reintentar una vez.
	if err := h.grow(size + align); err != nil {
		return 0, err
	}
	if addr, ok := h.carve(size, align); ok {
		return addr, nil
	}
	return 0, models.ErrHeapExhausted
}

// Dealloc devuelve un bloque a la free-list y fusiona con los vecinos
// adyacentes para acotar la fragmentación. Liberar un rango que se solapa con
// un bloque ya libre es una violación de invariante.
func (h *Heap) Dealloc(addr, size, align uint64) {
	if size == 0 {
		return
	}
	size = roundUp(size, minBlock)

	guard := h.lock.Acquire()
	defer guard.Release()

	end := h.base + uint64(h.mappedPages)*models.FrameSize
	if addr < h.base || addr+size > end {
		fatal.Kernel("dealloc de %#x (+%d) fuera de la región del heap", addr, size)
	}

	h.insertFree(addr, size)
}

// FreeBytes devuelve el total de bytes libres en la free-list.
func (h *Heap) FreeBytes() uint64 {
	guard := h.lock.Acquire()
	defer guard.Release()

	var total uint64
	for b := h.free; b != nil; b = b.next {
		total += b.size
	}
	return total
}

// carve busca first-fit un bloque que admita size bytes alineados y lo recorta
// de la free-list. Se llama con el lock tomado.
func (h *Heap) carve(size, align uint64) (uint64, bool) {
	var prev *freeBlock
	for b := h.free; b != nil; prev, b = b, b.next {
		aligned := roundUp(b.addr, align)
		end := aligned + size
		if end > b.addr+b.size {
			continue
		}

		// Recortar el bloque: puede quedar un fragmento adelante (por la
		// alineación) y otro atrás.
		trailing := b.addr + b.size - end
		leading := aligned - b.addr

		if leading > 0 {
			b.size = leading
			if trailing > 0 {
				nb := &freeBlock{addr: end, size: trailing, next: b.next}
				b.next = nb
			}
		} else {
			if trailing > 0 {
				b.addr = end
				b.size = trailing
			} else {
				if prev == nil {
					h.free = b.next
				} else {
					prev.next = b.next
				}
			}
		}
		return aligned, true
	}
	return 0, false
}

// grow mapea páginas adicionales al final de la región y las incorpora a la
// free-list. Se llama con el lock tomado.
func (h *Heap) grow(need uint64) error {
	if h.mappedPages >= h.maxPages {
		return models.ErrHeapExhausted
	}

	needPages := int(roundUp(need, models.FrameSize) / models.FrameSize)
	// Crecimiento geométrico para no mapear de a una página por pedido.
	addPages := h.mappedPages
	if addPages < needPages {
		addPages = needPages
	}
	if h.mappedPages+addPages > h.maxPages {
		addPages = h.maxPages - h.mappedPages
	}
	if addPages < needPages {
		return models.ErrHeapExhausted
	}

	start := h.base + uint64(h.mappedPages)*models.FrameSize
	if err := h.mgr.MapRange(h.space, start, addPages, models.FlagWritable|models.FlagNoExecute); err != nil {
		return fmt.Errorf("no se pudo crecer el heap: %w", err)
	}
	h.mappedPages += addPages
	h.insertFree(start, uint64(addPages)*models.FrameSize)

	slog.Debug("Heap del kernel crecido", "paginas", h.mappedPages)
	return nil
}

// insertFree inserta [addr, addr+size) en la free-list manteniendo el orden
// por dirección y fusionando con los vecinos. Se llama con el lock tomado.
func (h *Heap) insertFree(addr, size uint64) {
	var prev *freeBlock
	next := h.free
	for next != nil && next.addr < addr {
		prev = next
		next = next.next
	}

	if prev != nil && prev.addr+prev.size > addr {
		fatal.Kernel("double free en el heap: %#x ya está libre", addr)
	}
	if next != nil && addr+size > next.addr {
		fatal.Kernel("double free en el heap: %#x se solapa con un bloque libre", addr)
	}

	nb := &freeBlock{addr: addr, size: size, next: next}
	if prev == nil {
		h.free = nb
	} else {
		prev.next = nb
	}

	// Fusión con el vecino posterior y luego con el anterior.
	if next != nil && nb.addr+nb.size == next.addr {
		nb.size += next.size
		nb.next = next.next
	}
	if prev != nil && prev.addr+prev.size == nb.addr {
		prev.size += nb.size
		prev.next = nb.next
	}
}

func roundUp(x, multiple uint64) uint64 {
	return (x + multiple - 1) &^ (multiple - 1)
}
