package services

import (
	"fmt"
	"log/slog"

	"github.com/sisoputnfrba/kernel-core/memoria/models"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

// TranslationCache es la vista que el administrador de memoria tiene de la
// TLB: solo invalidación. Toda mutación de un mapeo invalida las traducciones
// afectadas antes de darse por completa; si no, podrían observarse
// traducciones viejas (un problema de correctitud, no de performance).
type TranslationCache interface {
	InvalidatePage(asid uint32, page uint64)
	InvalidateSpace(asid uint32)
	InvalidateAll()
}

// RootTableRegister es el registro de la CPU donde se carga la tabla raíz del
// espacio de direcciones activo (el equivalente a CR3).
type RootTableRegister interface {
	SetRootTable(phys uint64)
}

// Manager construye y muta las jerarquías de tablas de páginas de cada
// espacio de direcciones. Las tablas viven dentro de marcos físicos asignados
// por el FrameAllocator; este componente es el único que las toca, siempre
// bajo su lock.
type Manager struct {
	lock   *spinlock.SpinLock
	phys   *PhysicalMemory
	frames *FrameAllocator
	tlb    TranslationCache
	cr3    RootTableRegister

	nextID uint32
	active *models.AddressSpace
}

// NewManager crea el administrador de espacios de direcciones.
func NewManager(phys *PhysicalMemory, frames *FrameAllocator, tlb TranslationCache, cr3 RootTableRegister, gate spinlock.IntGate) *Manager {
	return &Manager{
		lock:   spinlock.New("memoria", gate),
		phys:   phys,
		frames: frames,
		tlb:    tlb,
		cr3:    cr3,
		nextID: 1,
	}
}

// NewAddressSpace crea un espacio de direcciones vacío: una tabla raíz limpia
// sin ningún mapeo.
func (m *Manager) NewAddressSpace() (*models.AddressSpace, error) {
	root, err := m.frames.Allocate()
	if err != nil {
		return nil, fmt.Errorf("no se pudo asignar la tabla raíz: %w", err)
	}
	m.phys.ZeroFrame(root)

	guard := m.lock.Acquire()
	id := m.nextID
	m.nextID++
	guard.Release()

	as := &models.AddressSpace{ID: id, Root: root}
	slog.Debug("Se crea espacio de direcciones", "asid", id, "root", root)
	return as, nil
}

// Map instala la traducción de la página virtual que contiene a virtualAddr
// hacia el marco dado. Si frame es InvalidFrame se asigna un marco nuevo
// (limpio) del allocator. Los niveles intermedios faltantes se crean a demanda
// con marcos del allocator.
//
// Errores: ErrUnaligned si la dirección no está alineada al marco (nunca se
// redondea), ErrAlreadyMapped si la página ya tiene traducción presente,
// ErrOutOfMemory si no hay marcos para la página o sus tablas.
func (m *Manager) Map(as *models.AddressSpace, virtualAddr uint64, frame models.Frame, flags models.EntryFlag) error {
	if !models.PageAligned(virtualAddr) || !models.Canonical(virtualAddr) {
		return fmt.Errorf("map de %#x: %w", virtualAddr, models.ErrUnaligned)
	}

	guard := m.lock.Acquire()
	defer guard.Release()

	table, err := m.walkCreate(as, virtualAddr)
	if err != nil {
		return err
	}

	idx := models.PageIndices(virtualAddr)[models.PageLevels-1]
	if m.phys.ReadEntry(table, idx).HasFlags(models.FlagPresent) {
		return fmt.Errorf("map de %#x: %w", virtualAddr, models.ErrAlreadyMapped)
	}

	if !frame.Valid() {
		frame, err = m.frames.Allocate()
		if err != nil {
			return fmt.Errorf("map de %#x: %w", virtualAddr, err)
		}
		m.phys.ZeroFrame(frame)
	}

	var entry models.PageEntry
	entry.SetFrame(frame)
	entry.SetFlags(flags | models.FlagPresent)
	m.phys.WriteEntry(table, idx, entry)
	as.MappedPages++

	m.tlb.InvalidatePage(as.ID, models.PageNumber(virtualAddr))
	return nil
}

// MapRange mapea pages páginas consecutivas a partir de virtualAddr, asignando
// un marco nuevo para cada una. Ante un error las páginas ya mapeadas quedan;
// el que llama decide la política (típicamente destruir el espacio completo).
func (m *Manager) MapRange(as *models.AddressSpace, virtualAddr uint64, pages int, flags models.EntryFlag) error {
	for i := 0; i < pages; i++ {
		va := virtualAddr + uint64(i)*models.FrameSize
		if err := m.Map(as, va, models.InvalidFrame, flags); err != nil {
			return err
		}
	}
	return nil
}

// Unmap elimina la traducción de pages páginas consecutivas, invalida las
// entradas correspondientes de la TLB y devuelve los marcos liberados al
// allocator. Retorna los marcos que respaldaban el rango.
func (m *Manager) Unmap(as *models.AddressSpace, virtualAddr uint64, pages int) ([]models.Frame, error) {
	if !models.PageAligned(virtualAddr) || !models.Canonical(virtualAddr) {
		return nil, fmt.Errorf("unmap de %#x: %w", virtualAddr, models.ErrUnaligned)
	}

	guard := m.lock.Acquire()
	defer guard.Release()

	var freed []models.Frame
	for i := 0; i < pages; i++ {
		va := virtualAddr + uint64(i)*models.FrameSize

		table, ok := m.walkLookup(as, va)
		if !ok {
			return freed, fmt.Errorf("unmap de %#x: %w", va, models.ErrNotMapped)
		}
		idx := models.PageIndices(va)[models.PageLevels-1]
		entry := m.phys.ReadEntry(table, idx)
		if !entry.HasFlags(models.FlagPresent) {
			return freed, fmt.Errorf("unmap de %#x: %w", va, models.ErrNotMapped)
		}

		// Primero se borra la entrada y se invalida la traducción; recién
		// después el marco vuelve al pool.
		m.phys.WriteEntry(table, idx, 0)
		m.tlb.InvalidatePage(as.ID, models.PageNumber(va))

		frame := entry.Frame()
		m.frames.Free(frame)
		freed = append(freed, frame)
		as.MappedPages--
	}

	return freed, nil
}

// Translate resuelve una dirección virtual a física recorriendo las tablas.
// Devuelve ErrNotMapped si algún nivel no está presente.
func (m *Manager) Translate(as *models.AddressSpace, virtualAddr uint64) (uint64, error) {
	entry, err := m.EntryFor(as, virtualAddr)
	if err != nil {
		return 0, err
	}
	offset := virtualAddr & (models.FrameSize - 1)
	return entry.Frame().Address() | offset, nil
}

// EntryFor devuelve la entrada hoja que traduce a virtualAddr. La usan el
// camino de traducción y las verificaciones de permisos.
func (m *Manager) EntryFor(as *models.AddressSpace, virtualAddr uint64) (models.PageEntry, error) {
	if !models.Canonical(virtualAddr) {
		return 0, fmt.Errorf("translate de %#x: %w", virtualAddr, models.ErrNotMapped)
	}

	guard := m.lock.Acquire()
	defer guard.Release()

	table, ok := m.walkLookup(as, virtualAddr)
	if !ok {
		return 0, models.ErrNotMapped
	}
	entry := m.phys.ReadEntry(table, models.PageIndices(virtualAddr)[models.PageLevels-1])
	if !entry.HasFlags(models.FlagPresent) {
		return 0, models.ErrNotMapped
	}
	return entry, nil
}

// Activate carga la tabla raíz del espacio dado en la CPU e invalida la TLB
// completa. El invariante del scheduler es que la raíz activa siempre coincide
// con el espacio de la tarea en ejecución.
func (m *Manager) Activate(as *models.AddressSpace) {
	guard := m.lock.Acquire()
	defer guard.Release()

	m.active = as
	m.cr3.SetRootTable(as.Root.Address())
	m.tlb.InvalidateAll()
	slog.Debug("Espacio de direcciones activado", "asid", as.ID)
}

// Active devuelve el espacio de direcciones actualmente activo.
func (m *Manager) Active() *models.AddressSpace {
	guard := m.lock.Acquire()
	defer guard.Release()
	return m.active
}

// Destroy desarma el espacio completo: libera todos los marcos todavía
// mapeados, los marcos de cada nivel de tabla y la raíz, e invalida toda
// traducción cacheada del espacio. Devuelve la cantidad de marcos liberados.
func (m *Manager) Destroy(as *models.AddressSpace) int {
	guard := m.lock.Acquire()
	defer guard.Release()

	if m.active == as {
		fatal.Kernel("destrucción del espacio de direcciones activo (asid %d)", as.ID)
	}

	freed := m.freeTable(as.Root, 0)
	m.tlb.InvalidateSpace(as.ID)
	as.MappedPages = 0

	slog.Debug("Espacio de direcciones destruido", "asid", as.ID, "marcos_liberados", freed)
	return freed
}

// freeTable libera recursivamente una tabla de nivel level y todo lo que
// cuelga de ella, incluida la tabla misma.
func (m *Manager) freeTable(table models.Frame, level int) int {
	freed := 0
	for idx := 0; idx < models.EntriesPerTable; idx++ {
		entry := m.phys.ReadEntry(table, idx)
		if !entry.HasFlags(models.FlagPresent) {
			continue
		}
		if level == models.PageLevels-1 {
			m.frames.Free(entry.Frame())
			freed++
		} else {
			freed += m.freeTable(entry.Frame(), level+1)
		}
	}
	m.frames.Free(table)
	return freed + 1
}

// walkCreate recorre la jerarquía hasta la tabla hoja creando los niveles
// intermedios que falten. Devuelve el marco de la tabla del último nivel.
// Se llama con el lock tomado.
func (m *Manager) walkCreate(as *models.AddressSpace, virtualAddr uint64) (models.Frame, error) {
	indices := models.PageIndices(virtualAddr)
	current := as.Root

	for level := 0; level < models.PageLevels-1; level++ {
		entry := m.phys.ReadEntry(current, indices[level])
		if !entry.HasFlags(models.FlagPresent) {
			tableFrame, err := m.frames.Allocate()
			if err != nil {
				return models.InvalidFrame, fmt.Errorf("map de %#x: nivel %d: %w", virtualAddr, level+1, err)
			}
			m.phys.ZeroFrame(tableFrame)

			// Los permisos finales se deciden en la hoja; los niveles
			// intermedios quedan permisivos.
			var e models.PageEntry
			e.SetFrame(tableFrame)
			e.SetFlags(models.FlagPresent | models.FlagWritable | models.FlagUser)
			m.phys.WriteEntry(current, indices[level], e)
			entry = e
		}
		current = entry.Frame()
	}

	return current, nil
}

// walkLookup recorre la jerarquía sin crear niveles. Devuelve la tabla hoja y
// false si algún nivel intermedio no está presente. Se llama con el lock tomado.
func (m *Manager) walkLookup(as *models.AddressSpace, virtualAddr uint64) (models.Frame, bool) {
	indices := models.PageIndices(virtualAddr)
	current := as.Root

	for level := 0; level < models.PageLevels-1; level++ {
		entry := m.phys.ReadEntry(current, indices[level])
		if !entry.HasFlags(models.FlagPresent) {
			return models.InvalidFrame, false
		}
		current = entry.Frame()
	}
	return current, true
}

// ReadPhysical y WritePhysical exponen el acceso físico para los caminos que
// ya resolvieron la traducción (carga de segmentos, MMU simulada).

func (m *Manager) ReadPhysical(phys uint64, buf []byte) {
	m.phys.ReadAt(phys, buf)
}

func (m *Manager) WritePhysical(phys uint64, data []byte) {
	m.phys.WriteAt(phys, data)
}
