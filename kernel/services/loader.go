package services

import (
	"fmt"
	"log/slog"
	"sort"

	cpuModels "github.com/sisoputnfrba/kernel-core/cpu/models"
	"github.com/sisoputnfrba/kernel-core/kernel/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
	memServices "github.com/sisoputnfrba/kernel-core/memoria/services"
)

// userStackTop es la dirección virtual donde termina el stack de usuario de
// todo proceso cargado; el stack crece hacia abajo desde ahí.
const userStackTop uint64 = 0x0000_7FFF_FFFF_0000

// Loader construye procesos a partir de imágenes ejecutables ya parseadas:
// valida los segmentos, arma el espacio de direcciones, copia el contenido
// inicial y registra la tarea en el scheduler.
type Loader struct {
	memory         *memServices.Manager
	scheduler      *Scheduler
	userStackPages int
}

func NewLoader(memory *memServices.Manager, scheduler *Scheduler, userStackPages int) *Loader {
	if userStackPages < 1 {
		userStackPages = 1
	}
	return &Loader{memory: memory, scheduler: scheduler, userStackPages: userStackPages}
}

// Load crea un proceso nuevo a partir de una imagen. Si cualquier paso falla,
// todo lo mapeado hasta ese momento se deshace: no quedan segmentos parciales.
func (l *Loader) Load(img models.ImageDescriptor, priority int) (*models.TCB, error) {
	if err := l.validate(img); err != nil {
		return nil, err
	}

	space, err := l.memory.NewAddressSpace()
	if err != nil {
		return nil, fmt.Errorf("no se pudo crear el espacio de direcciones: %w", err)
	}

	for _, seg := range img.Segments {
		if err := l.mapSegment(space, seg); err != nil {
			l.memory.Destroy(space)
			return nil, err
		}
	}

	stackBase := userStackTop - uint64(l.userStackPages)*memModels.FrameSize
	stackFlags := memModels.FlagUser | memModels.FlagWritable | memModels.FlagNoExecute
	if err := l.memory.MapRange(space, stackBase, l.userStackPages, stackFlags); err != nil {
		l.memory.Destroy(space)
		return nil, fmt.Errorf("no se pudo mapear el stack de usuario: %w", err)
	}

	ctx := initialContext(img.Entry)
	tcb, err := l.scheduler.CreateTask(ctx, space, priority, true)
	if err != nil {
		l.memory.Destroy(space)
		return nil, err
	}
	slog.Info(fmt.Sprintf("## (%d) Proceso cargado - Entry: %#x - Segmentos: %d", tcb.PID, img.Entry, len(img.Segments)))
	return tcb, nil
}

// validate repite la validación semántica de la imagen aunque venga de un
// parser confiable: alineación, tamaños y solapamiento de rangos (incluido el
// rango del stack de usuario).
func (l *Loader) validate(img models.ImageDescriptor) error {
	if len(img.Segments) == 0 {
		return models.ErrNoSegments
	}

	type rango struct{ base, end uint64 }
	rangos := make([]rango, 0, len(img.Segments)+1)

	for i, seg := range img.Segments {
		if !memModels.PageAligned(seg.VirtualAddress) || !memModels.Canonical(seg.VirtualAddress) {
			return fmt.Errorf("%w: segmento %d en %#x", models.ErrSegmentUnaligned, i, seg.VirtualAddress)
		}
		if seg.MemorySize == 0 || seg.FileSize > seg.MemorySize {
			return fmt.Errorf("%w: segmento %d (file=%d, mem=%d)", models.ErrSegmentSize, i, seg.FileSize, seg.MemorySize)
		}
		if uint64(len(seg.Content)) != seg.FileSize {
			return fmt.Errorf("%w: segmento %d trae %d bytes y declara %d", models.ErrSegmentSize, i, len(seg.Content), seg.FileSize)
		}
		rangos = append(rangos, rango{seg.VirtualAddress, seg.VirtualAddress + roundUpPages(seg.MemorySize)})
	}

	stackBase := userStackTop - uint64(l.userStackPages)*memModels.FrameSize
	rangos = append(rangos, rango{stackBase, userStackTop})

	sort.Slice(rangos, func(i, j int) bool { return rangos[i].base < rangos[j].base })
	for i := 1; i < len(rangos); i++ {
		if rangos[i].base < rangos[i-1].end {
			return fmt.Errorf("%w: %#x solapa con el rango que termina en %#x",
				models.ErrSegmentOverlap, rangos[i].base, rangos[i-1].end)
		}
	}
	return nil
}

// mapSegment mapea las páginas del segmento y copia su contenido inicial. Los
// marcos vienen en cero del allocator, así que la porción bss (entre FileSize
// y MemorySize) no necesita relleno explícito.
func (l *Loader) mapSegment(space *memModels.AddressSpace, seg models.Segment) error {
	flags := memModels.FlagUser
	if seg.Permissions.Writable {
		flags |= memModels.FlagWritable
	}
	if !seg.Permissions.Executable {
		flags |= memModels.FlagNoExecute
	}
	pages := int(roundUpPages(seg.MemorySize) >> memModels.PageShift)
	if err := l.memory.MapRange(space, seg.VirtualAddress, pages, flags); err != nil {
		return fmt.Errorf("no se pudo mapear el segmento en %#x: %w", seg.VirtualAddress, err)
	}

	for off := uint64(0); off < seg.FileSize; {
		va := seg.VirtualAddress + off
		phys, err := l.memory.Translate(space, va)
		if err != nil {
			return fmt.Errorf("traducción inconsistente en %#x: %w", va, err)
		}
		n := uint64(memModels.FrameSize) - va%memModels.FrameSize
		if resto := seg.FileSize - off; n > resto {
			n = resto
		}
		l.memory.WritePhysical(phys, seg.Content[off:off+n])
		off += n
	}
	return nil
}

// initialContext arma el contexto de arranque del proceso: RIP en el entry
// point, RSP al tope del stack de usuario con el margen que exige la ABI y
// RFLAGS con interrupciones habilitadas.
func initialContext(entry uint64) cpuModels.Context {
	return cpuModels.Context{
		RIP:    entry,
		RSP:    userStackTop - 16,
		RFLAGS: rflagsInterrupts,
	}
}

func roundUpPages(size uint64) uint64 {
	return (size + memModels.FrameSize - 1) &^ uint64(memModels.FrameSize-1)
}
