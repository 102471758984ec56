package services

import (
	"fmt"
	"log/slog"
	"time"

	cpuModels "github.com/sisoputnfrba/kernel-core/cpu/models"
	cpuServices "github.com/sisoputnfrba/kernel-core/cpu/services"
	"github.com/sisoputnfrba/kernel-core/kernel/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
	memServices "github.com/sisoputnfrba/kernel-core/memoria/services"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
)

// picOffset es la base a la que se remapea el PIC: el IRQ 0 (timer) queda en
// el vector 32, primer vector fuera de las excepciones de arquitectura.
const picOffset uint8 = 0x20

// Kernel agrupa todos los servicios ya inicializados. Se arma una sola vez en
// InitKernel y se pasa explícitamente; ningún servicio vive en una variable
// global.
type Kernel struct {
	Config *models.Config

	CPU      *cpuModels.State
	Physical *memServices.PhysicalMemory
	Frames   *memServices.FrameAllocator
	TLB      *cpuServices.TLB
	Memory   *memServices.Manager
	Heap     *memServices.Heap
	MMU      *cpuServices.MMU

	PIC        *cpuServices.PIC
	Dispatcher *cpuServices.Dispatcher
	Timer      *cpuServices.Timer

	Scheduler *Scheduler
	Loader    *Loader

	// KernelSpace es el espacio de direcciones del kernel: imagen del kernel
	// con identidad física más el heap. Queda activo durante el boot y lo
	// comparte la tarea idle.
	KernelSpace *memModels.AddressSpace
}

// DefaultMemoryMap arma el mapa de memoria física para una máquina simple:
// una única región usable que cubre toda la memoria configurada.
func DefaultMemoryMap(cfg *models.Config) memModels.MemoryMap {
	return memModels.MemoryMap{
		{Base: 0, Length: cfg.MemorySize, Usable: true},
	}
}

// InitKernel ejecuta la secuencia de boot completa: memoria física, allocator
// de marcos, espacio de kernel, heap, interrupciones y scheduler. Al volver,
// la tarea idle está en ejecución y las interrupciones habilitadas; solo falta
// cargar procesos y arrancar el timer.
func InitKernel(cfg *models.Config, memoryMap memModels.MemoryMap) (*Kernel, error) {
	cpu := cpuModels.NewState()

	phys := memServices.NewPhysicalMemory(memoryMap.HighestAddress())
	frames := memServices.NewFrameAllocator(memoryMap, cpu)
	frames.Reserve(0, cfg.KernelImageBytes)

	tlb := cpuServices.NewTLB(cfg.TlbEntries, cfg.TlbReplacement, cpu)
	memory := memServices.NewManager(phys, frames, tlb, cpu, cpu)

	kernelSpace, err := memory.NewAddressSpace()
	if err != nil {
		return nil, fmt.Errorf("no se pudo crear el espacio de kernel: %w", err)
	}
	// La imagen del kernel se mapea con identidad: virtual == física. Son los
	// marcos reservados del comienzo de la memoria.
	for va := uint64(0); va < cfg.KernelImageBytes; va += memModels.FrameSize {
		frame := memModels.FrameForAddress(va)
		if err := memory.Map(kernelSpace, va, frame, memModels.FlagWritable); err != nil {
			return nil, fmt.Errorf("no se pudo mapear la imagen del kernel: %w", err)
		}
	}
	memory.Activate(kernelSpace)

	heap, err := memServices.NewHeap(memory, kernelSpace, cfg.HeapBase, cfg.HeapInitialPages, cfg.HeapMaxPages, cpu)
	if err != nil {
		return nil, fmt.Errorf("no se pudo inicializar el heap: %w", err)
	}

	pic := cpuServices.NewPIC(cpu)
	pic.Remap(picOffset)
	pic.UnmaskIRQ(0)

	dispatcher := cpuServices.NewDispatcher(cpu, pic, cpu)
	scheduler := NewScheduler(cpu, dispatcher, memory, heap, kernelSpace,
		cfg.PriorityLevels, cfg.TimeSliceTicks, cpu)
	loader := NewLoader(memory, scheduler, cfg.UserStackPages)

	installHandlers(dispatcher, cpu, pic, scheduler)

	scheduler.Start()
	dispatcher.Enable()

	kernel := &Kernel{
		Config:      cfg,
		CPU:         cpu,
		Physical:    phys,
		Frames:      frames,
		TLB:         tlb,
		Memory:      memory,
		Heap:        heap,
		MMU:         cpuServices.NewMMU(tlb, memory),
		PIC:         pic,
		Dispatcher:  dispatcher,
		Timer:       cpuServices.NewTimer(dispatcher, time.Duration(cfg.TickIntervalMs)*time.Millisecond),
		Scheduler:   scheduler,
		Loader:      loader,
		KernelSpace: kernelSpace,
	}
	slog.Info(fmt.Sprintf("## Kernel inicializado - Memoria: %d bytes - Marcos libres: %d",
		cfg.MemorySize, frames.FreeCount()))
	return kernel, nil
}

// installHandlers registra los handlers que reemplazan a los por defecto: el
// timer planifica, los fallos atribuibles a modo usuario terminan al proceso y
// el resto de las excepciones sigue siendo fatal.
func installHandlers(dispatcher *cpuServices.Dispatcher, cpu *cpuModels.State, pic *cpuServices.PIC, scheduler *Scheduler) {
	dispatcher.Install(cpuModels.VectorTimer, func(frame *cpuModels.InterruptFrame) {
		cpu.AdvanceTick()
		scheduler.OnTick(frame)
		pic.EOI()
	})

	dispatcher.Install(cpuModels.VectorPageFault, func(frame *cpuModels.InterruptFrame) {
		addr := cpu.FaultAddress()
		if frame.ErrorCode&cpuModels.PageFaultErrUser != 0 && scheduler.RunningIsUser() {
			pid := scheduler.RunningPID()
			slog.Error(fmt.Sprintf("## (%d) Page fault en modo usuario - Dirección: %#x - Código: %#x",
				pid, addr, frame.ErrorCode))
			scheduler.TerminateCurrent(frame, "page fault")
			return
		}
		fatal.Trap(fatal.Report{
			Reason:  "page fault en contexto de kernel",
			Vector:  int(cpuModels.VectorPageFault),
			Address: addr,
			TaskID:  int(cpu.ContextID()),
		})
	})

	terminaSiUsuario := func(motivo string) cpuServices.Handler {
		return func(frame *cpuModels.InterruptFrame) {
			if scheduler.RunningIsUser() {
				pid := scheduler.RunningPID()
				slog.Error(fmt.Sprintf("## (%d) %s en modo usuario", pid, motivo))
				scheduler.TerminateCurrent(frame, motivo)
				return
			}
			fatal.Trap(fatal.Report{
				Reason: fmt.Sprintf("%s en contexto de kernel", motivo),
				Vector: int(frame.Vector),
				TaskID: int(cpu.ContextID()),
			})
		}
	}
	dispatcher.Install(cpuModels.VectorInvalidOpcode, terminaSiUsuario("invalid opcode"))
	dispatcher.Install(cpuModels.VectorGeneralProtect, terminaSiUsuario("general protection fault"))
	dispatcher.Install(cpuModels.VectorDivideError, terminaSiUsuario("divide error"))

	dispatcher.Install(cpuModels.VectorDoubleFault, func(frame *cpuModels.InterruptFrame) {
		fatal.Trap(fatal.Report{
			Reason:  "double fault",
			Vector:  int(cpuModels.VectorDoubleFault),
			Address: cpu.FaultAddress(),
			TaskID:  int(cpu.ContextID()),
		})
	})
}
