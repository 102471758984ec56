package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	cpuModels "github.com/sisoputnfrba/kernel-core/cpu/models"
	cpuServices "github.com/sisoputnfrba/kernel-core/cpu/services"
	"github.com/sisoputnfrba/kernel-core/kernel/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
	memServices "github.com/sisoputnfrba/kernel-core/memoria/services"
	"github.com/sisoputnfrba/kernel-core/utils/fatal"
	"github.com/sisoputnfrba/kernel-core/utils/list"
	"github.com/sisoputnfrba/kernel-core/utils/spinlock"
)

var (
	ErrUnknownTask     = errors.New("no existe una tarea con ese PID")
	ErrInvalidPriority = errors.New("prioridad fuera de rango")
)

const (
	// kernelStackPages es el tamaño del stack de kernel de cada tarea,
	// asignado en el heap del kernel.
	kernelStackPages = 4

	// idlePID es el PID fijo de la tarea idle; los procesos cargados
	// arrancan en 1.
	idlePID uint = 0

	// rflagsInterrupts es el valor inicial de RFLAGS de toda tarea: bit 1
	// siempre en 1 y bit IF en 1 (interrupciones habilitadas).
	rflagsInterrupts uint64 = 0x202
)

// Scheduler planifica tareas con round robin apropiativo por clases de
// prioridad. La clase 0 es la más alta; dentro de una clase el orden es FIFO.
// La tarea idle corre únicamente cuando no hay ninguna tarea lista y nunca
// entra en las colas.
type Scheduler struct {
	lock       *spinlock.SpinLock
	cpu        *cpuModels.State
	dispatcher *cpuServices.Dispatcher
	memory     *memServices.Manager
	heap       *memServices.Heap

	kernelSpace *memModels.AddressSpace

	readyQueues []*list.ArrayList[*models.TCB]
	blocked     *list.ArrayList[*models.TCB]
	tasks       map[uint]*models.TCB

	running *models.TCB
	idle    *models.TCB

	nextPID    uint
	sliceTicks int
}

func NewScheduler(cpu *cpuModels.State, dispatcher *cpuServices.Dispatcher, memory *memServices.Manager,
	heap *memServices.Heap, kernelSpace *memModels.AddressSpace, priorityLevels, sliceTicks int,
	gate spinlock.IntGate) *Scheduler {
	if priorityLevels < 1 {
		priorityLevels = 1
	}
	if sliceTicks < 1 {
		sliceTicks = 1
	}
	queues := make([]*list.ArrayList[*models.TCB], priorityLevels)
	for i := range queues {
		queues[i] = &list.ArrayList[*models.TCB]{}
	}
	return &Scheduler{
		lock:        spinlock.New("scheduler", gate),
		cpu:         cpu,
		dispatcher:  dispatcher,
		memory:      memory,
		heap:        heap,
		kernelSpace: kernelSpace,
		readyQueues: queues,
		blocked:     &list.ArrayList[*models.TCB]{},
		tasks:       make(map[uint]*models.TCB),
		sliceTicks:  sliceTicks,
	}
}

// Start crea la tarea idle y la deja en ejecución. Se llama una sola vez
// durante el boot, con el espacio de kernel ya activo.
func (s *Scheduler) Start() {
	guard := s.lock.Acquire()
	defer guard.Release()

	idle := &models.TCB{
		PID:          idlePID,
		Priority:     len(s.readyQueues),
		AddressSpace: s.kernelSpace,
		ME:           make(map[models.Estado]int),
		MT:           make(map[models.Estado]time.Duration),
	}
	idle.Context.RFLAGS = rflagsInterrupts
	TransitionState(idle, models.EstadoReady)
	TransitionState(idle, models.EstadoExec)

	s.idle = idle
	s.tasks[idlePID] = idle
	s.running = idle
	s.cpu.SetContextID(int64(idlePID))
	s.dispatcher.SetResumeContext(&idle.Context)
}

// CreateTask registra una tarea nueva en estado READY. Le asigna PID, quantum
// completo y un stack de kernel propio tomado del heap; si el heap no puede
// satisfacer el stack, la creación falla limpiamente.
func (s *Scheduler) CreateTask(ctx cpuModels.Context, space *memModels.AddressSpace, priority int, ownsSpace bool) (*models.TCB, error) {
	if priority < 0 || priority >= len(s.readyQueues) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}
	stackSize := uint64(kernelStackPages * memModels.FrameSize)
	stack, err := s.heap.Alloc(stackSize, memModels.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("no se pudo asignar el stack de kernel: %w", err)
	}

	guard := s.lock.Acquire()
	defer guard.Release()

	s.nextPID++
	tcb := &models.TCB{
		PID:             s.nextPID,
		Priority:        priority,
		SliceRemaining:  s.sliceTicks,
		Context:         ctx,
		KernelStack:     stack,
		KernelStackSize: stackSize,
		AddressSpace:    space,
		OwnsSpace:       ownsSpace,
		ME:              make(map[models.Estado]int),
		MT:              make(map[models.Estado]time.Duration),
	}
	TransitionState(tcb, models.EstadoReady)
	s.readyQueues[priority].Add(tcb)
	s.tasks[tcb.PID] = tcb
	return tcb, nil
}

// OnTick es el handler de planificación del timer: despierta a las tareas
// dormidas cuyo deadline venció, descuenta el quantum de la tarea en ejecución
// y la desaloja si se agotó y hay otra lista. Si no hay otra lista, la tarea
// renueva su quantum y sigue.
func (s *Scheduler) OnTick(frame *cpuModels.InterruptFrame) {
	guard := s.lock.Acquire()
	defer guard.Release()

	s.wakeSleepersLocked(s.cpu.Ticks())

	if s.running == s.idle {
		if next, ok := s.pickNextLocked(); ok {
			TransitionState(s.idle, models.EstadoReady)
			s.switchLocked(frame, next)
		}
		return
	}

	s.running.SliceRemaining--
	if s.running.SliceRemaining > 0 {
		return
	}
	next, ok := s.pickNextLocked()
	if !ok {
		s.running.SliceRemaining = s.sliceTicks
		return
	}
	out := s.running
	TransitionState(out, models.EstadoReady)
	s.readyQueues[out.Priority].Add(out)
	s.switchLocked(frame, next)
}

// Yield cede voluntariamente el resto del quantum. Si no hay otra tarea lista,
// la que cede simplemente renueva su quantum.
func (s *Scheduler) Yield() {
	guard := s.lock.Acquire()
	defer guard.Release()

	if s.running == s.idle {
		return
	}
	next, ok := s.pickNextLocked()
	if !ok {
		s.running.SliceRemaining = s.sliceTicks
		return
	}
	out := s.running
	TransitionState(out, models.EstadoReady)
	s.readyQueues[out.Priority].Add(out)
	s.switchLocked(nil, next)
}

// Sleep bloquea la tarea en ejecución hasta que pasen la cantidad de ticks
// indicada del timer.
func (s *Scheduler) Sleep(ticks uint64) {
	s.blockCurrent(s.cpu.Ticks() + ticks)
}

// BlockCurrent bloquea la tarea en ejecución hasta un Wake explícito.
func (s *Scheduler) BlockCurrent() {
	s.blockCurrent(0)
}

func (s *Scheduler) blockCurrent(wakeTick uint64) {
	guard := s.lock.Acquire()
	defer guard.Release()

	if s.running == s.idle {
		fatal.Kernel("la tarea idle no puede bloquearse")
	}
	out := s.running
	out.WakeTick = wakeTick
	TransitionState(out, models.EstadoBlocked)
	s.blocked.Add(out)
	s.switchLocked(nil, s.pickNextOrIdleLocked())
}

// Wake desbloquea una tarea que esperaba una condición externa.
func (s *Scheduler) Wake(pid uint) error {
	guard := s.lock.Acquire()
	defer guard.Release()

	tcb, _, ok := s.blocked.Find(func(b *models.TCB) bool { return b.PID == pid })
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, pid)
	}
	s.wakeLocked(tcb)
	return nil
}

// TerminateCurrent finaliza la tarea en ejecución y retoma la siguiente lista
// (o idle). La liberación de recursos ocurre después de la transición a EXIT:
// primero la tarea deja de ser planificable, después se devuelven su stack y
// su espacio de direcciones.
func (s *Scheduler) TerminateCurrent(frame *cpuModels.InterruptFrame, motivo string) {
	guard := s.lock.Acquire()
	defer guard.Release()

	if s.running == s.idle {
		fatal.Kernel("la tarea idle no puede finalizar")
	}
	out := s.running
	TransitionState(out, models.EstadoExit)
	slog.Info(fmt.Sprintf("## (%d) Finaliza el proceso - Motivo: %s", out.PID, motivo))
	s.switchLocked(frame, s.pickNextOrIdleLocked())
	s.reclaimLocked(out)
}

// Terminate finaliza una tarea por PID, esté lista, bloqueada o en ejecución.
func (s *Scheduler) Terminate(pid uint, motivo string) error {
	guard := s.lock.Acquire()
	defer guard.Release()

	tcb, ok := s.tasks[pid]
	if !ok || tcb == s.idle {
		return fmt.Errorf("%w: %d", ErrUnknownTask, pid)
	}
	if tcb != s.running {
		s.readyQueues[tcb.Priority].RemoveWhere(func(b *models.TCB) bool { return b == tcb })
		s.blocked.RemoveWhere(func(b *models.TCB) bool { return b == tcb })
	}
	TransitionState(tcb, models.EstadoExit)
	slog.Info(fmt.Sprintf("## (%d) Finaliza el proceso - Motivo: %s", tcb.PID, motivo))
	if tcb == s.running {
		s.switchLocked(nil, s.pickNextOrIdleLocked())
	}
	s.reclaimLocked(tcb)
	return nil
}

// RunningPID devuelve el PID de la tarea en ejecución.
func (s *Scheduler) RunningPID() uint {
	guard := s.lock.Acquire()
	defer guard.Release()
	return s.running.PID
}

// RunningIsUser indica si la tarea en ejecución es un proceso de usuario
// (cualquiera menos idle).
func (s *Scheduler) RunningIsUser() bool {
	guard := s.lock.Acquire()
	defer guard.Release()
	return s.running != s.idle
}

// Task devuelve el TCB de una tarea viva por PID.
func (s *Scheduler) Task(pid uint) (*models.TCB, bool) {
	guard := s.lock.Acquire()
	defer guard.Release()
	tcb, ok := s.tasks[pid]
	return tcb, ok
}

// ReadyCount devuelve la cantidad de tareas listas sumando todas las clases.
func (s *Scheduler) ReadyCount() int {
	guard := s.lock.Acquire()
	defer guard.Release()
	total := 0
	for _, queue := range s.readyQueues {
		total += queue.Size()
	}
	return total
}

// switchLocked guarda el contexto de la tarea saliente y retoma la entrante.
// El llamador ya dispuso de la saliente (cola READY, BLOCKED o EXIT). Si el
// cambio ocurre dentro de un trap, frame trae el contexto vivo de la saliente
// y se reescribe con el de la entrante antes de volver al hardware.
func (s *Scheduler) switchLocked(frame *cpuModels.InterruptFrame, next *models.TCB) {
	out := s.running
	if frame != nil {
		out.Context = frame.Context
		frame.Context = next.Context
	}
	next.SliceRemaining = s.sliceTicks
	TransitionState(next, models.EstadoExec)
	s.running = next
	s.dispatcher.SetResumeContext(&next.Context)
	s.cpu.SetContextID(int64(next.PID))
	if next.AddressSpace != s.memory.Active() {
		s.memory.Activate(next.AddressSpace)
	}
}

func (s *Scheduler) pickNextLocked() (*models.TCB, bool) {
	for _, queue := range s.readyQueues {
		if tcb, err := queue.Dequeue(); err == nil {
			return tcb, true
		}
	}
	return nil, false
}

func (s *Scheduler) pickNextOrIdleLocked() *models.TCB {
	if next, ok := s.pickNextLocked(); ok {
		return next
	}
	return s.idle
}

func (s *Scheduler) wakeSleepersLocked(now uint64) {
	var vencidas []*models.TCB
	for _, tcb := range s.blocked.GetAll() {
		if tcb.WakeTick != 0 && now >= tcb.WakeTick {
			vencidas = append(vencidas, tcb)
		}
	}
	for _, tcb := range vencidas {
		s.wakeLocked(tcb)
	}
}

func (s *Scheduler) wakeLocked(tcb *models.TCB) {
	s.blocked.RemoveWhere(func(b *models.TCB) bool { return b == tcb })
	tcb.WakeTick = 0
	TransitionState(tcb, models.EstadoReady)
	s.readyQueues[tcb.Priority].Add(tcb)
}

func (s *Scheduler) reclaimLocked(tcb *models.TCB) {
	LogMetrics(tcb)
	s.heap.Dealloc(tcb.KernelStack, tcb.KernelStackSize, memModels.FrameSize)
	if tcb.OwnsSpace {
		s.memory.Destroy(tcb.AddressSpace)
	}
	delete(s.tasks, tcb.PID)
}
