package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/kernel-core/kernel/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
)

// testImage arma una imagen típica: un segmento de código con la mitad de su
// tamaño en archivo y un segmento de datos solo bss.
func testImage() models.ImageDescriptor {
	code := make([]byte, 0x1000)
	for i := range code {
		code[i] = byte(i)
	}
	return models.ImageDescriptor{
		Entry: 0x400100,
		Segments: []models.Segment{
			{
				VirtualAddress: 0x400000,
				MemorySize:     0x2000,
				FileSize:       0x1000,
				Permissions:    models.SegmentPermissions{Readable: true, Executable: true},
				Content:        code,
			},
			{
				VirtualAddress: 0x402000,
				MemorySize:     0x1000,
				FileSize:       0,
				Permissions:    models.SegmentPermissions{Readable: true, Writable: true},
			},
		},
	}
}

func TestLoadCreatesReadyProcess(t *testing.T) {
	kernel := newTestKernel(t)

	tcb, err := kernel.Loader.Load(testImage(), 0)
	require.NoError(t, err)

	assert.Equal(t, models.EstadoReady, tcb.EstadoActual)
	assert.True(t, tcb.OwnsSpace)
	assert.Equal(t, uint64(0x400100), tcb.Context.RIP)
	assert.Equal(t, userStackTop-16, tcb.Context.RSP)
	assert.Equal(t, rflagsInterrupts, tcb.Context.RFLAGS)

	// 2 páginas de código + 1 de datos + 2 de stack de usuario.
	assert.Equal(t, 5, tcb.AddressSpace.MappedPages)
}

func TestLoadAppliesSegmentPermissions(t *testing.T) {
	kernel := newTestKernel(t)

	tcb, err := kernel.Loader.Load(testImage(), 0)
	require.NoError(t, err)
	space := tcb.AddressSpace

	code, err := kernel.Memory.EntryFor(space, 0x400000)
	require.NoError(t, err)
	assert.True(t, code.HasFlags(memModels.FlagUser))
	assert.False(t, code.HasFlags(memModels.FlagWritable))
	assert.False(t, code.HasFlags(memModels.FlagNoExecute))

	data, err := kernel.Memory.EntryFor(space, 0x402000)
	require.NoError(t, err)
	assert.True(t, data.HasFlags(memModels.FlagUser|memModels.FlagWritable|memModels.FlagNoExecute))

	stack, err := kernel.Memory.EntryFor(space, userStackTop-memModels.FrameSize)
	require.NoError(t, err)
	assert.True(t, stack.HasFlags(memModels.FlagUser|memModels.FlagWritable|memModels.FlagNoExecute))
}

func TestLoadCopiesContentAndZeroFillsBSS(t *testing.T) {
	kernel := newTestKernel(t)

	tcb, err := kernel.Loader.Load(testImage(), 0)
	require.NoError(t, err)
	space := tcb.AddressSpace

	phys, err := kernel.Memory.Translate(space, 0x400000)
	require.NoError(t, err)
	buf := make([]byte, 16)
	kernel.Memory.ReadPhysical(phys, buf)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, buf)

	// La segunda página del código no tiene respaldo en archivo: debe estar
	// en cero, igual que el segmento de datos.
	phys, err = kernel.Memory.Translate(space, 0x401000)
	require.NoError(t, err)
	kernel.Memory.ReadPhysical(phys, buf)
	assert.Equal(t, make([]byte, 16), buf)
}

func TestLoadRejectsEmptyImage(t *testing.T) {
	kernel := newTestKernel(t)

	_, err := kernel.Loader.Load(models.ImageDescriptor{Entry: 0x1000}, 0)
	assert.ErrorIs(t, err, models.ErrNoSegments)
}

func TestLoadRejectsOverlappingSegments(t *testing.T) {
	kernel := newTestKernel(t)
	libres := kernel.Frames.FreeCount()

	img := models.ImageDescriptor{
		Entry: 0x400000,
		Segments: []models.Segment{
			// Redondeado a páginas ocupa [0x400000, 0x402000): pisa al segundo.
			{VirtualAddress: 0x400000, MemorySize: 0x1800, Permissions: models.SegmentPermissions{Readable: true}},
			{VirtualAddress: 0x401000, MemorySize: 0x1000, Permissions: models.SegmentPermissions{Readable: true}},
		},
	}
	_, err := kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, models.ErrSegmentOverlap)
	assert.Equal(t, libres, kernel.Frames.FreeCount(), "un load fallido no debe retener marcos")
}

func TestLoadRejectsSegmentOverStack(t *testing.T) {
	kernel := newTestKernel(t)

	img := models.ImageDescriptor{
		Entry: 0x400000,
		Segments: []models.Segment{
			{VirtualAddress: userStackTop - memModels.FrameSize, MemorySize: 0x1000,
				Permissions: models.SegmentPermissions{Readable: true}},
		},
	}
	_, err := kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, models.ErrSegmentOverlap)
}

func TestLoadRejectsUnalignedSegment(t *testing.T) {
	kernel := newTestKernel(t)

	img := models.ImageDescriptor{
		Entry: 0x400800,
		Segments: []models.Segment{
			{VirtualAddress: 0x400800, MemorySize: 0x1000, Permissions: models.SegmentPermissions{Readable: true}},
		},
	}
	_, err := kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, models.ErrSegmentUnaligned)

	img.Segments[0].VirtualAddress = uint64(1) << 47
	_, err = kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, models.ErrSegmentUnaligned)
}

func TestLoadRejectsInconsistentSizes(t *testing.T) {
	kernel := newTestKernel(t)

	img := models.ImageDescriptor{
		Entry: 0x400000,
		Segments: []models.Segment{
			{VirtualAddress: 0x400000, MemorySize: 0x1000, FileSize: 0x2000,
				Permissions: models.SegmentPermissions{Readable: true}, Content: make([]byte, 0x2000)},
		},
	}
	_, err := kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, models.ErrSegmentSize)

	img.Segments[0].FileSize = 16
	img.Segments[0].Content = make([]byte, 8)
	_, err = kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, models.ErrSegmentSize)
}

func TestLoadRollsBackWhenFramesRunOut(t *testing.T) {
	kernel := newTestKernel(t)
	libres := kernel.Frames.FreeCount()

	img := models.ImageDescriptor{
		Entry: 0x400000,
		Segments: []models.Segment{
			// Más grande que toda la memoria física: agota los marcos a mitad
			// del mapeo.
			{VirtualAddress: 0x400000, MemorySize: 32 * 1024 * 1024,
				Permissions: models.SegmentPermissions{Readable: true}},
		},
	}
	_, err := kernel.Loader.Load(img, 0)
	assert.ErrorIs(t, err, memModels.ErrOutOfMemory)
	assert.Equal(t, libres, kernel.Frames.FreeCount(), "todos los marcos deben volver al pool")
}

func TestLoadRollsBackWhenTaskCreationFails(t *testing.T) {
	kernel := newTestKernel(t)
	libres := kernel.Frames.FreeCount()

	_, err := kernel.Loader.Load(testImage(), 99)
	assert.ErrorIs(t, err, ErrInvalidPriority)
	assert.Equal(t, libres, kernel.Frames.FreeCount())
}

func TestLoadedProcessRunsWithItsOwnSpace(t *testing.T) {
	kernel := newTestKernel(t)

	tcb, err := kernel.Loader.Load(testImage(), 0)
	require.NoError(t, err)

	tick(t, kernel)
	require.Equal(t, tcb.PID, kernel.Scheduler.RunningPID())
	assert.Equal(t, tcb.AddressSpace.Root.Address(), kernel.CPU.RootTable(),
		"la raíz activa debe seguir a la tarea en ejecución")

	// Al terminar, vuelve idle con el espacio de kernel y el espacio del
	// proceso se destruye entero.
	kernel.Scheduler.TerminateCurrent(nil, "fin normal")
	assert.Equal(t, kernel.KernelSpace.Root.Address(), kernel.CPU.RootTable())
}
