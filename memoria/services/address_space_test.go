package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisoputnfrba/kernel-core/memoria/models"
)

// fakeCache registra las invalidaciones que pide el Manager.
type fakeCache struct {
	pages   []uint64
	spaces  []uint32
	flushes int
}

func (c *fakeCache) InvalidatePage(asid uint32, page uint64) { c.pages = append(c.pages, page) }
func (c *fakeCache) InvalidateSpace(asid uint32)             { c.spaces = append(c.spaces, asid) }
func (c *fakeCache) InvalidateAll()                          { c.flushes++ }

type fakeCR3 struct{ root uint64 }

func (r *fakeCR3) SetRootTable(phys uint64) { r.root = phys }

func newTestManager(frames int) (*Manager, *fakeCache, *fakeCR3) {
	phys := NewPhysicalMemory(uint64(frames) * models.FrameSize)
	allocator := NewFrameAllocator(testMap(frames), &nullGate{})
	cache := &fakeCache{}
	cr3 := &fakeCR3{}
	return NewManager(phys, allocator, cache, cr3, &nullGate{}), cache, cr3
}

func TestMapTranslateRoundTrip(t *testing.T) {
	manager, _, _ := newTestManager(64)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	va := uint64(0x400000)
	require.NoError(t, manager.Map(space, va, models.InvalidFrame, models.FlagUser|models.FlagWritable))

	entry, err := manager.EntryFor(space, va)
	require.NoError(t, err)
	assert.True(t, entry.HasFlags(models.FlagPresent|models.FlagUser|models.FlagWritable))

	phys, err := manager.Translate(space, va+123)
	require.NoError(t, err)
	assert.Equal(t, entry.Frame().Address()+123, phys)
	assert.Equal(t, 1, space.MappedPages)
}

func TestMapRejectsUnalignedAndNonCanonical(t *testing.T) {
	manager, _, _ := newTestManager(16)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	err = manager.Map(space, 0x400010, models.InvalidFrame, models.FlagUser)
	assert.ErrorIs(t, err, models.ErrUnaligned)

	// Bit 47 en 1 con la parte alta en cero: no canónica.
	err = manager.Map(space, uint64(1)<<47, models.InvalidFrame, models.FlagUser)
	assert.ErrorIs(t, err, models.ErrUnaligned)
}

func TestMapTwiceFails(t *testing.T) {
	manager, _, _ := newTestManager(16)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	va := uint64(0x400000)
	require.NoError(t, manager.Map(space, va, models.InvalidFrame, models.FlagUser))
	err = manager.Map(space, va, models.InvalidFrame, models.FlagUser)
	assert.ErrorIs(t, err, models.ErrAlreadyMapped)
}

func TestTranslateUnmappedFails(t *testing.T) {
	manager, _, _ := newTestManager(16)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	_, err = manager.Translate(space, 0x400000)
	assert.ErrorIs(t, err, models.ErrNotMapped)
}

func TestUnmapReturnsFramesAndInvalidates(t *testing.T) {
	manager, cache, _ := newTestManager(64)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	va := uint64(0x400000)
	require.NoError(t, manager.MapRange(space, va, 3, models.FlagUser))
	libres := manager.frames.FreeCount()

	freed, err := manager.Unmap(space, va, 3)
	require.NoError(t, err)
	assert.Len(t, freed, 3)
	assert.Equal(t, libres+3, manager.frames.FreeCount())
	assert.Equal(t, 0, space.MappedPages)

	_, err = manager.Translate(space, va)
	assert.ErrorIs(t, err, models.ErrNotMapped)
	assert.Contains(t, cache.pages, models.PageNumber(va))
	assert.Contains(t, cache.pages, models.PageNumber(va+2*models.FrameSize))
}

func TestUnmapOfUnmappedFails(t *testing.T) {
	manager, _, _ := newTestManager(16)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	_, err = manager.Unmap(space, 0x400000, 1)
	assert.ErrorIs(t, err, models.ErrNotMapped)
}

func TestDestroyFreesEverything(t *testing.T) {
	manager, cache, _ := newTestManager(64)
	libresInicial := manager.frames.FreeCount()

	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	// Dos rangos lejanos para forzar jerarquías intermedias distintas.
	require.NoError(t, manager.MapRange(space, 0x400000, 4, models.FlagUser))
	require.NoError(t, manager.MapRange(space, 0x7F00000000, 2, models.FlagUser|models.FlagWritable))

	freed := manager.Destroy(space)
	assert.Greater(t, freed, 6, "deben liberarse las páginas y además las tablas")
	assert.Equal(t, libresInicial, manager.frames.FreeCount())
	assert.Contains(t, cache.spaces, space.ID)
}

func TestDestroyActiveSpacePanics(t *testing.T) {
	manager, _, _ := newTestManager(16)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)
	manager.Activate(space)

	assert.Panics(t, func() { manager.Destroy(space) })
}

func TestActivateProgramsRootAndFlushes(t *testing.T) {
	manager, cache, cr3 := newTestManager(16)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	manager.Activate(space)
	assert.Equal(t, space.Root.Address(), cr3.root)
	assert.GreaterOrEqual(t, cache.flushes, 1)
	assert.Equal(t, space, manager.Active())
}

func TestMapFailsCleanlyWithoutFrames(t *testing.T) {
	// Alcanza para la raíz pero no para toda la jerarquía de un mapeo.
	manager, _, _ := newTestManager(2)
	space, err := manager.NewAddressSpace()
	require.NoError(t, err)

	err = manager.Map(space, 0x400000, models.InvalidFrame, models.FlagUser)
	assert.ErrorIs(t, err, models.ErrOutOfMemory)
}
