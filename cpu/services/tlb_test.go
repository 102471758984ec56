package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cpuModels "github.com/sisoputnfrba/kernel-core/cpu/models"
	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
)

func TestLookupMissThenHit(t *testing.T) {
	tlb := NewTLB(4, "FIFO", cpuModels.NewState())

	_, hit := tlb.Lookup(1, 10)
	assert.False(t, hit)

	tlb.Insert(1, 10, memModels.Frame(5))
	frame, hit := tlb.Lookup(1, 10)
	require.True(t, hit)
	assert.Equal(t, memModels.Frame(5), frame)
}

func TestEntriesAreKeyedBySpace(t *testing.T) {
	tlb := NewTLB(4, "FIFO", cpuModels.NewState())
	tlb.Insert(1, 10, memModels.Frame(5))

	_, hit := tlb.Lookup(2, 10)
	assert.False(t, hit, "la traducción de otro espacio no debe observarse")
}

func TestFIFOEvictsOldestEntry(t *testing.T) {
	tlb := NewTLB(2, "FIFO", cpuModels.NewState())
	tlb.Insert(1, 1, memModels.Frame(11))
	tlb.Insert(1, 2, memModels.Frame(12))
	tlb.Insert(1, 3, memModels.Frame(13))

	_, hit := tlb.Lookup(1, 1)
	assert.False(t, hit)
	_, hit = tlb.Lookup(1, 2)
	assert.True(t, hit)
	_, hit = tlb.Lookup(1, 3)
	assert.True(t, hit)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	tlb := NewTLB(2, "LRU", cpuModels.NewState())
	tlb.Insert(1, 1, memModels.Frame(11))
	tlb.Insert(1, 2, memModels.Frame(12))

	// Tocar la página 1 la vuelve la más reciente: la víctima pasa a ser la 2.
	_, hit := tlb.Lookup(1, 1)
	require.True(t, hit)

	tlb.Insert(1, 3, memModels.Frame(13))
	_, hit = tlb.Lookup(1, 2)
	assert.False(t, hit)
	_, hit = tlb.Lookup(1, 1)
	assert.True(t, hit)
}

func TestInvalidatePage(t *testing.T) {
	tlb := NewTLB(4, "FIFO", cpuModels.NewState())
	tlb.Insert(1, 10, memModels.Frame(5))
	tlb.Insert(1, 11, memModels.Frame(6))

	tlb.InvalidatePage(1, 10)
	_, hit := tlb.Lookup(1, 10)
	assert.False(t, hit)
	_, hit = tlb.Lookup(1, 11)
	assert.True(t, hit)
}

func TestInvalidateSpaceOnlyDropsThatSpace(t *testing.T) {
	tlb := NewTLB(4, "FIFO", cpuModels.NewState())
	tlb.Insert(1, 10, memModels.Frame(5))
	tlb.Insert(2, 10, memModels.Frame(6))

	tlb.InvalidateSpace(1)
	_, hit := tlb.Lookup(1, 10)
	assert.False(t, hit)
	frame, hit := tlb.Lookup(2, 10)
	require.True(t, hit)
	assert.Equal(t, memModels.Frame(6), frame)
}

func TestInvalidateAll(t *testing.T) {
	tlb := NewTLB(4, "FIFO", cpuModels.NewState())
	tlb.Insert(1, 10, memModels.Frame(5))
	tlb.Insert(2, 11, memModels.Frame(6))

	tlb.InvalidateAll()
	assert.Equal(t, 0, tlb.Size())
}

func TestZeroSizeDisablesTLB(t *testing.T) {
	tlb := NewTLB(0, "FIFO", cpuModels.NewState())
	tlb.Insert(1, 10, memModels.Frame(5))

	_, hit := tlb.Lookup(1, 10)
	assert.False(t, hit)
	assert.Equal(t, 0, tlb.Size())
}

func TestUnknownAlgorithmFallsBackToFIFO(t *testing.T) {
	tlb := NewTLB(2, "NRU", cpuModels.NewState())
	tlb.Insert(1, 1, memModels.Frame(11))
	tlb.Insert(1, 2, memModels.Frame(12))
	tlb.Insert(1, 3, memModels.Frame(13))

	_, hit := tlb.Lookup(1, 1)
	assert.False(t, hit, "con FIFO la entrada más vieja es la víctima")
}
