package services

import (
	"fmt"

	memModels "github.com/sisoputnfrba/kernel-core/memoria/models"
	memServices "github.com/sisoputnfrba/kernel-core/memoria/services"
)

// MMU es el camino de traducción de la CPU: consulta la TLB y ante un miss
// recorre las tablas del espacio de direcciones vía el administrador de
// memoria, cacheando el resultado.
type MMU struct {
	tlb    *TLB
	memory *memServices.Manager
}

// NewMMU crea la unidad de traducción.
func NewMMU(tlb *TLB, memory *memServices.Manager) *MMU {
	return &MMU{tlb: tlb, memory: memory}
}

// Translate resuelve una dirección virtual a física para el espacio dado.
func (u *MMU) Translate(as *memModels.AddressSpace, virtualAddr uint64) (uint64, error) {
	page := memModels.PageNumber(virtualAddr)
	offset := virtualAddr & (memModels.FrameSize - 1)

	if frame, hit := u.tlb.Lookup(as.ID, page); hit {
		return frame.Address() | offset, nil
	}

	phys, err := u.memory.Translate(as, virtualAddr)
	if err != nil {
		return 0, err
	}
	u.tlb.Insert(as.ID, page, memModels.FrameForAddress(phys))
	return phys, nil
}

// Read copia bytes desde la memoria del espacio dado, traduciendo página por
// página.
func (u *MMU) Read(as *memModels.AddressSpace, virtualAddr uint64, buf []byte) error {
	return u.walk(as, virtualAddr, uint64(len(buf)), func(phys uint64, off, n uint64) {
		u.memory.ReadPhysical(phys, buf[off:off+n])
	})
}

// Write copia bytes hacia la memoria del espacio dado, traduciendo página por
// página.
func (u *MMU) Write(as *memModels.AddressSpace, virtualAddr uint64, data []byte) error {
	return u.walk(as, virtualAddr, uint64(len(data)), func(phys uint64, off, n uint64) {
		u.memory.WritePhysical(phys, data[off:off+n])
	})
}

// walk recorre [virtualAddr, virtualAddr+length) de a páginas, invocando
// access con la dirección física de cada tramo contiguo.
func (u *MMU) walk(as *memModels.AddressSpace, virtualAddr, length uint64, access func(phys, off, n uint64)) error {
	var done uint64
	for done < length {
		va := virtualAddr + done
		phys, err := u.Translate(as, va)
		if err != nil {
			return fmt.Errorf("acceso a %#x: %w", va, err)
		}

		pageRemain := memModels.FrameSize - (va & (memModels.FrameSize - 1))
		n := length - done
		if n > pageRemain {
			n = pageRemain
		}
		access(phys, done, n)
		done += n
	}
	return nil
}
