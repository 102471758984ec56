package models

import memModels "github.com/sisoputnfrba/kernel-core/memoria/models"

// TLBEntry es una traducción cacheada: página virtual de un espacio de
// direcciones hacia su marco físico. LastUsed sostiene el reemplazo LRU.
type TLBEntry struct {
	ASID     uint32
	Page     uint64
	Frame    memModels.Frame
	LastUsed int64
}
