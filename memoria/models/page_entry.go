package models

// La jerarquía de tablas de páginas sigue el formato de x86_64: cuatro niveles,
// 512 entradas de 64 bits por tabla, índices de 9 bits por nivel. Cada tabla
// ocupa exactamente un marco físico.

const (
	// PageLevels es la cantidad de niveles de paginación de x86_64.
	PageLevels = 4

	// EntriesPerTable es la cantidad de entradas de una tabla (4096 / 8).
	EntriesPerTable = 512

	// entryPhysMask extrae la dirección física apuntada por una entrada:
	// para esta arquitectura son los bits 12 a 51.
	entryPhysMask = uint64(0x000ffffffffff000)

	// canonicalBits son los bits significativos de una dirección virtual.
	canonicalBits = 48
)

// pageLevelShifts es el desplazamiento del índice de cada nivel dentro de la
// dirección virtual (PML4, PDPT, PD, PT).
var pageLevelShifts = [PageLevels]uint8{39, 30, 21, 12}

// EntryFlag es un flag aplicable a una entrada de tabla de páginas.
type EntryFlag uint64

const (
	// FlagPresent se setea cuando la página está mapeada en memoria.
	FlagPresent EntryFlag = 1 << 0

	// FlagWritable se setea si la página admite escritura.
	FlagWritable EntryFlag = 1 << 1

	// FlagUser se setea si el código de modo usuario puede acceder a la página.
	// Si no está seteado solo el kernel puede accederla.
	FlagUser EntryFlag = 1 << 2

	// FlagNoExecute marca la página como no ejecutable (bit 63, NX).
	FlagNoExecute EntryFlag = 1 << 63
)

// PageEntry es una entrada de tabla de páginas: codifica un marco físico y un
// conjunto de flags. La muta únicamente el administrador de espacios de
// direcciones bajo su lock.
type PageEntry uint64

// HasFlags indica si la entrada tiene seteados todos los flags dados.
func (e PageEntry) HasFlags(flags EntryFlag) bool {
	return uint64(e)&uint64(flags) == uint64(flags)
}

// SetFlags setea los flags dados sobre la entrada.
func (e *PageEntry) SetFlags(flags EntryFlag) {
	*e = PageEntry(uint64(*e) | uint64(flags))
}

// ClearFlags borra los flags dados de la entrada.
func (e *PageEntry) ClearFlags(flags EntryFlag) {
	*e = PageEntry(uint64(*e) &^ uint64(flags))
}

// Frame devuelve el marco físico al que apunta la entrada.
func (e PageEntry) Frame() Frame {
	return FrameForAddress(uint64(e) & entryPhysMask)
}

// SetFrame actualiza la entrada para que apunte al marco dado.
func (e *PageEntry) SetFrame(frame Frame) {
	*e = PageEntry((uint64(*e) &^ entryPhysMask) | frame.Address())
}

// PageIndices devuelve el índice dentro de la tabla de cada nivel para la
// dirección virtual dada.
func PageIndices(virtualAddr uint64) [PageLevels]int {
	var indices [PageLevels]int
	for level := 0; level < PageLevels; level++ {
		indices[level] = int((virtualAddr >> pageLevelShifts[level]) & (EntriesPerTable - 1))
	}
	return indices
}

// PageAligned indica si la dirección está alineada al tamaño de marco.
func PageAligned(addr uint64) bool {
	return addr&(FrameSize-1) == 0
}

// Canonical indica si la dirección virtual entra en los 48 bits traducibles.
func Canonical(virtualAddr uint64) bool {
	return virtualAddr < 1<<canonicalBits
}

// PageNumber devuelve el número de página virtual de una dirección.
func PageNumber(virtualAddr uint64) uint64 {
	return virtualAddr >> PageShift
}
