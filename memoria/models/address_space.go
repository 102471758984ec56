package models

// AddressSpace es un contexto de memoria virtual: la raíz de su jerarquía de
// tablas de páginas más el identificador con el que la TLB etiqueta sus
// traducciones. Lo crea y lo muta únicamente el administrador de espacios de
// direcciones; el resto del kernel sostiene la referencia, nunca los marcos.
type AddressSpace struct {
	// ID identifica al espacio de direcciones (clave de TLB, equivalente al ASID).
	ID uint32

	// Root es el marco físico de la tabla raíz (el valor que se carga en CR3).
	Root Frame

	// MappedPages cuenta las páginas hoja actualmente mapeadas. Es contabilidad
	// del administrador, no fuente de verdad: la verdad vive en las tablas.
	MappedPages int
}
