package models

// SegmentPermissions son los permisos de un segmento de imagen ejecutable.
type SegmentPermissions struct {
	Readable   bool
	Writable   bool
	Executable bool
}

// Segment es un segmento validado estructuralmente por el colaborador externo
// que parsea la imagen ejecutable. Content trae los FileSize bytes iniciales;
// el resto hasta MemorySize se rellena con ceros (semántica bss).
type Segment struct {
	VirtualAddress uint64
	MemorySize     uint64
	FileSize       uint64
	Permissions    SegmentPermissions
	Content        []byte
}

// ImageDescriptor es la imagen ejecutable ya parseada: segmentos ordenados más
// el entry point. El loader confía en la validez estructural pero repite la
// validación semántica (solapamientos, alineación, tamaños) siempre.
type ImageDescriptor struct {
	Entry    uint64
	Segments []Segment
}
