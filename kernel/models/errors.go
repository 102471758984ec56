package models

import "errors"

// Errores de carga de una imagen ejecutable. La creación del proceso falla
// limpiamente: ningún segmento queda mapeado después del error.
var (
	ErrNoSegments       = errors.New("la imagen no contiene segmentos")
	ErrSegmentOverlap   = errors.New("los rangos virtuales de los segmentos se solapan")
	ErrSegmentUnaligned = errors.New("dirección virtual de segmento no alineada al marco")
	ErrSegmentSize      = errors.New("tamaños de segmento inconsistentes")
)
