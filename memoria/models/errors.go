package models

import "errors"

// Errores recuperables del subsistema de memoria. Se propagan como valores
// hasta el componente capaz de decidir la política (rechazar la creación de
// una tarea, abortar una carga); nunca se ignoran en silencio.
var (
	// ErrOutOfMemory indica que no quedan marcos libres para atender el pedido.
	ErrOutOfMemory = errors.New("sin marcos de memoria física disponibles")

	// ErrAlreadyMapped indica que el mapeo pedido pisa un mapeo existente.
	ErrAlreadyMapped = errors.New("la dirección virtual ya se encuentra mapeada")

	// ErrUnaligned indica una dirección no alineada al tamaño de marco.
	// Las direcciones desalineadas se rechazan, nunca se redondean.
	ErrUnaligned = errors.New("dirección no alineada al tamaño de marco")

	// ErrNotMapped indica que la dirección virtual no tiene traducción.
	ErrNotMapped = errors.New("la dirección virtual no está mapeada")

	// ErrHeapExhausted indica que el heap alcanzó su techo configurado.
	ErrHeapExhausted = errors.New("el heap del kernel alcanzó su tamaño máximo")
)
