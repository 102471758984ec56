package models

// Context es el estado de registros de una tarea: lo que se guarda en el TCB
// al desalojarla y se restaura al volver a ejecutarla.
type Context struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP, RSP uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64

	RIP    uint64
	RFLAGS uint64
}

// InterruptFrame es la foto de registros capturada a la entrada de un trap.
// Vive en el stack de kernel de la tarea interrumpida mientras dura el
// handler; si el handler pide un cambio de tarea, el contexto con el que se
// retoma la ejecución se intercambia antes de volver al hardware.
type InterruptFrame struct {
	Context

	Vector    uint8
	ErrorCode uint64
}
