package models

// Estado es el estado de planificación de una tarea.
//
// Transiciones válidas: READY -> EXEC -> {READY, BLOCKED, EXIT};
// BLOCKED -> READY al despertar. EXIT es absorbente: una vez ahí la tarea solo
// espera la liberación de sus recursos.
type Estado string

const (
	EstadoReady   Estado = "READY"
	EstadoExec    Estado = "EXEC"
	EstadoBlocked Estado = "BLOCKED"
	EstadoExit    Estado = "EXIT"
)
