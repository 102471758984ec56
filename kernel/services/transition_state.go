package services

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sisoputnfrba/kernel-core/kernel/models"
)

// TransitionState mueve una tarea a su nuevo estado y actualiza las métricas
// de permanencia (ME/MT). El movimiento entre colas es responsabilidad del
// llamador, siempre bajo el lock del scheduler.
func TransitionState(tcb *models.TCB, nuevo models.Estado) {
	now := time.Now()
	if tcb.EstadoActual == "" {
		slog.Info(fmt.Sprintf("## (%d) Se crea el proceso - Estado: %s", tcb.PID, nuevo))
	} else {
		tcb.MT[tcb.EstadoActual] += now.Sub(tcb.UltimoCambio)
		slog.Info(fmt.Sprintf("## (%d) Pasa del estado %s al estado %s", tcb.PID, tcb.EstadoActual, nuevo))
	}
	tcb.EstadoActual = nuevo
	tcb.ME[nuevo]++
	tcb.UltimoCambio = now
}

// LogMetrics emite las métricas de estado acumuladas de una tarea. Se llama al
// finalizar el proceso, antes de liberar sus recursos.
func LogMetrics(tcb *models.TCB) {
	mensaje := fmt.Sprintf("## (%d) - Métricas de estado:", tcb.PID)
	for _, estado := range []models.Estado{models.EstadoReady, models.EstadoExec, models.EstadoBlocked, models.EstadoExit} {
		mensaje += fmt.Sprintf(" %s (%d) (%d ms),", estado, tcb.ME[estado], tcb.MT[estado].Milliseconds())
	}
	slog.Info(mensaje[:len(mensaje)-1])
}
