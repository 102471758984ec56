// Package fatal concentra la emisión de diagnósticos ante violaciones de
// invariantes del kernel. Un error fatal indica un bug del kernel, no un error
// del usuario: se emite el reporte estructurado y se detiene el sistema, ya que
// continuar arriesga corrupción silenciosa.
package fatal

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Report es el diagnóstico estructurado que se emite antes de detener el kernel.
// Los campos Vector, Address y TaskID valen -1 / 0 cuando no aplican.
type Report struct {
	ReportID string
	Reason   string
	Vector   int
	Address  uint64
	TaskID   int
}

// Kernel emite un diagnóstico y detiene el sistema. Es el camino final de toda
// violación de invariante (double free, re-adquisición de lock, etc.).
func Kernel(format string, args ...any) {
	Trap(Report{
		Reason: fmt.Sprintf(format, args...),
		Vector: -1,
		TaskID: -1,
	})
}

// Trap emite el reporte completo (vector, dirección que falló, tarea) y detiene
// el sistema. Lo usan los handlers de excepciones irrecuperables.
func Trap(r Report) {
	if r.ReportID == "" {
		r.ReportID = uuid.New().String()
	}
	slog.Error(fmt.Sprintf("## KERNEL PANIC - %s", r.Reason),
		"report_id", r.ReportID,
		"vector", r.Vector,
		"address", fmt.Sprintf("%#x", r.Address),
		"task_id", r.TaskID,
	)
	panic(fmt.Sprintf("kernel panic [%s]: %s", r.ReportID, r.Reason))
}
