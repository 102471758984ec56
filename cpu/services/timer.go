package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/sisoputnfrba/kernel-core/cpu/models"
)

// Timer es el timer programable que alimenta la preemption: cada tick entrega
// el vector del timer al dispatcher. Los tests inyectan ticks llamando a Tick
// directamente; Run los genera en tiempo real.
type Timer struct {
	dispatcher *Dispatcher
	interval   time.Duration
}

// NewTimer crea el timer con el intervalo entre ticks dado.
func NewTimer(dispatcher *Dispatcher, interval time.Duration) *Timer {
	return &Timer{dispatcher: dispatcher, interval: interval}
}

// Tick entrega un tick del timer. Devuelve false si la interrupción estaba
// enmascarada y el tick se perdió (el timer es periódico: el siguiente llega).
func (t *Timer) Tick() bool {
	return t.dispatcher.DeliverIRQ(models.VectorTimer)
}

// Run genera ticks periódicos hasta que el contexto se cancele.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	slog.Debug("Timer iniciado", "intervalo", t.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Timer detenido")
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}
