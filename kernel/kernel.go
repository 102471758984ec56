package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sisoputnfrba/kernel-core/kernel/helpers"
	"github.com/sisoputnfrba/kernel-core/kernel/models"
	"github.com/sisoputnfrba/kernel-core/kernel/services"
	"github.com/sisoputnfrba/kernel-core/utils/config"
	"github.com/sisoputnfrba/kernel-core/utils/log"
)

const ConfigPath = "kernel/configs/kernel.json"

func main() {
	var cfg models.Config
	config.InitConfig(ConfigPath, &cfg)
	log.InitLogger(cfg.LogPath, cfg.LogLevel)

	kernel, err := services.InitKernel(&cfg, services.DefaultMemoryMap(&cfg))
	if err != nil {
		slog.Error(fmt.Sprintf("Error en el boot del kernel: %v", err))
		os.Exit(1)
	}

	// Cada argumento es la ruta a un manifiesto de imagen ejecutable.
	for _, path := range os.Args[1:] {
		img, err := helpers.ReadImageManifest(path)
		if err != nil {
			slog.Error(fmt.Sprintf("No se pudo leer la imagen %s: %v", path, err))
			continue
		}
		if _, err := kernel.Loader.Load(img, 0); err != nil {
			slog.Error(fmt.Sprintf("No se pudo cargar la imagen %s: %v", path, err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	kernel.Timer.Run(ctx)

	slog.Info("## Kernel detenido")
}
