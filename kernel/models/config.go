package models

// Config es la configuración del kernel, leída del archivo JSON al arrancar.
type Config struct {
	// MemorySize es el tamaño de la memoria física simulada en bytes.
	MemorySize uint64 `json:"memory_size"`
	// KernelImageBytes es el tamaño de la región física reservada para la
	// imagen del kernel, al comienzo de la memoria.
	KernelImageBytes uint64 `json:"kernel_image_bytes"`

	// HeapBase es la dirección virtual donde se mapea el heap del kernel.
	HeapBase         uint64 `json:"heap_base"`
	HeapInitialPages int    `json:"heap_initial_pages"`
	HeapMaxPages     int    `json:"heap_max_pages"`

	// TimeSliceTicks es el quantum de cada tarea en ticks del timer.
	TimeSliceTicks int `json:"time_slice_ticks"`
	// TickIntervalMs es el intervalo del timer cuando corre en tiempo real.
	TickIntervalMs int `json:"tick_interval_ms"`

	TlbEntries     int    `json:"tlb_entries"`
	TlbReplacement string `json:"tlb_replacement"`

	// UserStackPages es el tamaño del stack de usuario de los procesos cargados.
	UserStackPages int `json:"user_stack_pages"`
	// PriorityLevels es la cantidad de clases de prioridad del scheduler.
	PriorityLevels int `json:"priority_levels"`

	LogLevel string `json:"log_level"`
	LogPath  string `json:"log_path"`
}
