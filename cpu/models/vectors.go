package models

// Vectores de la tabla de interrupciones. Los vectores 0 a 31 son excepciones
// reservadas por la arquitectura; de 32 en adelante son interrupciones
// externas ruteadas por el PIC.
const (
	VectorDivideError     uint8 = 0
	VectorDebug           uint8 = 1
	VectorNMI             uint8 = 2
	VectorBreakpoint      uint8 = 3
	VectorOverflow        uint8 = 4
	VectorBoundRange      uint8 = 5
	VectorInvalidOpcode   uint8 = 6
	VectorDeviceNotAvail  uint8 = 7
	VectorDoubleFault     uint8 = 8
	VectorInvalidTSS      uint8 = 10
	VectorSegmentMissing  uint8 = 11
	VectorStackFault      uint8 = 12
	VectorGeneralProtect  uint8 = 13
	VectorPageFault       uint8 = 14
	VectorLastException   uint8 = 31
	VectorTimer           uint8 = 32
)

// Bits del código de error de un page fault.
const (
	PageFaultErrPresent uint64 = 1 << 0 // la entrada estaba presente (violación de permisos)
	PageFaultErrWrite   uint64 = 1 << 1 // el acceso era de escritura
	PageFaultErrUser    uint64 = 1 << 2 // el acceso vino de modo usuario
)

var exceptionNames = map[uint8]string{
	VectorDivideError:    "divide error",
	VectorDebug:          "debug",
	VectorNMI:            "non-maskable interrupt",
	VectorBreakpoint:     "breakpoint",
	VectorOverflow:       "overflow",
	VectorBoundRange:     "bound range exceeded",
	VectorInvalidOpcode:  "invalid opcode",
	VectorDeviceNotAvail: "device not available",
	VectorDoubleFault:    "double fault",
	VectorInvalidTSS:     "invalid TSS",
	VectorSegmentMissing: "segment not present",
	VectorStackFault:     "stack segment fault",
	VectorGeneralProtect: "general protection fault",
	VectorPageFault:      "page fault",
}

// ExceptionName devuelve el nombre de la excepción de arquitectura, o
// "reserved" para los vectores reservados sin nombre.
func ExceptionName(vector uint8) string {
	if name, ok := exceptionNames[vector]; ok {
		return name
	}
	return "reserved"
}
