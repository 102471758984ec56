// Package helpers contiene utilidades de borde del kernel: lectura de
// manifiestos de imágenes ejecutables hacia los modelos internos.
package helpers

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sisoputnfrba/kernel-core/kernel/models"
)

type manifestSegment struct {
	VirtualAddress uint64 `yaml:"virtual_address"`
	MemorySize     uint64 `yaml:"memory_size"`
	FileSize       uint64 `yaml:"file_size"`
	// Permissions es la terna rwx con guiones para los permisos ausentes,
	// por ejemplo "r-x" o "rw-".
	Permissions string `yaml:"permissions"`
	// Content es el contenido inicial del segmento en base64; puede estar
	// vacío para segmentos solo bss.
	Content string `yaml:"content"`
}

type imageManifest struct {
	Entry    uint64            `yaml:"entry"`
	Segments []manifestSegment `yaml:"segments"`
}

// ReadImageManifest lee un manifiesto YAML de imagen ejecutable y lo convierte
// al descriptor que consume el loader. Valida forma (permisos, base64); la
// validación semántica de los segmentos la hace el loader.
func ReadImageManifest(path string) (models.ImageDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImageDescriptor{}, fmt.Errorf("no se pudo leer el manifiesto %s: %w", path, err)
	}
	return ParseImageManifest(data)
}

// ParseImageManifest convierte el contenido YAML de un manifiesto al
// descriptor de imagen.
func ParseImageManifest(data []byte) (models.ImageDescriptor, error) {
	var manifest imageManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return models.ImageDescriptor{}, fmt.Errorf("manifiesto inválido: %w", err)
	}

	img := models.ImageDescriptor{Entry: manifest.Entry}
	for i, seg := range manifest.Segments {
		perms, err := parsePermissions(seg.Permissions)
		if err != nil {
			return models.ImageDescriptor{}, fmt.Errorf("segmento %d: %w", i, err)
		}
		content, err := base64.StdEncoding.DecodeString(seg.Content)
		if err != nil {
			return models.ImageDescriptor{}, fmt.Errorf("segmento %d: contenido base64 inválido: %w", i, err)
		}
		img.Segments = append(img.Segments, models.Segment{
			VirtualAddress: seg.VirtualAddress,
			MemorySize:     seg.MemorySize,
			FileSize:       seg.FileSize,
			Permissions:    perms,
			Content:        content,
		})
	}
	return img, nil
}

func parsePermissions(s string) (models.SegmentPermissions, error) {
	if len(s) != 3 {
		return models.SegmentPermissions{}, fmt.Errorf("permisos inválidos %q (se espera la terna rwx)", s)
	}
	var perms models.SegmentPermissions
	for i, want := range []struct {
		letra byte
		campo *bool
	}{
		{'r', &perms.Readable},
		{'w', &perms.Writable},
		{'x', &perms.Executable},
	} {
		switch s[i] {
		case want.letra:
			*want.campo = true
		case '-':
		default:
			return models.SegmentPermissions{}, fmt.Errorf("permisos inválidos %q (se espera la terna rwx)", s)
		}
	}
	return perms, nil
}
