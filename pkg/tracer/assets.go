package tracer

import (
	"embed"
	"os"
	"path/filepath"
)

// The C runtime is embedded in the binary and materialized next to each
// submission's source, so the compile step needs no installed support files.

//go:embed runtime/trace.h runtime/tracer.cpp
var runtimeFS embed.FS

// SupportFiles lists the materialized runtime file names.
var SupportFiles = []string{"trace.h", "tracer.cpp"}

// WriteSupportFiles writes the runtime tracer sources into dir.
func WriteSupportFiles(dir string) error {
	for _, name := range SupportFiles {
		data, err := runtimeFS.ReadFile("runtime/" + name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			return err
		}
	}
	return nil
}
