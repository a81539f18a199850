package audio

import (
	"os"
	"path/filepath"
)

// SaveRawPCMArchive writes raw, undecoded audio bytes next to a
// task's processed output as a diagnostic copy, for providers whose
// TTS response isn't a WAV container.
func SaveRawPCMArchive(taskDir, filename string, raw []byte) error {
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(taskDir, filename), raw, 0o644)
}
