package apiserver

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// exportTask streams a ZIP of the task's events.jsonl and any WAV
// files. The task row resolves the on-disk directory; unknown ids are
// 404.
func (s *Server) exportTask(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence store unavailable"})
		return
	}

	taskID := c.Param("id")
	row, err := s.store.GetTask(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("task %s not found", taskID)})
		return
	}

	entries, err := os.ReadDir(row.TaskDir)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task directory unreadable"})
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", row.Name+".zip"))
	c.Status(http.StatusOK)

	zw := zip.NewWriter(c.Writer)
	defer zw.Close()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name != "events.jsonl" && !strings.HasSuffix(name, ".wav") {
			continue
		}
		if err := addFileToZip(zw, filepath.Join(row.TaskDir, name), name); err != nil {
			// The response is already streaming; all we can do is stop.
			return
		}
	}
}

func addFileToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
