package services

import (
	"os"
	"path/filepath"
	"time"

	"MetaGatewayAPI/utils"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes transient upload copies left behind when a
// publish crashed between writing its temp file and the deferred cleanup.
type Janitor struct {
	cron   *cron.Cron
	tmpDir string
	maxAge time.Duration
}

func NewJanitor(tmpDir string, maxAge time.Duration) *Janitor {
	return &Janitor{
		cron:   cron.New(),
		tmpDir: tmpDir,
		maxAge: maxAge,
	}
}

func (j *Janitor) Start() {
	j.cron.AddFunc("@every 1h", j.Sweep)
	j.cron.Start()
	utils.Infof("janitor started for %s (max age %s)", j.tmpDir, j.maxAge)
}

func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Sweep removes temp files older than maxAge. Errors on individual files are
// logged and skipped; the next run retries.
func (j *Janitor) Sweep() {
	entries, err := os.ReadDir(j.tmpDir)
	if err != nil {
		utils.Warnf("janitor could not read %s: %v", j.tmpDir, err)
		return
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.tmpDir, entry.Name())
		if err := os.Remove(path); err != nil {
			utils.Warnf("janitor could not remove %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		utils.Infof("janitor removed %d stale temp file(s)", removed)
	}
}
