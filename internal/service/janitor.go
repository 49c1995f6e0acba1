package service

import (
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shubhampathak24/shape-to-bq/pkg/file"
	"github.com/shubhampathak24/shape-to-bq/pkg/log"
)

// Janitor periodically removes abandoned scratch directories. Scratch dirs
// are normally removed by the pipeline run that created them; the janitor
// catches the ones orphaned by a process crash.
type Janitor struct {
	scratchDir string
	maxAge     time.Duration
	cronExpr   string
	cron       *cron.Cron
}

func NewJanitor(scratchDir string, maxAge time.Duration, cronExpr string, c *cron.Cron) *Janitor {
	return &Janitor{
		scratchDir: scratchDir,
		maxAge:     maxAge,
		cronExpr:   cronExpr,
		cron:       c,
	}
}

func (j *Janitor) Schedule() error {
	_, err := j.cron.AddFunc(j.cronExpr, j.Sweep)
	return err
}

// Sweep removes every scratch subdirectory older than maxAge. Removal
// failures are logged and skipped, never escalated.
func (j *Janitor) Sweep() {
	cutoff := time.Now().Add(-j.maxAge)
	stale, err := file.FindDirsOlderThan(j.scratchDir, cutoff)
	if err != nil {
		log.Warn("Scratch sweep failed to list %s: %v", j.scratchDir, err)
		return
	}
	for _, dir := range stale {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("Failed to remove stale scratch dir %s: %v", dir, err)
			continue
		}
		log.Info("Removed stale scratch dir %s", dir)
	}
}
