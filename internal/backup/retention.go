package backup

import (
	"time"

	"github.com/parabase-io/parabase/internal/db"
)

// Age bands of the retention policy. Backups younger than keepAllWindow are
// untouched; within each older band only the newest backup survives; past
// dropAfter everything goes.
const (
	keepAllWindow = 3 * 24 * time.Hour
	midBandStart  = 7 * 24 * time.Hour
	dropAfter     = 14 * 24 * time.Hour
)

// Classify partitions a project's completed backups, ordered newest first,
// into those to keep and those to delete.
func Classify(backups []db.Backup, now time.Time) (keep, remove []db.Backup) {
	var keptEarlyBand, keptMidBand bool

	for _, b := range backups {
		age := now.Sub(b.CreatedAt)
		switch {
		case age < keepAllWindow:
			keep = append(keep, b)
		case age < midBandStart:
			if keptEarlyBand {
				remove = append(remove, b)
			} else {
				keep = append(keep, b)
				keptEarlyBand = true
			}
		case age < dropAfter:
			if keptMidBand {
				remove = append(remove, b)
			} else {
				keep = append(keep, b)
				keptMidBand = true
			}
		default:
			remove = append(remove, b)
		}
	}
	return keep, remove
}
