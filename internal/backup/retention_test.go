package backup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"

	"github.com/parabase-io/parabase/internal/db"
)

func backupAt(createdAt time.Time) db.Backup {
	b := db.Backup{
		Type:   db.BackupTypeProject,
		Status: db.BackupStatusCompleted,
	}
	b.ID = uuid.Must(uuid.NewV7())
	b.CreatedAt = createdAt
	return b
}

func TestClassify(t *testing.T) {
	g := gomega.NewWithT(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// Newest first, one per interesting age.
	ages := []time.Duration{
		1 * time.Hour,       // keep: fresh
		2 * 24 * time.Hour,  // keep: fresh
		4 * 24 * time.Hour,  // keep: newest of 3-7d band
		5 * 24 * time.Hour,  // delete: older in 3-7d band
		9 * 24 * time.Hour,  // keep: newest of 7-14d band
		20 * 24 * time.Hour, // delete: past 14d
	}

	backups := make([]db.Backup, 0, len(ages))
	for _, age := range ages {
		backups = append(backups, backupAt(now.Add(-age)))
	}

	keep, remove := Classify(backups, now)
	g.Expect(keep).To(gomega.HaveLen(4))
	g.Expect(remove).To(gomega.HaveLen(2))

	g.Expect(keep[0].CreatedAt).To(gomega.Equal(now.Add(-1 * time.Hour)))
	g.Expect(keep[2].CreatedAt).To(gomega.Equal(now.Add(-4 * 24 * time.Hour)))
	g.Expect(keep[3].CreatedAt).To(gomega.Equal(now.Add(-9 * 24 * time.Hour)))
	g.Expect(remove[0].CreatedAt).To(gomega.Equal(now.Add(-5 * 24 * time.Hour)))
	g.Expect(remove[1].CreatedAt).To(gomega.Equal(now.Add(-20 * 24 * time.Hour)))
}

func TestClassifyBandBoundaries(t *testing.T) {
	g := gomega.NewWithT(t)

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// Exactly 3 days old falls into the 3-7d band, exactly 14 days old is
	// deleted.
	backups := []db.Backup{
		backupAt(now.Add(-3 * 24 * time.Hour)),
		backupAt(now.Add(-14 * 24 * time.Hour)),
	}

	keep, remove := Classify(backups, now)
	g.Expect(keep).To(gomega.HaveLen(1))
	g.Expect(remove).To(gomega.HaveLen(1))
	g.Expect(remove[0].CreatedAt).To(gomega.Equal(now.Add(-14 * 24 * time.Hour)))
}

func TestClassifyEmpty(t *testing.T) {
	g := gomega.NewWithT(t)

	keep, remove := Classify(nil, time.Now())
	g.Expect(keep).To(gomega.BeEmpty())
	g.Expect(remove).To(gomega.BeEmpty())
}
