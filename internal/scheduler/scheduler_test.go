package scheduler

import (
	"testing"
	"time"

	"github.com/onsi/gomega"

	"github.com/parabase-io/parabase/internal/db"
)

func TestNextRun(t *testing.T) {
	g := gomega.NewWithT(t)

	job := &db.CronJob{CronExpr: "0 3 * * *", Timezone: "UTC"}
	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	next, err := NextRun(job, from)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(next).To(gomega.Equal(time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)))
}

func TestNextRunHonorsTimezone(t *testing.T) {
	g := gomega.NewWithT(t)

	job := &db.CronJob{CronExpr: "0 3 * * *", Timezone: "America/New_York"}
	from := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	next, err := NextRun(job, from)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	loc, err := time.LoadLocation("America/New_York")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(next.In(loc).Hour()).To(gomega.Equal(3))
}

func TestNextRunDefaultsToUTC(t *testing.T) {
	g := gomega.NewWithT(t)

	job := &db.CronJob{CronExpr: "*/5 * * * *"}
	from := time.Date(2026, 8, 24, 12, 3, 0, 0, time.UTC)

	next, err := NextRun(job, from)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(next).To(gomega.Equal(time.Date(2026, 8, 24, 12, 5, 0, 0, time.UTC)))
}

func TestValidateExpr(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(ValidateExpr("0 * * * *", "UTC")).To(gomega.Succeed())
	g.Expect(ValidateExpr("@hourly", "UTC")).To(gomega.Succeed())
	g.Expect(ValidateExpr("not a cron", "UTC")).ToNot(gomega.Succeed())
	g.Expect(ValidateExpr("0 * * * *", "Mars/Olympus")).ToNot(gomega.Succeed())
}
