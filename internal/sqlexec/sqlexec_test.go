package sqlexec

import (
	"testing"

	"github.com/onsi/gomega"

	"github.com/parabase-io/parabase/internal/apperr"
)

func TestPrepareSingleStatement(t *testing.T) {
	g := gomega.NewWithT(t)

	stmt, err := prepare("SELECT 1", 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("SELECT 1 LIMIT 1000"))

	// Trailing semicolon is not a second statement.
	stmt, err = prepare("SELECT 1;", 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("SELECT 1 LIMIT 1000"))

	_, err = prepare("SELECT 1; SELECT 2", 1000)
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(apperr.KindOf(err)).To(gomega.Equal(apperr.KindBadRequest))

	_, err = prepare("   ;  ; ", 1000)
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestPrepareDenylist(t *testing.T) {
	denied := []string{
		"COPY users TO PROGRAM 'cat'",
		"DO $$ BEGIN NULL; END $$",
		"SELECT pg_sleep(60)",
		"CREATE EXTENSION pg_stat_statements",
		"DROP DATABASE proj_abc",
		"DROP ROLE proj_abc_owner",
		"ALTER SYSTEM SET work_mem = '1GB'",
		"alter system reset all",
	}

	for _, sql := range denied {
		t.Run(sql, func(t *testing.T) {
			g := gomega.NewWithT(t)
			_, err := prepare(sql, 1000)
			g.Expect(err).To(gomega.HaveOccurred())
			g.Expect(apperr.KindOf(err)).To(gomega.Equal(apperr.KindDenied))
		})
	}
}

func TestPrepareLimitInjection(t *testing.T) {
	g := gomega.NewWithT(t)

	stmt, err := prepare("SELECT * FROM users", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("SELECT * FROM users LIMIT 500"))

	stmt, err = prepare("WITH t AS (SELECT 1) SELECT * FROM t", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.HaveSuffix("LIMIT 500"))

	// Explicit LIMIT is left alone.
	stmt, err = prepare("SELECT * FROM users LIMIT 5", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("SELECT * FROM users LIMIT 5"))

	stmt, err = prepare("SELECT * FROM users LIMIT ALL", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("SELECT * FROM users LIMIT ALL"))

	// The word alone is not a LIMIT clause; the cap still applies.
	stmt, err = prepare("SELECT unlimited FROM plans", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("SELECT unlimited FROM plans LIMIT 500"))

	stmt, err = prepare("SELECT * FROM plans WHERE name = 'limit break'", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.HaveSuffix("LIMIT 500"))

	// Writes are never capped.
	stmt, err = prepare("UPDATE users SET active = true WHERE id = 1", 500)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt).To(gomega.Equal("UPDATE users SET active = true WHERE id = 1"))
}
