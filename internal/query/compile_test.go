package query

import (
	"net/url"
	"testing"

	"github.com/onsi/gomega"

	"github.com/parabase-io/parabase/internal/apperr"
)

func testSchema() *TableSchema {
	return &TableSchema{
		Name: "articles",
		Columns: map[string]bool{
			"id":         true,
			"title":      true,
			"status":     true,
			"views":      true,
			"created_at": true,
		},
	}
}

func TestParseDefaults(t *testing.T) {
	g := gomega.NewWithT(t)

	q, err := Parse(url.Values{}, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(q.Limit).To(gomega.Equal(100))
	g.Expect(q.Offset).To(gomega.Equal(0))
	g.Expect(q.Select).To(gomega.BeEmpty())
	g.Expect(q.Filters).To(gomega.BeEmpty())
}

func TestParseFilters(t *testing.T) {
	g := gomega.NewWithT(t)

	values := url.Values{}
	values.Set("eq.status", "published")
	values.Set("in.id", "1,2,3")
	values.Set("gte.views", "10")
	values.Set("order", "created_at.desc")
	values.Set("limit", "25")
	values.Set("offset", "50")

	q, err := Parse(values, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(q.Filters).To(gomega.HaveLen(3))
	g.Expect(q.Order.Column).To(gomega.Equal("created_at"))
	g.Expect(q.Order.Desc).To(gomega.BeTrue())
	g.Expect(q.Limit).To(gomega.Equal(25))
	g.Expect(q.Offset).To(gomega.Equal(50))

	for _, f := range q.Filters {
		if f.Op == OpIn {
			g.Expect(f.Values).To(gomega.Equal([]string{"1", "2", "3"}))
		}
	}
}

func TestParseRejections(t *testing.T) {
	cases := map[string]url.Values{
		"unknown operator":   {"between.views": {"1,10"}},
		"bare parameter":     {"status": {"published"}},
		"zero limit":         {"limit": {"0"}},
		"negative offset":    {"offset": {"-1"}},
		"limit over cap":     {"limit": {"5000"}},
		"bad order direction": {"order": {"views.down"}},
		"order missing dir":  {"order": {"views"}},
	}

	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			g := gomega.NewWithT(t)
			_, err := Parse(values, 1000)
			g.Expect(err).To(gomega.HaveOccurred())
			g.Expect(apperr.KindOf(err)).To(gomega.Equal(apperr.KindBadRequest))
		})
	}
}

func TestValidTableName(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(ValidTableName("articles")).To(gomega.BeTrue())
	g.Expect(ValidTableName("_private")).To(gomega.BeTrue())
	g.Expect(ValidTableName("t2")).To(gomega.BeTrue())
	g.Expect(ValidTableName("Articles")).To(gomega.BeFalse())
	g.Expect(ValidTableName("2fast")).To(gomega.BeFalse())
	g.Expect(ValidTableName(`articles"; drop table x`)).To(gomega.BeFalse())
	g.Expect(ValidTableName("")).To(gomega.BeFalse())
}

func TestCompileSelect(t *testing.T) {
	g := gomega.NewWithT(t)

	values := url.Values{}
	values.Set("select", "id,title")
	values.Set("eq.status", "published")
	values.Set("order", "views.desc")
	values.Set("limit", "10")
	values.Set("offset", "20")

	q, err := Parse(values, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	stmt, err := CompileSelect(testSchema(), q)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt.SQL).To(gomega.Equal(
		`SELECT "id", "title" FROM "articles" WHERE "status" = $1 ORDER BY "views" DESC LIMIT 10 OFFSET 20`))
	g.Expect(stmt.Args).To(gomega.Equal([]any{"published"}))
}

func TestCompileSelectInExpansion(t *testing.T) {
	g := gomega.NewWithT(t)

	values := url.Values{}
	values.Set("in.id", "a,b,c")

	q, err := Parse(values, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	stmt, err := CompileSelect(testSchema(), q)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt.SQL).To(gomega.Equal(
		`SELECT * FROM "articles" WHERE "id" IN ($1, $2, $3) LIMIT 100`))
	g.Expect(stmt.Args).To(gomega.Equal([]any{"a", "b", "c"}))
}

func TestCompileSelectUnknownColumn(t *testing.T) {
	g := gomega.NewWithT(t)

	values := url.Values{}
	values.Set("eq.password", "x")

	q, err := Parse(values, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	_, err = CompileSelect(testSchema(), q)
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(apperr.KindOf(err)).To(gomega.Equal(apperr.KindSchema))
}

func TestCompileInsertPerRow(t *testing.T) {
	g := gomega.NewWithT(t)

	stmts, err := CompileInsert(testSchema(), []map[string]any{
		{"title": "one", "status": "draft"},
		{"title": "two"},
	})
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmts).To(gomega.HaveLen(2))
	g.Expect(stmts[0].SQL).To(gomega.Equal(
		`INSERT INTO "articles" ("status", "title") VALUES ($1, $2) RETURNING *`))
	g.Expect(stmts[0].Args).To(gomega.Equal([]any{"draft", "one"}))
	g.Expect(stmts[1].SQL).To(gomega.Equal(
		`INSERT INTO "articles" ("title") VALUES ($1) RETURNING *`))
}

func TestCompileInsertLimits(t *testing.T) {
	g := gomega.NewWithT(t)

	_, err := CompileInsert(testSchema(), nil)
	g.Expect(err).To(gomega.HaveOccurred())

	tooMany := make([]map[string]any, maxInsertRows+1)
	for i := range tooMany {
		tooMany[i] = map[string]any{"title": "x"}
	}
	_, err = CompileInsert(testSchema(), tooMany)
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(apperr.KindOf(err)).To(gomega.Equal(apperr.KindBadRequest))
}

func TestCompileUpdateRequiresFilter(t *testing.T) {
	g := gomega.NewWithT(t)

	q, err := Parse(url.Values{}, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	_, err = CompileUpdate(testSchema(), q, map[string]any{"status": "published"})
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(apperr.KindOf(err)).To(gomega.Equal(apperr.KindBadRequest))
}

func TestCompileUpdatePlaceholderNumbering(t *testing.T) {
	g := gomega.NewWithT(t)

	values := url.Values{}
	values.Set("eq.id", "42")

	q, err := Parse(values, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	stmt, err := CompileUpdate(testSchema(), q, map[string]any{"status": "published", "title": "new"})
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt.SQL).To(gomega.Equal(
		`UPDATE "articles" SET "status" = $1, "title" = $2 WHERE "id" = $3 RETURNING *`))
	g.Expect(stmt.Args).To(gomega.Equal([]any{"published", "new", "42"}))
}

func TestCompileDeleteRequiresFilter(t *testing.T) {
	g := gomega.NewWithT(t)

	q, err := Parse(url.Values{}, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	_, err = CompileDelete(testSchema(), q)
	g.Expect(err).To(gomega.HaveOccurred())

	values := url.Values{}
	values.Set("eq.id", "42")
	q, err = Parse(values, 1000)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	stmt, err := CompileDelete(testSchema(), q)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(stmt.SQL).To(gomega.Equal(
		`DELETE FROM "articles" WHERE "id" = $1 RETURNING *`))
}
