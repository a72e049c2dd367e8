package backup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/onsi/gomega"
)

func TestEncodeCSVQuoting(t *testing.T) {
	g := gomega.NewWithT(t)

	columns := []string{"id", "title", "body"}
	records := [][]any{
		{int64(1), `say "hi"`, "line1\nline2"},
		{int64(2), "a,b", nil},
	}

	data, err := encodeCSV(columns, records)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(string(data)).To(gomega.Equal(
		"id,title,body\n" +
			"1,\"say \"\"hi\"\"\",\"line1\nline2\"\n" +
			"2,\"a,b\",\n"))
}

func TestEncodeJSON(t *testing.T) {
	g := gomega.NewWithT(t)

	data, err := encodeJSON([]string{"id", "name"}, [][]any{{int64(7), "x"}})
	g.Expect(err).ToNot(gomega.HaveOccurred())

	var rows []map[string]any
	g.Expect(json.Unmarshal(data, &rows)).To(gomega.Succeed())
	g.Expect(rows).To(gomega.HaveLen(1))
	g.Expect(rows[0]["name"]).To(gomega.Equal("x"))
}

func TestFormatCSVValue(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(formatCSVValue(nil)).To(gomega.Equal(""))
	g.Expect(formatCSVValue("plain")).To(gomega.Equal("plain"))
	g.Expect(formatCSVValue([]byte("raw"))).To(gomega.Equal("raw"))
	g.Expect(formatCSVValue(true)).To(gomega.Equal("true"))
	g.Expect(formatCSVValue(int64(42))).To(gomega.Equal("42"))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g.Expect(formatCSVValue(ts)).To(gomega.Equal("2026-01-02T03:04:05Z"))

	g.Expect(formatCSVValue(map[string]any{"k": "v"})).To(gomega.Equal(`{"k":"v"}`))
}

func TestStderrWarnings(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(stderrWarnings("")).To(gomega.BeEmpty())
	g.Expect(stderrWarnings("warn a\n\nwarn b\n")).To(gomega.Equal([]string{"warn a", "warn b"}))

	var long string
	for i := 0; i < 20; i++ {
		long += "warning line\n"
	}
	g.Expect(stderrWarnings(long)).To(gomega.HaveLen(restoreWarningLines))
}
