package provision

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/onsi/gomega"
)

func TestNamesFor(t *testing.T) {
	g := gomega.NewWithT(t)

	id := uuid.MustParse("0190d3a1-7b5c-7c3e-a000-000000000001")
	n := namesFor(id)

	g.Expect(n.database).To(gomega.Equal("proj_0190d3a17b5c7c3ea000000000000001"))
	g.Expect(n.ownerRole).To(gomega.Equal(n.database + "_owner"))
	g.Expect(n.appRole).To(gomega.Equal(n.database + "_app"))
	g.Expect(n.database).ToNot(gomega.ContainSubstring("-"))
}

func TestSlugValidation(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(slugRe.MatchString("my-project")).To(gomega.BeTrue())
	g.Expect(slugRe.MatchString("p2")).To(gomega.BeTrue())
	g.Expect(slugRe.MatchString("0day")).To(gomega.BeTrue())

	g.Expect(slugRe.MatchString("p")).To(gomega.BeFalse())
	g.Expect(slugRe.MatchString("-leading")).To(gomega.BeFalse())
	g.Expect(slugRe.MatchString("UPPER")).To(gomega.BeFalse())
	g.Expect(slugRe.MatchString("has space")).To(gomega.BeFalse())
	g.Expect(slugRe.MatchString(strings.Repeat("a", 64))).To(gomega.BeFalse())
}

func TestRandomPassword(t *testing.T) {
	g := gomega.NewWithT(t)

	a, err := randomPassword()
	g.Expect(err).ToNot(gomega.HaveOccurred())
	b, err := randomPassword()
	g.Expect(err).ToNot(gomega.HaveOccurred())

	g.Expect(a).To(gomega.HaveLen(32))
	g.Expect(a).ToNot(gomega.Equal(b))
}
