package objectstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/onsi/gomega"
)

func TestBucketName(t *testing.T) {
	g := gomega.NewWithT(t)

	id := uuid.MustParse("0190d3a1-7b5c-7c3e-a000-000000000001")
	g.Expect(BucketName(id)).To(gomega.Equal("proj-0190d3a1-7b5c-7c3e-a000-000000000001"))
}

func TestSanitizePath(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(SanitizePath("avatars/user1.png")).To(gomega.Equal("avatars/user1.png"))
	g.Expect(SanitizePath("my file (1).png")).To(gomega.Equal("my_file__1_.png"))
	g.Expect(SanitizePath("/leading/slash")).To(gomega.Equal("leading/slash"))
	g.Expect(SanitizePath("a//b")).To(gomega.Equal("a/b"))
	g.Expect(SanitizePath("../../etc/passwd")).To(gomega.Equal("etc/passwd"))
	g.Expect(SanitizePath("dir/./file")).To(gomega.Equal("dir/file"))
}

func TestObjectKey(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(ObjectKey("uploads", "photos/cat.jpg")).To(gomega.Equal("uploads/photos/cat.jpg"))
	g.Expect(ObjectKey("private", "/report q3.pdf")).To(gomega.Equal("private/report_q3.pdf"))
}
