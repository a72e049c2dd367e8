package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/onsi/gomega"
)

func TestHashAndVerifyPassword(t *testing.T) {
	g := gomega.NewWithT(t)

	hash, err := HashPassword("correct horse battery staple")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(strings.Count(hash, ":")).To(gomega.Equal(1))

	g.Expect(VerifyPassword("correct horse battery staple", hash)).To(gomega.BeTrue())
	g.Expect(VerifyPassword("wrong password", hash)).To(gomega.BeFalse())
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	g := gomega.NewWithT(t)

	a, err := HashPassword("same")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	b, err := HashPassword("same")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(a).ToNot(gomega.Equal(b))
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(VerifyPassword("x", "")).To(gomega.BeFalse())
	g.Expect(VerifyPassword("x", "no-colon")).To(gomega.BeFalse())
	g.Expect(VerifyPassword("x", "zz:zz")).To(gomega.BeFalse())
}

func TestJWTRoundTrip(t *testing.T) {
	g := gomega.NewWithT(t)

	mgr := NewJWTManager([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	token, err := mgr.Generate("user-1", "session-1", "admin", time.Now())
	g.Expect(err).ToNot(gomega.HaveOccurred())

	claims, err := mgr.Verify(token)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(claims.UserID).To(gomega.Equal("user-1"))
	g.Expect(claims.SessionID).To(gomega.Equal("session-1"))
	g.Expect(claims.Role).To(gomega.Equal("admin"))
}

func TestJWTRejectsExpired(t *testing.T) {
	g := gomega.NewWithT(t)

	mgr := NewJWTManager([]byte("0123456789abcdef0123456789abcdef"), time.Minute)

	token, err := mgr.Generate("user-1", "session-1", "admin", time.Now().Add(-time.Hour))
	g.Expect(err).ToNot(gomega.HaveOccurred())

	_, err = mgr.Verify(token)
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	g := gomega.NewWithT(t)

	a := NewJWTManager([]byte("secret-a-secret-a-secret-a-secre"), time.Hour)
	b := NewJWTManager([]byte("secret-b-secret-b-secret-b-secre"), time.Hour)

	token, err := a.Generate("user-1", "session-1", "admin", time.Now())
	g.Expect(err).ToNot(gomega.HaveOccurred())

	_, err = b.Verify(token)
	g.Expect(err).To(gomega.HaveOccurred())
}
