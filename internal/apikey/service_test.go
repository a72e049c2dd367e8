package apikey

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// memKeyRepo keeps keys in a slice; only the methods the service touches are
// implemented.
type memKeyRepo struct {
	repositories.APIKeyRepository
	keys []db.APIKey
}

func (m *memKeyRepo) Create(_ context.Context, key *db.APIKey) error {
	key.ID = uuid.New()
	m.keys = append(m.keys, *key)
	return nil
}

func (m *memKeyRepo) ListActive(_ context.Context, now time.Time) ([]db.APIKey, error) {
	var out []db.APIKey
	for _, k := range m.keys {
		if k.Active(now) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKeyRepo) RevokeActiveByType(_ context.Context, projectID uuid.UUID, keyType crypto.KeyType, now time.Time) error {
	for i := range m.keys {
		k := &m.keys[i]
		if k.ProjectID == projectID && k.Type == keyType && k.Active(now) {
			revoked := now
			k.RevokedAt = &revoked
		}
	}
	return nil
}

type memStore struct {
	repositories.Store
	keys *memKeyRepo
}

func (m *memStore) APIKeys() repositories.APIKeyRepository { return m.keys }

func (m *memStore) Transaction(_ context.Context, fn func(tx repositories.Store) error) error {
	return fn(m)
}

func newTestService() (*Service, *memStore) {
	store := &memStore{keys: &memKeyRepo{}}
	return NewService(store, zap.NewNop(), nil), store
}

func TestValidateResolvesIssuedKey(t *testing.T) {
	g := gomega.NewWithT(t)
	svc, _ := newTestService()
	ctx := context.Background()
	projectID := uuid.New()

	key, plaintext, err := svc.Issue(ctx, projectID, crypto.KeyTypeSecret, nil)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(plaintext).To(gomega.HavePrefix("sk_"))

	pc, err := svc.Validate(ctx, plaintext)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(pc).ToNot(gomega.BeNil())
	g.Expect(pc.ProjectID).To(gomega.Equal(projectID))
	g.Expect(pc.KeyID).To(gomega.Equal(key.ID))
	g.Expect(pc.KeyType).To(gomega.Equal(crypto.KeyTypeSecret))

	pc, err = svc.Validate(ctx, "sk_not-a-real-key")
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(pc).To(gomega.BeNil())
}

func TestRotateInvalidatesOldKey(t *testing.T) {
	g := gomega.NewWithT(t)
	svc, _ := newTestService()
	ctx := context.Background()
	projectID := uuid.New()

	_, oldPlaintext, err := svc.Issue(ctx, projectID, crypto.KeyTypePublishable, nil)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	newKey, newPlaintext, err := svc.Rotate(ctx, projectID, crypto.KeyTypePublishable)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(newPlaintext).ToNot(gomega.Equal(oldPlaintext))

	pc, err := svc.Validate(ctx, oldPlaintext)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(pc).To(gomega.BeNil())

	pc, err = svc.Validate(ctx, newPlaintext)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(pc).ToNot(gomega.BeNil())
	g.Expect(pc.ProjectID).To(gomega.Equal(projectID))
	g.Expect(pc.KeyID).To(gomega.Equal(newKey.ID))
	g.Expect(pc.KeyType).To(gomega.Equal(crypto.KeyTypePublishable))
}

func TestRotateLeavesOtherTierAlone(t *testing.T) {
	g := gomega.NewWithT(t)
	svc, _ := newTestService()
	ctx := context.Background()
	projectID := uuid.New()

	_, secretPlaintext, err := svc.Issue(ctx, projectID, crypto.KeyTypeSecret, nil)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	_, _, err = svc.Rotate(ctx, projectID, crypto.KeyTypePublishable)
	g.Expect(err).ToNot(gomega.HaveOccurred())

	pc, err := svc.Validate(ctx, secretPlaintext)
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(pc).ToNot(gomega.BeNil())
	g.Expect(pc.KeyType).To(gomega.Equal(crypto.KeyTypeSecret))
}

func TestRotateRejectsUnknownType(t *testing.T) {
	g := gomega.NewWithT(t)
	svc, _ := newTestService()

	_, _, err := svc.Rotate(context.Background(), uuid.New(), crypto.KeyType("root"))
	g.Expect(err).To(gomega.HaveOccurred())
}
