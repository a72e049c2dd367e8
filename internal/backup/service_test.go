package backup

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/config"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/objectstore"
	"github.com/parabase-io/parabase/internal/repositories"
)

// memBackupRepo holds backup rows in memory and records deletions.
type memBackupRepo struct {
	repositories.BackupRepository
	rows    map[uuid.UUID]*db.Backup
	deleted []uuid.UUID
}

func (m *memBackupRepo) GetByID(_ context.Context, id uuid.UUID) (*db.Backup, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return row, nil
}

func (m *memBackupRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.rows[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.rows, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memBackupRepo) ListExpired(_ context.Context, now time.Time) ([]db.Backup, error) {
	var out []db.Backup
	for _, row := range m.rows {
		if row.ExpiresAt != nil && row.ExpiresAt.Before(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

type memBackupStore struct {
	repositories.Store
	backups *memBackupRepo
}

func (m *memBackupStore) Backups() repositories.BackupRepository { return m.backups }

// unreachableObjectStore builds a client against a port nothing listens on,
// so every operation fails at dial time.
func unreachableObjectStore(t *testing.T) *objectstore.Client {
	t.Helper()
	objects, err := objectstore.New(config.ObjectStore{
		Endpoint:  "127.0.0.1",
		Port:      1,
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test",
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return objects
}

func TestDeleteRemovesRowWhenArtifactRemovalFails(t *testing.T) {
	g := gomega.NewWithT(t)

	id := uuid.New()
	completedAt := time.Now()
	row := &db.Backup{
		Type:        db.BackupTypeProject,
		ObjectKey:   "projects/p/full_20260824T000000Z.sql",
		Format:      db.BackupFormatSQL,
		Status:      db.BackupStatusCompleted,
		CompletedAt: &completedAt,
	}
	row.ID = id

	repo := &memBackupRepo{rows: map[uuid.UUID]*db.Backup{id: row}}
	store := &memBackupStore{backups: repo}
	svc := NewService(store, nil, nil, unreachableObjectStore(t), nil, "", zap.NewNop(), nil)

	g.Expect(svc.Delete(context.Background(), id)).To(gomega.Succeed())
	g.Expect(repo.deleted).To(gomega.ConsistOf([]uuid.UUID{id}))
	g.Expect(repo.rows).To(gomega.BeEmpty())
}

func TestSweepExpiredPurgesDespiteObjectStoreOutage(t *testing.T) {
	g := gomega.NewWithT(t)

	expired := time.Now().Add(-time.Hour)
	completedAt := time.Now().Add(-48 * time.Hour)

	id := uuid.New()
	row := &db.Backup{
		Type:        db.BackupTypeProject,
		ObjectKey:   "projects/p/full_20260822T000000Z.sql",
		Format:      db.BackupFormatSQL,
		Status:      db.BackupStatusCompleted,
		CompletedAt: &completedAt,
		ExpiresAt:   &expired,
	}
	row.ID = id

	repo := &memBackupRepo{rows: map[uuid.UUID]*db.Backup{id: row}}
	store := &memBackupStore{backups: repo}
	svc := NewService(store, nil, nil, unreachableObjectStore(t), nil, "", zap.NewNop(), nil)

	removed, err := svc.SweepExpired(context.Background())
	g.Expect(err).ToNot(gomega.HaveOccurred())
	g.Expect(removed).To(gomega.Equal(1))
	g.Expect(repo.deleted).To(gomega.ConsistOf([]uuid.UUID{id}))
}
