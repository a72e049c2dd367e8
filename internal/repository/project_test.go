package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

func newMockStore(t *testing.T) (repositories.Store, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn:                 conn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return NewStore(gdb), mock
}

func TestProjectGetByID(t *testing.T) {
	g := NewWithT(t)
	store, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "projects" WHERE id = $1`)).
		WithArgs(id, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "name", "slug", "description"}).
			AddRow(id, now, now, "Blog", "blog", ""))

	project, err := store.Projects().GetByID(context.Background(), id)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(project.ID).To(Equal(id))
	g.Expect(project.Slug).To(Equal("blog"))
	g.Expect(mock.ExpectationsWereMet()).To(Succeed())
}

func TestProjectGetByIDNotFound(t *testing.T) {
	g := NewWithT(t)
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "projects" WHERE id = $1`)).
		WithArgs(id, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Projects().GetByID(context.Background(), id)
	g.Expect(err).To(MatchError(repositories.ErrNotFound))
	g.Expect(mock.ExpectationsWereMet()).To(Succeed())
}

func TestProjectDeleteNotFound(t *testing.T) {
	g := NewWithT(t)
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "projects" WHERE id = $1`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Projects().Delete(context.Background(), id)
	g.Expect(err).To(MatchError(repositories.ErrNotFound))
	g.Expect(mock.ExpectationsWereMet()).To(Succeed())
}

func TestProjectCount(t *testing.T) {
	g := NewWithT(t)
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "projects"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := store.Projects().Count(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(total).To(Equal(int64(7)))
	g.Expect(mock.ExpectationsWereMet()).To(Succeed())
}

func TestCredentialGetNotFound(t *testing.T) {
	g := NewWithT(t)
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "project_credentials" WHERE project_id = $1 AND principal = $2`)).
		WithArgs(id, db.PrincipalOwner, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Credentials().Get(context.Background(), id, db.PrincipalOwner)
	g.Expect(err).To(MatchError(repositories.ErrNotFound))
	g.Expect(mock.ExpectationsWereMet()).To(Succeed())
}
