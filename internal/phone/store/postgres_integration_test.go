//go:build integration

package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"phones/internal/phone/models"
	"phones/internal/phone/store"
	"phones/pkg/platform/sentinel"
	"phones/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.postgres.ApplyMigrations(s.T(), migrationsDir())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.postgres.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "phones"))
	s.Require().NoError(s.store.RebaseTypes(s.ctx, nil))
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func newTestPhone(entity uuid.UUID, number string) models.Phone {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.Phone{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		Entity:    entity,
		Type:      models.VoidEntityType,
		Country:   "RU",
		Number:    number,
	}
}

func (s *PostgresStoreSuite) fetchByID(id uuid.UUID) models.Phone {
	res, err := s.store.List(s.ctx, models.ListFilter{
		Where: []models.WhereClause{{Field: "id", Op: models.OpEq, Values: []string{id.String()}}},
	})
	s.Require().NoError(err)
	s.Require().Len(res.Nodes, 1)
	return res.Nodes[0]
}

func (s *PostgresStoreSuite) TestUpsertRoundTrip() {
	desc := "work line"
	p := newTestPhone(uuid.New(), "+79261234567")
	p.Description = &desc
	p.MetaData = []json.RawMessage{json.RawMessage(`{"source":"import"}`)}

	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{p}))

	got := s.fetchByID(p.ID)
	s.Equal(p.Number, got.Number)
	s.Equal(p.Entity, got.Entity)
	s.Require().NotNil(got.Description)
	s.Equal(desc, *got.Description)
	s.Require().Len(got.MetaData, 1)
	s.JSONEq(`{"source":"import"}`, string(got.MetaData[0]))
	s.WithinDuration(p.CreatedAt, got.CreatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestUpsertPreservesCreatedAt() {
	p := newTestPhone(uuid.New(), "+79261234567")
	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{p}))

	later := p
	later.CreatedAt = p.CreatedAt.Add(time.Hour)
	later.UpdatedAt = p.UpdatedAt.Add(time.Hour)
	later.Number = "+79267654321"
	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{later}))

	got := s.fetchByID(p.ID)
	s.Equal("+79267654321", got.Number)
	s.WithinDuration(p.CreatedAt, got.CreatedAt, time.Millisecond)
	s.WithinDuration(later.UpdatedAt, got.UpdatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestUpsertRejectsUnregisteredType() {
	p := newTestPhone(uuid.New(), "+79261234567")
	p.Type = "Customer"

	err := s.store.Upsert(s.ctx, []models.Phone{p})
	s.Require().ErrorIs(err, sentinel.ErrInvalidReference)
}

func (s *PostgresStoreSuite) TestListWindowedTotal() {
	entity := uuid.New()
	for i := 0; i < 3; i++ {
		p := newTestPhone(entity, "+7926000000"+string(rune('1'+i)))
		s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{p}))
	}

	res, err := s.store.List(s.ctx, models.ListFilter{
		Limit:  2,
		Where:  []models.WhereClause{{Field: "entity", Op: models.OpEq, Values: []string{entity.String()}}},
		OrderBy: []models.OrderBy{{Field: "createdAt", Direction: models.OrderAsc}},
	})
	s.Require().NoError(err)
	s.Len(res.Nodes, 2)
	s.Equal(3, res.TotalCount)
}

func (s *PostgresStoreSuite) TestListDefaultsLimitToOne() {
	entity := uuid.New()
	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{
		newTestPhone(entity, "+79260000001"),
		newTestPhone(entity, "+79260000002"),
	}))

	res, err := s.store.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(res.Nodes, 1)
	s.Equal(2, res.TotalCount)
}

func (s *PostgresStoreSuite) TestUpsertAndDeleteIsAtomic() {
	entity := uuid.New()
	old := newTestPhone(entity, "+79260000001")
	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{old}))

	// A fresh row with an unregistered type fails the whole transaction: the
	// old row must survive.
	bad := newTestPhone(entity, "+79260000002")
	bad.Type = "Customer"
	err := s.store.UpsertAndDelete(s.ctx, []models.Phone{bad}, []uuid.UUID{old.ID})
	s.Require().Error(err)

	got := s.fetchByID(old.ID)
	s.Equal(old.Number, got.Number)

	fresh := newTestPhone(entity, "+79260000003")
	s.Require().NoError(s.store.UpsertAndDelete(s.ctx, []models.Phone{fresh}, []uuid.UUID{old.ID}))

	res, err := s.store.List(s.ctx, models.ListFilter{
		Limit: -1,
		Where: []models.WhereClause{{Field: "entity", Op: models.OpEq, Values: []string{entity.String()}}},
	})
	s.Require().NoError(err)
	s.Require().Len(res.Nodes, 1)
	s.Equal(fresh.ID, res.Nodes[0].ID)
}

func (s *PostgresStoreSuite) TestUpdateUnknownRow() {
	err := s.store.Update(s.ctx, newTestPhone(uuid.New(), "+79261234567"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteByEntities() {
	entity := uuid.New()
	keep := newTestPhone(uuid.New(), "+79260000009")
	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{
		newTestPhone(entity, "+79260000001"),
		newTestPhone(entity, "+79260000002"),
		keep,
	}))

	s.Require().NoError(s.store.DeleteByEntities(s.ctx, []uuid.UUID{entity}))

	res, err := s.store.List(s.ctx, models.ListFilter{Limit: -1})
	s.Require().NoError(err)
	s.Require().Len(res.Nodes, 1)
	s.Equal(keep.ID, res.Nodes[0].ID)
}

func (s *PostgresStoreSuite) TestRebaseTypes() {
	s.Require().NoError(s.store.RebaseTypes(s.ctx, []string{"Customer", "Supplier"}))

	types, err := s.store.ListTypes(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Customer", "Supplier", models.VoidEntityType}, types)

	p := newTestPhone(uuid.New(), "+79261234567")
	p.Type = "Customer"
	s.Require().NoError(s.store.Upsert(s.ctx, []models.Phone{p}))

	err = s.store.RebaseTypes(s.ctx, []string{"Supplier"})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}
