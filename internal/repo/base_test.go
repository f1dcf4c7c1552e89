package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type visit struct {
	ID     uuid.UUID `gorm:"type:text;primaryKey"`
	Status string
}

func newVisitBase(t *testing.T) Base {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&visit{}))
	return NewBase(conn)
}

func TestDeleteByIDReportsWhetherRowExisted(t *testing.T) {
	base := newVisitBase(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, base.DB(ctx).Create(&visit{ID: id, Status: "In Progress"}).Error)

	deleted, err := base.DeleteByID(ctx, &visit{}, id)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = base.DeleteByID(ctx, &visit{}, id)
	require.NoError(t, err)
	require.False(t, deleted, "second delete must report a missing row")
}

func TestTouchedGuardsConditionalUpdate(t *testing.T) {
	base := newVisitBase(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, base.DB(ctx).Create(&visit{ID: id, Status: "In Progress"}).Error)

	complete := func() (bool, error) {
		return Touched(base.DB(ctx).Model(&visit{}).
			Where("id = ? AND status = ?", id, "In Progress").
			Update("status", "Completed"))
	}
	ok, err := complete()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = complete()
	require.NoError(t, err)
	require.False(t, ok, "guard must not match a completed visit")
}

func TestTouchedSurfacesQueryError(t *testing.T) {
	base := newVisitBase(t)
	_, err := Touched(base.DB(context.Background()).Table("missing_table").Where("id = ?", uuid.New()).Update("status", "x"))
	require.Error(t, err)
}

func TestDBBindsRequestContext(t *testing.T) {
	base := newVisitBase(t)
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "req-1")
	require.Equal(t, ctx, base.DB(ctx).Statement.Context)
	require.Same(t, base.db, base.DB(nil))
}
