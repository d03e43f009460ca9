package postgresql

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed, rolledBack bool
	commitErr             error
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return tx.commitErr
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}

type fakeClient struct {
	Client
	tx *fakeTx
}

func (c *fakeClient) Begin(context.Context) (pgx.Tx, error) {
	return c.tx, nil
}

func TestWithTransactionCommits(t *testing.T) {
	db := &fakeClient{tx: &fakeTx{}}

	err := WithTransaction(context.Background(), db, func(ctx context.Context) error {
		assert.Same(t, db.tx, GetDBClient(ctx, db))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, db.tx.committed)
	assert.False(t, db.tx.rolledBack)
	assert.Same(t, db, GetDBClient(context.Background(), db))
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := &fakeClient{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := WithTransaction(context.Background(), db, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, db.tx.rolledBack)
	assert.False(t, db.tx.committed)
}

func TestWithTransactionReportsCommitError(t *testing.T) {
	commitErr := errors.New("serialization failure")
	db := &fakeClient{tx: &fakeTx{commitErr: commitErr}}

	err := WithTransaction(context.Background(), db, func(context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, commitErr)
}

func TestWithTransactionRepanics(t *testing.T) {
	db := &fakeClient{tx: &fakeTx{}}

	assert.Panics(t, func() {
		_ = WithTransaction(context.Background(), db, func(context.Context) error {
			panic("oops")
		})
	})
	assert.True(t, db.tx.rolledBack)
}
