package preserve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/evesync/internal/database"
	"github.com/JonMunkholm/evesync/internal/database/dbtest"
)

var refTypes = Table{
	Name: "eve_ref_types",
	Columns: []Column{
		{Name: "ref_type_id", Field: "refTypeID", Type: Integer},
		{Name: "ref_type_name", Field: "refTypeName", Type: Text},
	},
	Keys: []string{"ref_type_id"},
}

var journal = Table{
	Name: "char_wallet_journal",
	Columns: []Column{
		{Name: "owner_id", Type: Integer},
		{Name: "account_key", Field: "accountKey", Type: Integer, Default: int64(1000)},
		{Name: "ref_id", Field: "refID", Type: Integer},
		{Name: "date", Type: Timestamp},
		{Name: "ref_type_id", Field: "refTypeID", Type: Integer},
		{Name: "amount", Type: Decimal},
		{Name: "balance", Type: Decimal},
		{Name: "reason", Type: Text},
	},
	Keys:   []string{"owner_id", "ref_id"},
	Upsert: true,
}

func journalRow(refID, amount string) map[string]string {
	return map[string]string{
		"refID":     refID,
		"date":      "2011-04-01 12:00:00",
		"refTypeID": "10",
		"amount":    amount,
		"balance":   "1,000.00",
		"reason":    "",
	}
}

func flushRows(t *testing.T, store *Store, table Table, defaults map[string]any, rows ...map[string]string) {
	t.Helper()
	ctx := context.Background()

	b, err := store.BeginBatch(ctx, table, defaults)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, b.AddRow(r))
	}
	assert.Equal(t, len(rows), b.Len())
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, len(rows), b.Written())
}

// =============================================================================
// Upsert semantics
// =============================================================================

func TestFlush_UpsertIsIdempotent(t *testing.T) {
	db := dbtest.New(t)
	store := NewStore(db)
	owner := map[string]any{"owner_id": int64(90001)}

	rows := []map[string]string{journalRow("1", "12.50"), journalRow("2", "-3.25")}
	flushRows(t, store, journal, owner, rows...)
	flushRows(t, store, journal, owner, rows...)

	assert.Equal(t, 2, dbtest.Count(t, db, "char_wallet_journal"))

	var (
		accountKey int64
		amount     float64
		balance    float64
		date       time.Time
	)
	err := db.QueryRow(`SELECT account_key, amount, balance, date FROM char_wallet_journal WHERE ref_id = 1`).
		Scan(&accountKey, &amount, &balance, &date)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), accountKey, "column default applied")
	assert.Equal(t, 12.5, amount)
	assert.Equal(t, 1000.0, balance)
	assert.True(t, date.Equal(time.Date(2011, 4, 1, 12, 0, 0, 0, time.UTC)))
}

func TestFlush_LaterWriteWins(t *testing.T) {
	db := dbtest.New(t)
	store := NewStore(db)
	owner := map[string]any{"owner_id": int64(90001)}

	flushRows(t, store, journal, owner, journalRow("1", "1.00"), journalRow("2", "2.00"))

	second := journalRow("2", "20.00")
	second["reason"] = "updated"
	flushRows(t, store, journal, owner, second, journalRow("3", "3.00"))

	assert.Equal(t, 3, dbtest.Count(t, db, "char_wallet_journal"))

	var (
		amount float64
		reason string
	)
	require.NoError(t, db.QueryRow(`SELECT amount, reason FROM char_wallet_journal WHERE ref_id = 2`).
		Scan(&amount, &reason))
	assert.Equal(t, 20.0, amount)
	assert.Equal(t, "updated", reason)
}

func TestFlush_RollsBackWholeBatchOnFailure(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	store := NewStore(db)

	b, err := store.BeginBatch(ctx, refTypes, nil)
	require.NoError(t, err)
	require.NoError(t, b.AddRow(map[string]string{"refTypeID": "1", "refTypeName": "Player Trading"}))
	// ref_type_name is NOT NULL and has no default.
	require.NoError(t, b.AddRow(map[string]string{"refTypeID": "2"}))

	err = b.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eve_ref_types row 1")
	assert.Equal(t, 0, dbtest.Count(t, db, "eve_ref_types"))
	assert.ErrorIs(t, b.Flush(ctx), ErrSessionClosed)
}

func TestFlush_AllKeyColumnsDoNothing(t *testing.T) {
	db := dbtest.New(t)
	store := NewStore(db)

	keysOnly := Table{
		Name: "account_characters",
		Columns: []Column{
			{Name: "key_id", Type: Integer},
			{Name: "character_id", Field: "characterID", Type: Integer},
		},
		Keys:   []string{"key_id", "character_id"},
		Upsert: true,
	}
	key := map[string]any{"key_id": int64(7)}
	flushRows(t, store, keysOnly, key, map[string]string{"characterID": "5"})
	flushRows(t, store, keysOnly, key, map[string]string{"characterID": "5"})

	assert.Equal(t, 1, dbtest.Count(t, db, "account_characters"))
}

// =============================================================================
// Replace semantics
// =============================================================================

func TestBeginBatch_ReplaceClearsTable(t *testing.T) {
	db := dbtest.New(t)
	store := NewStore(db)

	flushRows(t, store, refTypes, nil,
		map[string]string{"refTypeID": "1", "refTypeName": "a"},
		map[string]string{"refTypeID": "2", "refTypeName": "b"},
	)
	flushRows(t, store, refTypes, nil,
		map[string]string{"refTypeID": "3", "refTypeName": "c"},
	)

	assert.Equal(t, 1, dbtest.Count(t, db, "eve_ref_types"))
}

func TestBeginBatch_ReplaceScope(t *testing.T) {
	db := dbtest.New(t)
	store := NewStore(db)

	characters := Table{
		Name: "account_characters",
		Columns: []Column{
			{Name: "key_id", Type: Integer},
			{Name: "character_id", Field: "characterID", Type: Integer},
			{Name: "character_name", Field: "characterName", Type: Text},
		},
		Keys:         []string{"key_id", "character_id"},
		ReplaceScope: []string{"key_id"},
	}

	flushRows(t, store, characters, map[string]any{"key_id": int64(1)},
		map[string]string{"characterID": "10", "characterName": "a"},
		map[string]string{"characterID": "11", "characterName": "b"},
	)
	flushRows(t, store, characters, map[string]any{"key_id": int64(2)},
		map[string]string{"characterID": "20", "characterName": "c"},
	)
	flushRows(t, store, characters, map[string]any{"key_id": int64(1)},
		map[string]string{"characterID": "12", "characterName": "d"},
	)

	assert.Equal(t, 2, dbtest.Count(t, db, "account_characters"))

	_, err := store.BeginBatch(context.Background(), characters, nil)
	assert.ErrorContains(t, err, "replace scope column key_id has no value")
}

func TestBatch_RollbackKeepsPreviousRows(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	store := NewStore(db)

	flushRows(t, store, refTypes, nil, map[string]string{"refTypeID": "1", "refTypeName": "a"})

	b, err := store.BeginBatch(ctx, refTypes, nil)
	require.NoError(t, err)
	require.NoError(t, b.AddRow(map[string]string{"refTypeID": "2", "refTypeName": "b"}))
	require.NoError(t, b.Rollback())

	assert.Equal(t, 1, dbtest.Count(t, db, "eve_ref_types"), "replace delete rolled back")
}

// =============================================================================
// Sessions
// =============================================================================

func TestSession_MultiTableAtomicity(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	store := NewStore(db)

	t.Run("Should commit every batch together", func(t *testing.T) {
		sess, err := store.Begin(ctx)
		require.NoError(t, err)

		refs, err := sess.Batch(ctx, refTypes, nil)
		require.NoError(t, err)
		require.NoError(t, refs.AddRow(map[string]string{"refTypeID": "1", "refTypeName": "a"}))
		require.NoError(t, refs.Flush(ctx))

		j, err := sess.Batch(ctx, journal, map[string]any{"owner_id": int64(5)})
		require.NoError(t, err)
		require.NoError(t, j.AddRow(journalRow("1", "1")))
		require.NoError(t, j.Flush(ctx))

		require.NoError(t, sess.Commit())
		assert.Equal(t, 1, dbtest.Count(t, db, "eve_ref_types"))
		assert.Equal(t, 1, dbtest.Count(t, db, "char_wallet_journal"))

		_, err = sess.Batch(ctx, refTypes, nil)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("Should discard earlier batches when a later one fails", func(t *testing.T) {
		sess, err := store.Begin(ctx)
		require.NoError(t, err)

		refs, err := sess.Batch(ctx, refTypes, nil)
		require.NoError(t, err)
		require.NoError(t, refs.AddRow(map[string]string{"refTypeID": "9", "refTypeName": "z"}))
		require.NoError(t, refs.Flush(ctx))

		j, err := sess.Batch(ctx, journal, map[string]any{"owner_id": int64(5)})
		require.NoError(t, err)
		bad := journalRow("2", "1")
		delete(bad, "date")
		require.NoError(t, j.AddRow(bad))
		require.Error(t, j.Flush(ctx))

		require.NoError(t, sess.Rollback())
		assert.Equal(t, 1, dbtest.Count(t, db, "eve_ref_types"))
		assert.Equal(t, 1, dbtest.Count(t, db, "char_wallet_journal"))
	})
}

// =============================================================================
// AddRow
// =============================================================================

func TestAddRow_Errors(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	store := NewStore(db)

	b, err := store.BeginBatch(ctx, journal, map[string]any{"owner_id": int64(1)})
	require.NoError(t, err)
	defer b.Rollback()

	bad := journalRow("1", "lots")
	err = b.AddRow(bad)
	assert.ErrorContains(t, err, "invalid number")

	noKey := journalRow("", "1")
	err = b.AddRow(noKey)
	assert.ErrorContains(t, err, "required field ref_id is empty")

	assert.Equal(t, 0, b.Len())
}

func TestAddRow_RuntimeDefaultOverridesColumnDefault(t *testing.T) {
	db := dbtest.New(t)
	store := NewStore(db)

	flushRows(t, store, journal, map[string]any{"owner_id": int64(1), "account_key": "1001"}, journalRow("1", "1"))

	var key int64
	require.NoError(t, db.QueryRow(`SELECT account_key FROM char_wallet_journal`).Scan(&key))
	assert.Equal(t, int64(1001), key)
}

func TestUpsertSQL_Postgres(t *testing.T) {
	b := &Batch{
		sess:  &Session{dialect: database.Dialect{Driver: database.DriverPostgres}},
		table: refTypes,
	}
	query, args, err := b.upsert([]cell{{"ref_type_id", int64(1)}, {"ref_type_name", "a"}})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "eve_ref_types" ("ref_type_id","ref_type_name") VALUES ($1,$2) `+
			`ON CONFLICT ("ref_type_id") DO UPDATE SET "ref_type_name" = EXCLUDED."ref_type_name"`,
		query)
	assert.Equal(t, []any{int64(1), "a"}, args)
}

func TestTableValidate(t *testing.T) {
	assert.NoError(t, journal.Validate())
	assert.Error(t, Table{}.Validate())
	assert.Error(t, Table{Name: "t"}.Validate())
	assert.Error(t, Table{Name: "t", Columns: []Column{{Name: "a"}}, Keys: []string{"b"}}.Validate())
	assert.Error(t, Table{Name: "t", Columns: []Column{{Name: "a"}}, ReplaceScope: []string{"b"}}.Validate())
	assert.Error(t, Table{Name: "t", Columns: []Column{{Name: "a"}}, Upsert: true}.Validate())
	assert.Error(t, Table{Name: "t", Columns: []Column{{Name: "a"}, {Name: "a"}}}.Validate())

	c, ok := journal.Column("amount")
	require.True(t, ok)
	assert.Equal(t, Decimal, c.Type)
}
