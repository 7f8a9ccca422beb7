package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/evesync/internal/database"
)

// KeyStore reads and writes util_registered_key.
type KeyStore struct {
	db *database.DB
}

// NewKeyStore creates a KeyStore.
func NewKeyStore(db *database.DB) *KeyStore {
	return &KeyStore{db: db}
}

func (s *KeyStore) selectKeys() sq.SelectBuilder {
	return s.db.Dialect.Builder().
		Select("urk.key_id", "urk.active_api_mask", "urk.v_code", "urk.is_active",
			"COALESCE(aaki.type, '')").
		From("util_registered_key AS urk").
		LeftJoin("account_api_key_info AS aaki ON urk.key_id = aaki.key_id")
}

func scanKey(row interface{ Scan(...any) error }) (*Key, error) {
	k := &Key{exists: true}
	if err := row.Scan(&k.ID, &k.ActiveMask, &k.VCode, &k.IsActive, &k.Type); err != nil {
		return nil, err
	}
	return k, nil
}

// Find returns the key with id. A missing key is reported with found=false
// and a nil error.
func (s *KeyStore) Find(ctx context.Context, id int64) (key *Key, found bool, err error) {
	if id <= 0 {
		return nil, false, fmt.Errorf("invalid key id %d", id)
	}

	query, args, err := s.selectKeys().Where(sq.Eq{"urk.key_id": id}).ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build key query: %w", err)
	}

	key, err = scanKey(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find key %d: %w", id, err)
	}
	return key, true, nil
}

// Lookup returns the key with id. When it does not exist and create is true
// a new unsaved key with an empty mask is returned; otherwise ErrKeyNotFound.
func (s *KeyStore) Lookup(ctx context.Context, id int64, create bool) (*Key, error) {
	key, found, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		return key, nil
	}
	if !create {
		return nil, fmt.Errorf("%w: %d", ErrKeyNotFound, id)
	}
	return NewKey(id), nil
}

// Active returns every active key ordered by id.
func (s *KeyStore) Active(ctx context.Context) ([]*Key, error) {
	query, args, err := s.selectKeys().
		Where(sq.Eq{"urk.is_active": true}).
		OrderBy("urk.key_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active keys query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active keys: %w", err)
	}
	defer rows.Close()

	var keys []*Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Store upserts the key.
func (s *KeyStore) Store(ctx context.Context, k *Key) error {
	query, args, err := s.db.Dialect.Builder().
		Insert("util_registered_key").
		Columns("key_id", "active_api_mask", "v_code", "is_active").
		Values(k.ID, k.ActiveMask, k.VCode, k.IsActive).
		Suffix("ON CONFLICT (key_id) DO UPDATE SET " +
			"active_api_mask = EXCLUDED.active_api_mask, " +
			"v_code = EXCLUDED.v_code, " +
			"is_active = EXCLUDED.is_active").
		ToSql()
	if err != nil {
		return fmt.Errorf("build key upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store key %d: %w", k.ID, err)
	}
	k.exists = true
	return nil
}
