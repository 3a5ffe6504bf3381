package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relves/landreg/internal/storage"
	"github.com/relves/landreg/pkg/registry"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed state store holding finalized registry state.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates (if needed) and opens the registry database under basePath.
func Open(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(basePath, "registry.db")
	db, err := sql.Open("sqlite", dbPath+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+ // Wait up to 5s on lock instead of returning SQLITE_BUSY immediately
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connection pool - SQLite handles concurrent writes poorly
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DBPath() string {
	return s.dbPath
}

func (s *Store) Owners(ctx context.Context) ([]registry.Owner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, firstname, lastname, public_key FROM owners ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []registry.Owner
	for rows.Next() {
		var o registry.Owner
		var pub []byte
		if err := rows.Scan(&o.ID, &o.Firstname, &o.Lastname, &pub); err != nil {
			return nil, err
		}
		o.PublicKey = pub
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (s *Store) Owner(ctx context.Context, id uint64) (*registry.Owner, error) {
	var o registry.Owner
	var pub []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, firstname, lastname, public_key FROM owners WHERE id = ?`,
		id).Scan(&o.ID, &o.Firstname, &o.Lastname, &pub)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.PublicKey = pub
	return &o, nil
}

func (s *Store) Objects(ctx context.Context) ([]registry.Object, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, boundary, owner_id, deleted FROM objects ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []registry.Object
	for rows.Next() {
		obj, err := scanObject(rows.Scan)
		if err != nil {
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, rows.Err()
}

func (s *Store) Object(ctx context.Context, id uint64) (*registry.Object, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, boundary, owner_id, deleted FROM objects WHERE id = ?`, id)
	obj, err := scanObject(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return obj, err
}

func scanObject(scan func(...any) error) (*registry.Object, error) {
	var o registry.Object
	var boundary string
	var deleted int
	if err := scan(&o.ID, &o.Title, &boundary, &o.OwnerID, &deleted); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(boundary), &o.Boundary); err != nil {
		return nil, fmt.Errorf("decode boundary: %w", err)
	}
	o.Deleted = deleted != 0
	return &o, nil
}

func (s *Store) Result(ctx context.Context, txHash string) (*registry.ExecutionResult, error) {
	var res registry.ExecutionResult
	var description sql.NullString
	var ownerID, objectID sql.NullInt64
	var finalizedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT tx_hash, kind, status, description, owner_id, object_id, block_height, finalized_at
		 FROM results WHERE tx_hash = ?`,
		txHash).Scan(&res.TxHash, &res.Kind, &res.Status, &description, &ownerID, &objectID, &res.BlockHeight, &finalizedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if description.Valid {
		res.Description = description.String
	}
	if ownerID.Valid {
		v := uint64(ownerID.Int64)
		res.OwnerID = &v
	}
	if objectID.Valid {
		v := uint64(objectID.Int64)
		res.ObjectID = &v
	}
	res.FinalizedAt, _ = time.Parse(time.RFC3339Nano, finalizedAt)
	return &res, nil
}

func (s *Store) HasResult(ctx context.Context, txHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM results WHERE tx_hash = ?`, txHash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) PutResult(ctx context.Context, res *registry.ExecutionResult) error {
	var ownerID, objectID any
	if res.OwnerID != nil {
		ownerID = int64(*res.OwnerID)
	}
	if res.ObjectID != nil {
		objectID = int64(*res.ObjectID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (tx_hash, kind, status, description, owner_id, object_id, block_height, finalized_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tx_hash) DO NOTHING`,
		res.TxHash, string(res.Kind), string(res.Status), res.Description,
		ownerID, objectID, res.BlockHeight, res.FinalizedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) InsertParticipant(ctx context.Context, publicKey []byte, name string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (public_key, name, registered_at) VALUES (?, ?, ?)
		 ON CONFLICT(public_key) DO NOTHING`,
		publicKey, name, now)
	return err
}

func (s *Store) InsertOwner(ctx context.Context, firstname, lastname string, publicKey []byte) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO owners (firstname, lastname, public_key) VALUES (?, ?, ?)`,
		firstname, lastname, publicKey)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *Store) OwnerExists(ctx context.Context, id uint64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM owners WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) InsertObject(ctx context.Context, title string, boundary []registry.GeoPoint, ownerID uint64) (uint64, error) {
	encoded, err := json.Marshal(boundary)
	if err != nil {
		return 0, fmt.Errorf("encode boundary: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (title, boundary, owner_id, deleted) VALUES (?, ?, ?, 0)`,
		title, string(encoded), ownerID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *Store) SetObjectOwner(ctx context.Context, objectID, ownerID uint64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET owner_id = ? WHERE id = ?`, ownerID, objectID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) SetObjectDeleted(ctx context.Context, objectID uint64, deleted bool) error {
	flag := 0
	if deleted {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET deleted = ? WHERE id = ?`, flag, objectID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) AppendLeaves(ctx context.Context, from uint64, hashes [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leaves (idx, hash) VALUES (?, ?)
		 ON CONFLICT(idx) DO NOTHING`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, h := range hashes {
		if _, err := stmt.ExecContext(ctx, from+uint64(i), h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) LeafHashes(ctx context.Context, from, to uint64) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM leaves WHERE idx >= ? AND idx < ? ORDER BY idx`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes [][]byte
	for rows.Next() {
		var h []byte
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// GetTreeState retrieves the ledger tree state. Returns (0, nil, nil) before
// the first seal.
func (s *Store) GetTreeState(ctx context.Context) (uint64, []byte, error) {
	var size uint64
	var root []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT size, root FROM tree_state WHERE id = 0`).Scan(&size, &root)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return size, root, nil
}

func (s *Store) SetTreeState(ctx context.Context, size uint64, root, checkpoint []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tree_state (id, size, root, checkpoint) VALUES (0, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET size = excluded.size, root = excluded.root, checkpoint = excluded.checkpoint`,
		size, root, checkpoint)
	return err
}

// Checkpoint returns the node-signed checkpoint over the current tree state,
// or nil before the first seal.
func (s *Store) Checkpoint(ctx context.Context) ([]byte, error) {
	var cp []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint FROM tree_state WHERE id = 0`).Scan(&cp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}
