package db

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/sqlite"
)

var (
	dbClient database.IDatabase
)

var sqllist = []struct {
	name string
	sql  string
}{
	{
		name: "pragma_wal",
		sql:  `PRAGMA journal_mode=WAL;`,
	},
	{
		name: "pragma_synchronous",
		sql:  `PRAGMA synchronous=NORMAL;`,
	},
	{
		name: "init_file_index_tab",
		sql: `
CREATE TABLE IF NOT EXISTS file_index_tab (
    id          TEXT NOT NULL,
    base_path   TEXT NOT NULL,
    rel_path    TEXT NOT NULL,
    dev         INTEGER NOT NULL,
    ino         INTEGER NOT NULL,
    file_size   INTEGER NOT NULL,
    mtime_ms    INTEGER NOT NULL,
    is_dir      INTEGER NOT NULL,
    indexed_at  INTEGER NOT NULL,
    PRIMARY KEY (id),
    UNIQUE (base_path, rel_path)
);
		`,
	},
	{
		name: "init_file_index_dev_ino_idx",
		sql:  `CREATE INDEX IF NOT EXISTS idx_file_index_dev_ino ON file_index_tab (dev, ino);`,
	},
	{
		name: "init_file_index_base_idx",
		sql:  `CREATE INDEX IF NOT EXISTS idx_file_index_base ON file_index_tab (base_path);`,
	},
	{
		name: "init_scan_state_tab",
		sql: `
CREATE TABLE IF NOT EXISTS scan_state_tab (
    base_path  TEXT NOT NULL,
    dir_path   TEXT NOT NULL,
    mtime_ms   INTEGER NOT NULL,
    scanned_at INTEGER NOT NULL,
    PRIMARY KEY (base_path, dir_path)
);
		`,
	},
}

func InitDB(file string) error {
	ctx := context.Background()
	db, err := sqlite.New(file, func(db database.IDatabase) error {
		for _, item := range sqllist {
			if _, err := db.ExecContext(ctx, item.sql); err != nil {
				return fmt.Errorf("init sql failed, sql:%s, err:%w", item.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	dbClient = db
	return nil
}

func GetClient() database.IDatabase {
	return dbClient
}
