package dao

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/filegate/entity"

	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/dbkit"
)

type IScanStateDao interface {
	Get(ctx context.Context, basePath, dirPath string) (*entity.ScanStateItem, bool, error)
	Upsert(ctx context.Context, item *entity.ScanStateItem) error
}

type scanStateDaoImpl struct {
	dbc database.IDatabase
}

func NewScanStateDao(dbc database.IDatabase) IScanStateDao {
	return &scanStateDaoImpl{dbc: dbc}
}

func (s *scanStateDaoImpl) table() string {
	return "scan_state_tab"
}

func (s *scanStateDaoImpl) Get(ctx context.Context, basePath, dirPath string) (*entity.ScanStateItem, bool, error) {
	where := map[string]interface{}{
		"base_path": basePath,
		"dir_path":  dirPath,
		"_limit":    []uint{0, 1},
	}
	rs := make([]*entity.ScanStateItem, 0, 1)
	if err := dbkit.SimpleQuery(ctx, s.dbc, s.table(), where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, false, err
	}
	if len(rs) == 0 {
		return nil, false, nil
	}
	return rs[0], true, nil
}

func (s *scanStateDaoImpl) Upsert(ctx context.Context, item *entity.ScanStateItem) error {
	query := fmt.Sprintf(`INSERT INTO %s (base_path, dir_path, mtime_ms, scanned_at) VALUES (?, ?, ?, ?)
ON CONFLICT (base_path, dir_path) DO UPDATE SET mtime_ms = excluded.mtime_ms, scanned_at = excluded.scanned_at`, s.table())
	_, err := s.dbc.ExecContext(ctx, query, item.BasePath, item.DirPath, item.MtimeMs, item.ScannedAt)
	return err
}
