package dao

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/filegate/entity"

	"github.com/didi/gendry/builder"
	"github.com/google/uuid"
	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/dbkit"
)

type IFileIndexDao interface {
	IndexFile(ctx context.Context, req *entity.IndexFileRequest) (*entity.IndexFileResponse, error)
	ResolveId(ctx context.Context, id string) (*entity.FileIndexItem, bool, error)
	IdentifyPath(ctx context.Context, basePath, relPath string) (*entity.FileIndexItem, bool, error)
	BulkResolve(ctx context.Context, ids []string) (map[string]*entity.FileIndexItem, error)
	Rename(ctx context.Context, id string, basePath, relPath string) error
	RemoveFromIndex(ctx context.Context, basePath, relPath string) error
	RemoveFromIndexRecursive(ctx context.Context, basePath, relPath string) error
	TouchIndexedAtUnderDir(ctx context.Context, basePath, dirPath string, ts int64) error
	RemoveStaleEntries(ctx context.Context, basePath string, before int64) (int64, error)
	GetIndexStats(ctx context.Context) (*entity.IndexStats, error)
}

type fileIndexDaoImpl struct {
	dbc database.IDatabase
}

func NewFileIndexDao(dbc database.IDatabase) IFileIndexDao {
	return &fileIndexDaoImpl{dbc: dbc}
}

func (f *fileIndexDaoImpl) table() string {
	return "file_index_tab"
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// escapeLike escapes LIKE metacharacters in a literal prefix so a directory
// name containing \, % or _ cannot match its siblings. Queries using the
// result must carry ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func (f *fileIndexDaoImpl) queryOne(ctx context.Context, where map[string]interface{}) (*entity.FileIndexItem, bool, error) {
	where["_limit"] = []uint{0, 1}
	rs := make([]*entity.FileIndexItem, 0, 1)
	if err := dbkit.SimpleQuery(ctx, f.dbc, f.table(), where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, false, err
	}
	if len(rs) == 0 {
		return nil, false, nil
	}
	return rs[0], true, nil
}

// IndexFile implements the identity algorithm: an existing (base, rel) row
// is refreshed in place; otherwise a (dev, ino) match within the base means
// the inode moved and keeps its id; otherwise a new row is inserted with a
// fresh time-ordered id.
func (f *fileIndexDaoImpl) IndexFile(ctx context.Context, req *entity.IndexFileRequest) (*entity.IndexFileResponse, error) {
	statFields := map[string]interface{}{
		"dev":        req.Dev,
		"ino":        req.Ino,
		"file_size":  req.FileSize,
		"mtime_ms":   req.MtimeMs,
		"is_dir":     boolToInt(req.IsDir),
		"indexed_at": req.IndexedAt,
	}
	if item, ok, err := f.IdentifyPath(ctx, req.BasePath, req.RelPath); err != nil {
		return nil, err
	} else if ok {
		if err := f.update(ctx, map[string]interface{}{"id": item.Id}, statFields); err != nil {
			return nil, err
		}
		return &entity.IndexFileResponse{Id: item.Id, Action: entity.IndexActionExisting}, nil
	}
	if item, ok, err := f.queryOne(ctx, map[string]interface{}{
		"base_path": req.BasePath,
		"dev":       req.Dev,
		"ino":       req.Ino,
	}); err != nil {
		return nil, err
	} else if ok {
		update := statFields
		update["rel_path"] = req.RelPath
		if err := f.update(ctx, map[string]interface{}{"id": item.Id}, update); err != nil {
			return nil, err
		}
		return &entity.IndexFileResponse{Id: item.Id, Action: entity.IndexActionMoved, PrevRelPath: item.RelPath}, nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id failed, err:%w", err)
	}
	data := []map[string]interface{}{
		{
			"id":         id.String(),
			"base_path":  req.BasePath,
			"rel_path":   req.RelPath,
			"dev":        req.Dev,
			"ino":        req.Ino,
			"file_size":  req.FileSize,
			"mtime_ms":   req.MtimeMs,
			"is_dir":     boolToInt(req.IsDir),
			"indexed_at": req.IndexedAt,
		},
	}
	sql, args, err := builder.BuildInsert(f.table(), data)
	if err != nil {
		return nil, err
	}
	if _, err := f.dbc.ExecContext(ctx, sql, args...); err != nil {
		return nil, err
	}
	return &entity.IndexFileResponse{Id: id.String(), Action: entity.IndexActionAdded}, nil
}

func (f *fileIndexDaoImpl) update(ctx context.Context, where, update map[string]interface{}) error {
	sql, args, err := builder.BuildUpdate(f.table(), where, update)
	if err != nil {
		return err
	}
	_, err = f.dbc.ExecContext(ctx, sql, args...)
	return err
}

func (f *fileIndexDaoImpl) ResolveId(ctx context.Context, id string) (*entity.FileIndexItem, bool, error) {
	return f.queryOne(ctx, map[string]interface{}{"id": id})
}

func (f *fileIndexDaoImpl) IdentifyPath(ctx context.Context, basePath, relPath string) (*entity.FileIndexItem, bool, error) {
	return f.queryOne(ctx, map[string]interface{}{
		"base_path": basePath,
		"rel_path":  relPath,
	})
}

// BulkResolve returns a map keyed by id; missing ids are simply absent.
func (f *fileIndexDaoImpl) BulkResolve(ctx context.Context, ids []string) (map[string]*entity.FileIndexItem, error) {
	if len(ids) == 0 {
		return map[string]*entity.FileIndexItem{}, nil
	}
	where := map[string]interface{}{
		"id in": ids,
	}
	rs := make([]*entity.FileIndexItem, 0, len(ids))
	if err := dbkit.SimpleQuery(ctx, f.dbc, f.table(), where, &rs, dbkit.ScanWithTagName("json")); err != nil {
		return nil, err
	}
	m := make(map[string]*entity.FileIndexItem, len(rs))
	for _, item := range rs {
		m[item.Id] = item
	}
	return m, nil
}

// Rename points an existing id at a new location, preserving the id.
func (f *fileIndexDaoImpl) Rename(ctx context.Context, id string, basePath, relPath string) error {
	return f.update(ctx, map[string]interface{}{"id": id}, map[string]interface{}{
		"base_path": basePath,
		"rel_path":  relPath,
	})
}

func (f *fileIndexDaoImpl) RemoveFromIndex(ctx context.Context, basePath, relPath string) error {
	where := map[string]interface{}{
		"base_path": basePath,
		"rel_path":  relPath,
	}
	sql, args, err := builder.BuildDelete(f.table(), where)
	if err != nil {
		return err
	}
	_, err = f.dbc.ExecContext(ctx, sql, args...)
	return err
}

// RemoveFromIndexRecursive deletes the entry and everything below it.
func (f *fileIndexDaoImpl) RemoveFromIndexRecursive(ctx context.Context, basePath, relPath string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE base_path = ? AND (rel_path = ? OR rel_path LIKE ? ESCAPE '\')`, f.table())
	_, err := f.dbc.ExecContext(ctx, query, basePath, relPath, escapeLike(relPath)+"/%")
	return err
}

// TouchIndexedAtUnderDir bulk-bumps indexed_at for a directory and its
// descendants, used when a scan skips an unchanged subtree.
func (f *fileIndexDaoImpl) TouchIndexedAtUnderDir(ctx context.Context, basePath, dirPath string, ts int64) error {
	if dirPath == "." {
		// the base root: every entry of the base lives under it
		query := fmt.Sprintf(`UPDATE %s SET indexed_at = ? WHERE base_path = ?`, f.table())
		_, err := f.dbc.ExecContext(ctx, query, ts, basePath)
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET indexed_at = ? WHERE base_path = ? AND (rel_path = ? OR rel_path LIKE ? ESCAPE '\')`, f.table())
	_, err := f.dbc.ExecContext(ctx, query, ts, basePath, dirPath, escapeLike(dirPath)+"/%")
	return err
}

// RemoveStaleEntries deletes rows not touched since the scan generation.
func (f *fileIndexDaoImpl) RemoveStaleEntries(ctx context.Context, basePath string, before int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE base_path = ? AND indexed_at < ?`, f.table())
	rs, err := f.dbc.ExecContext(ctx, query, basePath, before)
	if err != nil {
		return 0, err
	}
	cnt, err := rs.RowsAffected()
	if err != nil {
		return 0, err
	}
	return cnt, nil
}

func (f *fileIndexDaoImpl) GetIndexStats(ctx context.Context) (*entity.IndexStats, error) {
	query := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_dir = 0 THEN 1 ELSE 0 END), 0), COALESCE(SUM(is_dir), 0), COALESCE(SUM(CASE WHEN is_dir = 0 THEN file_size ELSE 0 END), 0) FROM %s`, f.table())
	rows, err := f.dbc.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	st := &entity.IndexStats{}
	if rows.Next() {
		if err := rows.Scan(&st.TotalEntries, &st.TotalFiles, &st.TotalDirs, &st.TotalBytes); err != nil {
			return nil, err
		}
	}
	return st, rows.Err()
}
