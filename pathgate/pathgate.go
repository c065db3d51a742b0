package pathgate

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/ownership"
)

// Gate validates user-supplied paths against the configured base paths.
// Every reading or mutating operation must pass through it before touching
// the filesystem: the containment re-check after symlink resolution is the
// security boundary of the whole service.
type Gate struct {
	bases   []string
	applier *ownership.Applier

	mu        sync.Mutex
	realBases map[string]string
}

// ValidateOption tunes a single validation.
type ValidateOption struct {
	// AllowBasePath permits operating on the base directory itself.
	AllowBasePath bool
	// CreateParents creates the parent chain of the target before symlink
	// resolution.
	CreateParents bool
	// Ownership, when set together with CreateParents, is applied to every
	// directory created below the base.
	Ownership *ownership.Ownership
}

// PathResult is a successfully validated path.
type PathResult struct {
	// RealPath is the symlink-resolved absolute target. For targets that do
	// not exist yet it is realpath(parent)/basename.
	RealPath string
	// BasePath is the configured base the target lives under.
	BasePath string
}

// SameBaseResult is the outcome of validating a pair of endpoints.
type SameBaseResult struct {
	RealFrom string
	RealTo   string
	BasePath string
}

func New(bases []string, applier *ownership.Applier) *Gate {
	cleaned := make([]string, 0, len(bases))
	for _, b := range bases {
		cleaned = append(cleaned, filepath.Clean(b))
	}
	return &Gate{
		bases:     cleaned,
		applier:   applier,
		realBases: make(map[string]string, len(bases)),
	}
}

func (g *Gate) Bases() []string {
	return g.bases
}

// RealBase resolves a configured base through symlinks, memoized for the
// process lifetime. Bases do not change at runtime.
func (g *Gate) RealBase(base string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rp, ok := g.realBases[base]; ok {
		return rp, nil
	}
	rp, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("resolve base path failed, base:%s, err:%w", base, err)
	}
	g.realBases[base] = rp
	return rp, nil
}

func (g *Gate) matchBase(normalized string) (string, bool) {
	for _, b := range g.bases {
		if normalized == b || strings.HasPrefix(normalized, b+string(filepath.Separator)) {
			return b, true
		}
	}
	return "", false
}

// Validate runs the pre-flight on a user-supplied path: lexical
// normalization, base-prefix check, optional parent preparation, symlink
// resolution, and the real-base containment re-check.
func (g *Gate) Validate(ctx context.Context, path string, opt *ValidateOption) (*PathResult, error) {
	if opt == nil {
		opt = &ValidateOption{}
	}
	normalized := filepath.Clean(path)
	base, ok := g.matchBase(normalized)
	if !ok {
		return nil, errs.New(http.StatusForbidden, "path not allowed")
	}
	if normalized == base && !opt.AllowBasePath {
		return nil, errs.New(http.StatusForbidden, "cannot operate on base path")
	}
	if opt.CreateParents {
		if err := g.prepareParents(ctx, normalized, base, opt.Ownership); err != nil {
			return nil, err
		}
	}
	realPath, err := g.resolve(normalized)
	if err != nil {
		return nil, err
	}
	realBase, err := g.RealBase(base)
	if err != nil {
		return nil, errs.Wrap(http.StatusInternalServerError, err)
	}
	if realPath != realBase && !strings.HasPrefix(realPath, realBase+string(filepath.Separator)) {
		return nil, errs.New(http.StatusForbidden, "symlink escape not allowed")
	}
	return &PathResult{RealPath: realPath, BasePath: base}, nil
}

// prepareParents creates the parent chain of the normalized target and,
// when ownership is supplied, applies the directory ownership from the
// leaf-most created parent upward, stopping strictly before the base.
func (g *Gate) prepareParents(ctx context.Context, normalized, base string, owner *ownership.Ownership) error {
	parent := filepath.Dir(normalized)
	mode := os.FileMode(0755)
	if owner != nil {
		mode = owner.EffectiveDirMode()
	}
	if err := os.MkdirAll(parent, mode); err != nil {
		return errs.New(http.StatusInternalServerError, "create parent directories failed: %v", err)
	}
	if owner == nil {
		return nil
	}
	realBase, err := g.RealBase(base)
	if err != nil {
		return errs.Wrap(http.StatusInternalServerError, err)
	}
	for p := parent; p != base && p != realBase && len(p) > len(base); p = filepath.Dir(p) {
		if err := g.applier.ApplyDir(ctx, p, owner); err != nil {
			return errs.New(http.StatusInternalServerError, "apply directory ownership failed: %v", err)
		}
	}
	return nil
}

// resolve follows symlinks on the target. Missing targets resolve through
// their parent so not-yet-created files still gain a real path.
func (g *Gate) resolve(normalized string) (string, error) {
	realPath, err := filepath.EvalSymlinks(normalized)
	if err == nil {
		return realPath, nil
	}
	if !os.IsNotExist(err) {
		return "", errs.New(http.StatusBadRequest, "invalid path")
	}
	parentReal, perr := filepath.EvalSymlinks(filepath.Dir(normalized))
	if perr != nil {
		if os.IsNotExist(perr) {
			return "", errs.New(http.StatusNotFound, "path not found")
		}
		return "", errs.New(http.StatusBadRequest, "invalid path")
	}
	return filepath.Join(parentReal, filepath.Base(normalized)), nil
}

// ValidateSameBase validates both endpoints and requires them to resolve
// into the same configured base. Used by move and intra-base copy.
func (g *Gate) ValidateSameBase(ctx context.Context, from, to string) (*SameBaseResult, error) {
	src, err := g.Validate(ctx, from, nil)
	if err != nil {
		return nil, err
	}
	dst, err := g.Validate(ctx, to, nil)
	if err != nil {
		return nil, err
	}
	if src.BasePath != dst.BasePath {
		return nil, errs.New(http.StatusForbidden, "paths must share a base path")
	}
	return &SameBaseResult{RealFrom: src.RealPath, RealTo: dst.RealPath, BasePath: src.BasePath}, nil
}

// RelPath converts a validated real path into the path relative to its
// base's real path, for index keys.
func (g *Gate) RelPath(base, realPath string) (string, error) {
	realBase, err := g.RealBase(base)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(realBase, realPath)
	if err != nil {
		return "", err
	}
	return rel, nil
}
