package ownership

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var modePattern = regexp.MustCompile(`^[0-7]{3,4}$`)

// Ownership is the uid/gid/mode triple applied to created or copied entries.
// DirMode is derived from FileMode when absent.
type Ownership struct {
	UID      int
	GID      int
	FileMode os.FileMode
	DirMode  *os.FileMode
}

// ParseMode accepts 3- or 4-digit octal mode strings ("644", "0755").
func ParseMode(s string) (os.FileMode, error) {
	if !modePattern.MatchString(s) {
		return 0, fmt.Errorf("invalid mode string:%s", s)
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode string:%s", s)
	}
	return os.FileMode(v), nil
}

// New builds an Ownership from raw request fields. dirMode may be empty.
func New(uid, gid int, fileMode string, dirMode string) (*Ownership, error) {
	if uid < 0 || gid < 0 {
		return nil, fmt.Errorf("uid/gid must be non-negative")
	}
	fm, err := ParseMode(fileMode)
	if err != nil {
		return nil, err
	}
	o := &Ownership{UID: uid, GID: gid, FileMode: fm}
	if len(dirMode) > 0 {
		dm, err := ParseMode(dirMode)
		if err != nil {
			return nil, err
		}
		o.DirMode = &dm
	}
	return o, nil
}

// DeriveDirMode starts from a file mode and, for each of owner/group/other,
// adds the execute bit whenever the read bit is set. No bit is ever cleared.
func DeriveDirMode(fileMode os.FileMode) os.FileMode {
	mode := fileMode
	for _, shift := range []uint{6, 3, 0} {
		if mode&(4<<shift) != 0 {
			mode |= 1 << shift
		}
	}
	return mode
}

// EffectiveDirMode returns the explicit dir mode, or the derived one.
func (o *Ownership) EffectiveDirMode() os.FileMode {
	if o.DirMode != nil {
		return *o.DirMode
	}
	return DeriveDirMode(o.FileMode)
}

// Applier performs chown+chmod, optionally substituting a fixed uid/gid
// pair when a dev override is configured.
type Applier struct {
	uidOverride *int
	gidOverride *int
}

func NewApplier(uidOverride, gidOverride *int) *Applier {
	return &Applier{uidOverride: uidOverride, gidOverride: gidOverride}
}

func (a *Applier) resolve(ctx context.Context, o *Ownership) (int, int) {
	uid, gid := o.UID, o.GID
	if a.uidOverride == nil && a.gidOverride == nil {
		return uid, gid
	}
	if a.uidOverride != nil {
		uid = *a.uidOverride
	}
	if a.gidOverride != nil {
		gid = *a.gidOverride
	}
	logutil.GetLogger(ctx).Info("dev override active, forcing ownership",
		zap.Int("uid", uid), zap.Int("gid", gid),
		zap.Int("requested_uid", o.UID), zap.Int("requested_gid", o.GID))
	return uid, gid
}

func (a *Applier) apply(ctx context.Context, path string, o *Ownership, mode os.FileMode) error {
	uid, gid := a.resolve(ctx, o)
	if err := os.Chown(path, uid, gid); err != nil {
		if errors.Is(err, syscall.EPERM) {
			return fmt.Errorf("permission denied (not root?)")
		}
		if errors.Is(err, syscall.EINVAL) {
			return fmt.Errorf("invalid uid/gid")
		}
		return fmt.Errorf("chown failed, err:%w", err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod failed, err:%w", err)
	}
	return nil
}

// ApplyFile applies the file mode to a single file.
func (a *Applier) ApplyFile(ctx context.Context, path string, o *Ownership) error {
	return a.apply(ctx, path, o, o.FileMode)
}

// ApplyDir applies the directory mode to a single directory.
func (a *Applier) ApplyDir(ctx context.Context, path string, o *Ownership) error {
	return a.apply(ctx, path, o, o.EffectiveDirMode())
}

// ApplyRecursive walks root depth-first, applying the directory mode to
// directories before descending and the file mode to files. It aborts on
// the first error; the caller decides whether to unlink partial results.
func (a *Applier) ApplyRecursive(ctx context.Context, root string, o *Ownership) error {
	fi, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("stat failed, err:%w", err)
	}
	if !fi.IsDir() {
		return a.ApplyFile(ctx, root, o)
	}
	if err := a.ApplyDir(ctx, root, o); err != nil {
		return err
	}
	ents, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read dir failed, err:%w", err)
	}
	for _, ent := range ents {
		if err := a.ApplyRecursive(ctx, filepath.Join(root, ent.Name()), o); err != nil {
			return err
		}
	}
	return nil
}
