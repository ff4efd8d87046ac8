// Package ownership compares and converges the owner, group and mode of paths.
package ownership

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"os/user"
	"strconv"
	"syscall"

	"github.com/datashades/converge/internal/resource"
)

// State is the observed ownership of a path.
type State struct {
	UID  int
	GID  int
	Mode os.FileMode
}

// Stat reads the ownership of path without following symlinks.
func Stat(path string) (State, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return State{}, err
	}
	return FromInfo(info), nil
}

// FromInfo extracts ownership from a FileInfo.
func FromInfo(info os.FileInfo) State {
	st := State{UID: -1, GID: -1, Mode: info.Mode().Perm()}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		st.UID = int(sys.Uid)
		st.GID = int(sys.Gid)
	}
	return st
}

// Target is an Ownership with names resolved to ids. -1 leaves an id alone.
type Target struct {
	UID  int
	GID  int
	Mode os.FileMode
}

// Resolve looks up the user and group names in o.
func Resolve(o resource.Ownership) (Target, error) {
	t := Target{UID: -1, GID: -1, Mode: o.Mode.Perm()}
	if o.Owner != "" {
		uid, err := lookupUser(o.Owner)
		if err != nil {
			return t, err
		}
		t.UID = uid
	}
	if o.Group != "" {
		gid, err := lookupGroup(o.Group)
		if err != nil {
			return t, err
		}
		t.GID = gid
	}
	return t, nil
}

func lookupUser(name string) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return -1, fmt.Errorf("lookup user %s: %w", name, err)
	}
	return strconv.Atoi(u.Uid)
}

func lookupGroup(name string) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, fmt.Errorf("lookup group %s: %w", name, err)
	}
	return strconv.Atoi(g.Gid)
}

// Drift lists the attributes of st that differ from t.
func (t Target) Drift(st State) []string {
	var out []string
	if t.UID >= 0 && st.UID != t.UID {
		out = append(out, fmt.Sprintf("owner %d -> %d", st.UID, t.UID))
	}
	if t.GID >= 0 && st.GID != t.GID {
		out = append(out, fmt.Sprintf("group %d -> %d", st.GID, t.GID))
	}
	if t.Mode != 0 && st.Mode != t.Mode {
		out = append(out, fmt.Sprintf("mode %04o -> %04o", st.Mode, t.Mode))
	}
	return out
}

// Apply sets ownership and mode on path. chown runs before chmod so setuid
// style bits are not cleared afterwards.
func (t Target) Apply(path string) error {
	if t.UID >= 0 || t.GID >= 0 {
		if err := os.Lchown(path, t.UID, t.GID); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
	}
	if t.Mode != 0 {
		if err := os.Chmod(path, t.Mode); err != nil {
			return fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	return nil
}

// Chown walks root and sets the owner and group of every entry that differs
// from t. Mode is left alone. It returns how many entries were changed.
func (t Target) Chown(root string) (int, error) {
	if t.UID < 0 && t.GID < 0 {
		return 0, nil
	}
	ids := Target{UID: t.UID, GID: t.GID}
	changed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if len(ids.Drift(FromInfo(info))) == 0 {
			return nil
		}
		if err := ids.Apply(path); err != nil {
			return err
		}
		changed++
		return nil
	})
	return changed, err
}
