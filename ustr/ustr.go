// Package ustr provides the path/string type used for kernel path
// resolution, grounded on biscuit's ustr package.
package ustr

// Ustr is an immutable-by-convention path or string used by the kernel.
// Kept as a byte slice rather than a Go string so it can be built directly
// from user-memory copies without an extra allocation for UTF validation.
type Ustr []uint8

// MkUstr returns an empty Ustr.
func MkUstr() Ustr {
	return Ustr{}
}

// MkUstrRoot returns the Ustr for the root directory "/".
func MkUstrRoot() Ustr {
	return Ustr("/")
}

// Eq reports whether us and s contain the same bytes.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// String converts the Ustr to a Go string.
func (us Ustr) String() string {
	return string(us)
}

// IsAbsolute reports whether the path begins with '/'.
func (us Ustr) IsAbsolute() bool {
	return len(us) > 0 && us[0] == '/'
}

// Components splits a path into its non-empty slash-separated components.
// A leading slash yields no empty leading component: "/a/b" -> ["a", "b"].
// This mirrors original_source/src/filesystem.c's open_file, which walks
// str_split(path, '/', true)->tail, silently skipping the empty head that
// a leading slash produces.
func (us Ustr) Components() []Ustr {
	var out []Ustr
	start := -1
	for i := 0; i <= len(us); i++ {
		if i < len(us) && us[i] != '/' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, us[start:i])
			start = -1
		}
	}
	return out
}
