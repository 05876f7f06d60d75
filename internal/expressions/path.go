package expressions

import (
	"strconv"
	"strings"
)

// segment is one accessor of a template path: a key (a.b, a['b']) or an
// index (a[0]).
type segment struct {
	key     string
	index   int
	isIndex bool
}

func (s segment) String() string {
	if s.isIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

// parsePath splits a dot/bracket accessor such as items[0]['first name'].id
// into segments. It reports false for malformed paths.
func parsePath(path string) ([]segment, bool) {
	var segs []segment
	i := 0
	expectKey := true
	for i < len(path) {
		switch c := path[i]; c {
		case '.':
			if expectKey {
				return nil, false
			}
			expectKey = true
			i++
		case '[':
			seg, n, ok := parseBracket(path[i:])
			if !ok {
				return nil, false
			}
			segs = append(segs, seg)
			expectKey = false
			i += n
		default:
			if !expectKey {
				return nil, false
			}
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			segs = append(segs, segment{key: strings.TrimSpace(path[i:j])})
			expectKey = false
			i = j
		}
	}
	if expectKey || len(segs) == 0 {
		return nil, false
	}
	return segs, true
}

// parseBracket parses a leading [..] accessor and returns the number of
// bytes consumed.
func parseBracket(s string) (segment, int, bool) {
	if len(s) < 2 {
		return segment{}, 0, false
	}
	if q := s[1]; q == '\'' || q == '"' {
		end := strings.IndexByte(s[2:], q)
		if end == -1 {
			return segment{}, 0, false
		}
		end += 2
		if end+1 >= len(s) || s[end+1] != ']' {
			return segment{}, 0, false
		}
		return segment{key: s[2:end]}, end + 2, true
	}
	end := strings.IndexByte(s, ']')
	if end == -1 {
		return segment{}, 0, false
	}
	inner := strings.TrimSpace(s[1:end])
	if inner == "" {
		return segment{}, 0, false
	}
	if n, err := strconv.Atoi(inner); err == nil {
		return segment{index: n, isIndex: true}, end + 1, true
	}
	return segment{key: inner}, end + 1, true
}

// walk follows segs from root. It reports false as soon as a segment does
// not exist; it never panics on unexpected shapes.
func walk(root any, segs []segment) (any, bool) {
	current := root
	for _, seg := range segs {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg.String()]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			idx, ok := seg.index, seg.isIndex
			if !ok {
				if seg.key == "length" {
					current = float64(len(v))
					continue
				}
				n, err := strconv.Atoi(seg.key)
				if err != nil {
					return nil, false
				}
				idx = n
			}
			if idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
