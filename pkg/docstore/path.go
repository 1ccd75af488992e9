package docstore

import (
	"fmt"
	"strings"
)

func splitPath(p string) ([]string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" || strings.ContainsAny(s, ":\x00") {
			return nil, fmt.Errorf("%w: bad segment in %q", ErrInvalidPath, p)
		}
	}
	return segs, nil
}

// docPath validates a document path and splits it into collection and id.
func docPath(p string) (collection, id string, err error) {
	segs, err := splitPath(p)
	if err != nil {
		return "", "", err
	}
	if len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q is a collection path", ErrInvalidPath, p)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// collectionPath validates and normalises a collection path.
func collectionPath(p string) (string, error) {
	segs, err := splitPath(p)
	if err != nil {
		return "", err
	}
	if len(segs)%2 != 1 {
		return "", fmt.Errorf("%w: %q is a document path", ErrInvalidPath, p)
	}
	return strings.Join(segs, "/"), nil
}

// isCollection reports whether p has an odd number of segments.
func isCollection(p string) bool {
	segs, err := splitPath(p)
	return err == nil && len(segs)%2 == 1
}

func joinPath(collection, id string) string {
	return collection + "/" + id
}
