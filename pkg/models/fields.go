package models

func stringField(f map[string]any, key string) string {
	if f == nil {
		return ""
	}
	s, _ := f[key].(string)
	return s
}

// stringsField accepts both []string and the []any shape produced by the
// document store's JSON decoding.
func stringsField(f map[string]any, key string) []string {
	switch v := f[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
