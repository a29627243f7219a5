package manifest

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"centralrepo/internal/logger"
	"centralrepo/pkg/models"
)

// ParseFile converts one manifest line into a file record. Both the flat
// layout ({"name","parent_path","md5",...}) and the nested layout of common
// file-listing exporters ({"file":{"name","directory","hash":{"md5"}}}) are
// accepted.
func ParseFile(data []byte) (*models.File, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	f := &models.File{
		ObjectID: getInt(raw, "id", "file.id", "obj_id"),
		FileName: getString(raw, "name", "file.name"),
		Parent:   getString(raw, "parent_path", "file.directory", "file.parent_path"),
		Hash:     strings.ToLower(getString(raw, "md5", "file.hash.md5", "hash.md5")),
		ByteSize: getInt(raw, "size", "file.size"),
		MIME:     getString(raw, "mime_type", "file.mime_type"),
	}
	if f.FileName == "" {
		return nil, fmt.Errorf("manifest record has no file name")
	}

	if known := getString(raw, "known", "file.known"); known != "" {
		k, err := models.ParseKnownStatus(known)
		if err != nil {
			logger.Warnf("Ignoring known status %q of %s", known, f.FileName)
		} else {
			f.KnownState = k
		}
	}
	if typ := getString(raw, "type", "file.type"); typ != "" {
		f.Kind = models.FileType(strings.ToUpper(typ))
	}
	return f, nil
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return strings.TrimSpace(val)
			case float64:
				if val == float64(int64(val)) {
					return fmt.Sprintf("%d", int64(val))
				}
				return fmt.Sprintf("%f", val)
			}
		}
	}
	return ""
}

func getInt(root map[string]interface{}, paths ...string) int64 {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case float64:
				return int64(val)
			case string:
				if val == "" {
					continue
				}
				var parsed int64
				if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
					return parsed
				}
			}
		}
	}
	return 0
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
