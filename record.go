package buildcache

// Record is a file record held by a Cache.
// RecordID returns the stable identifier the record is stored under.
type Record interface {
	RecordID() string
}

// File is a schemaless file record. Its "id" entry is the identifier.
type File map[string]any

// RecordID returns the "id" entry, or "" when it is missing or not a string.
func (f File) RecordID() string {
	id, _ := f["id"].(string)
	return id
}
