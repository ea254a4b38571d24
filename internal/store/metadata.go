package store

import "database/sql"

// SetIndexMetadata upserts a key-value pair in the index_metadata table.
func (s *Store) SetIndexMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO index_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetIndexMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetIndexMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM index_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
