package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/adaptexam/internal/model"
)

// CreateMaterial inserts a lecture material with its chunks in one
// transaction and returns the material ID.
func (s *Store) CreateMaterial(m model.Material, chunkTexts []string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO lecture_materials (department_id, grade_level, uploaded_by, title, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.DepartmentID, m.GradeLevel, m.UploadedBy, m.Title, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	materialID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, text := range chunkTexts {
		if _, err := tx.Exec(
			`INSERT INTO lecture_chunks (material_id, department_id, grade_level, chunk_index, text)
			 VALUES (?, ?, ?, ?, ?)`,
			materialID, m.DepartmentID, m.GradeLevel, i, text,
		); err != nil {
			return 0, err
		}
	}

	return materialID, tx.Commit()
}

// ListMaterials returns materials in a (department, grade) scope.
func (s *Store) ListMaterials(departmentID int64, gradeLevel int) ([]model.Material, error) {
	rows, err := s.db.Query(
		`SELECT id, department_id, grade_level, uploaded_by, title, created_at
		 FROM lecture_materials WHERE department_id = ? AND grade_level = ? ORDER BY id`,
		departmentID, gradeLevel,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var materials []model.Material
	for rows.Next() {
		var m model.Material
		if err := rows.Scan(&m.ID, &m.DepartmentID, &m.GradeLevel, &m.UploadedBy, &m.Title, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

// ChunkIDsForMaterial returns the chunk IDs of a material in index order.
func (s *Store) ChunkIDsForMaterial(materialID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT id FROM lecture_chunks WHERE material_id = ? ORDER BY chunk_index`, materialID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

// AllChunkIDs returns every chunk ID in the database.
func (s *Store) AllChunkIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM lecture_chunks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunks returns chunks by ID, in scan order.
func (s *Store) GetChunks(ids []int64) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for _, id := range ids {
		var c model.Chunk
		err := s.db.QueryRow(
			`SELECT id, material_id, department_id, grade_level, chunk_index, text
			 FROM lecture_chunks WHERE id = ?`, id,
		).Scan(&c.ID, &c.MaterialID, &c.DepartmentID, &c.GradeLevel, &c.ChunkIndex, &c.Text)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// EmbeddedChunkIDs returns which of the given chunk IDs already have a
// cached embedding.
func (s *Store) EmbeddedChunkIDs(ids []int64) (map[int64]bool, error) {
	embedded := make(map[int64]bool)
	for _, id := range ids {
		var chunkID int64
		err := s.db.QueryRow(`SELECT chunk_id FROM chunk_embeddings WHERE chunk_id = ?`, id).Scan(&chunkID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		embedded[chunkID] = true
	}
	return embedded, nil
}

// PutEmbedding stores or replaces the cached embedding for a chunk.
func (s *Store) PutEmbedding(e model.ChunkEmbedding) error {
	_, err := s.db.Exec(
		`INSERT INTO chunk_embeddings (chunk_id, dim, embedding) VALUES (?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET dim = excluded.dim, embedding = excluded.embedding`,
		e.ChunkID, e.Dim, e.Packed,
	)
	return err
}

// DeleteEmbeddings removes cached embeddings for the given chunks.
func (s *Store) DeleteEmbeddings(ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.Exec(`DELETE FROM chunk_embeddings WHERE chunk_id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// EmbeddedChunk pairs a chunk with its packed embedding.
type EmbeddedChunk struct {
	Chunk  model.Chunk
	Packed []byte
}

// EmbeddedChunksInScope returns every chunk in the (department, grade)
// scope that has a cached embedding. The full scan is acceptable at this
// system's scale.
func (s *Store) EmbeddedChunksInScope(departmentID int64, gradeLevel int) ([]EmbeddedChunk, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.material_id, c.department_id, c.grade_level, c.chunk_index, c.text, e.embedding
		 FROM lecture_chunks c
		 JOIN chunk_embeddings e ON e.chunk_id = c.id
		 WHERE c.department_id = ? AND c.grade_level = ?
		 ORDER BY c.id`,
		departmentID, gradeLevel,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EmbeddedChunk
	for rows.Next() {
		var ec EmbeddedChunk
		if err := rows.Scan(&ec.Chunk.ID, &ec.Chunk.MaterialID, &ec.Chunk.DepartmentID, &ec.Chunk.GradeLevel,
			&ec.Chunk.ChunkIndex, &ec.Chunk.Text, &ec.Packed); err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}
