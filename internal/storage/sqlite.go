// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tagsearch/internal/models"
)

const aliasActive = "active"

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tags (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT 'general',
		post_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tags_post_count ON tags(post_count);

	CREATE TABLE IF NOT EXISTS tag_aliases (
		antecedent_name TEXT PRIMARY KEY,
		consequent_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	);

	CREATE TABLE IF NOT EXISTS pools (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pools_name ON pools(lower(name));

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY,
		md5 TEXT NOT NULL DEFAULT '',
		rating TEXT NOT NULL DEFAULT 'q',
		file_ext TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		image_width INTEGER NOT NULL DEFAULT 0,
		image_height INTEGER NOT NULL DEFAULT 0,
		duration REAL,
		framecount INTEGER NOT NULL DEFAULT 0,
		change_seq INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		fav INTEGER NOT NULL DEFAULT 0,
		tag_string TEXT NOT NULL DEFAULT '',
		tag_counts TEXT,
		sources TEXT,
		description TEXT NOT NULL DEFAULT '',
		parent_id INTEGER,
		pool_string TEXT NOT NULL DEFAULT '',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		is_pending INTEGER NOT NULL DEFAULT 0,
		is_flagged INTEGER NOT NULL DEFAULT 0,
		is_appealed INTEGER NOT NULL DEFAULT 0,
		has_pending_replacements INTEGER NOT NULL DEFAULT 0,
		del_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_posts_parent_id ON posts(parent_id);
	`
	_, err := db.Exec(schema)
	return err
}

// likeEscaper escapes LIKE metacharacters so only "*" acts as a wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// NameMatches returns tag names matching a "*" wildcard pattern, most used first.
func (s *SQLiteStorage) NameMatches(ctx context.Context, pattern string, limit int) ([]string, error) {
	like := strings.ReplaceAll(likeEscaper.Replace(strings.ToLower(pattern)), "*", "%")
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM tags WHERE name LIKE ? ESCAPE '\'
		 ORDER BY post_count DESC, name LIMIT ?`,
		like, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// TagNamesWithPrefix returns tag names starting with prefix, most used first.
func (s *SQLiteStorage) TagNamesWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	return s.NameMatches(ctx, strings.ReplaceAll(prefix, "*", "")+"*", limit)
}

// ToAliased maps every name to its active alias consequent, or to itself.
func (s *SQLiteStorage) ToAliased(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	for _, n := range names {
		out[n] = n
	}
	args := make([]any, 0, len(names)+1)
	args = append(args, aliasActive)
	for _, n := range names {
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT antecedent_name, consequent_name FROM tag_aliases
		 WHERE status = ? AND antecedent_name IN (`+placeholders(len(names))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		out[from] = to
	}
	return out, rows.Err()
}

// PoolNameToID resolves a numeric id string or a pool name. Unknown names resolve to 0.
func (s *SQLiteStorage) PoolNameToID(ctx context.Context, name string) (int64, error) {
	if id, err := strconv.ParseInt(name, 10, 64); err == nil && id >= 0 {
		return id, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pools WHERE lower(name) = ? ORDER BY id LIMIT 1`,
		normalizePoolName(name),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func normalizePoolName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// UpsertTag inserts or replaces a tag.
func (s *SQLiteStorage) UpsertTag(ctx context.Context, tag *models.Tag) error {
	if tag.Category == "" {
		tag.Category = "general"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (name, category, post_count) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET category = excluded.category, post_count = excluded.post_count`,
		tag.Name, tag.Category, tag.PostCount,
	)
	return err
}

// GetTag returns a tag by name.
func (s *SQLiteStorage) GetTag(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT name, category, post_count FROM tags WHERE name = ?`, name,
	).Scan(&tag.Name, &tag.Category, &tag.PostCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tag %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// UpsertAlias inserts or replaces an alias. Status defaults to active.
func (s *SQLiteStorage) UpsertAlias(ctx context.Context, alias *models.TagAlias) error {
	if alias.Status == "" {
		alias.Status = aliasActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tag_aliases (antecedent_name, consequent_name, status) VALUES (?, ?, ?)
		 ON CONFLICT(antecedent_name) DO UPDATE SET consequent_name = excluded.consequent_name, status = excluded.status`,
		alias.AntecedentName, alias.ConsequentName, alias.Status,
	)
	return err
}

// UpsertPool inserts or replaces a pool. Names are stored with spaces as underscores.
func (s *SQLiteStorage) UpsertPool(ctx context.Context, pool *models.Pool) error {
	pool.Name = strings.ReplaceAll(strings.TrimSpace(pool.Name), " ", "_")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pools (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		pool.ID, pool.Name,
	)
	return err
}

// UpsertPost inserts or replaces a post. Per-category tag counts are computed from the
// tags table; tags without a row count as general.
func (s *SQLiteStorage) UpsertPost(ctx context.Context, post *models.Post) error {
	counts, err := s.categoryCounts(ctx, post.Tags)
	if err != nil {
		return fmt.Errorf("failed to count tag categories: %w", err)
	}
	post.TagCounts = counts
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal tag counts: %w", err)
	}
	sourcesJSON, err := json.Marshal(post.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	var duration sql.NullFloat64
	if post.Duration != nil {
		duration = sql.NullFloat64{Float64: *post.Duration, Valid: true}
	}
	var parent sql.NullInt64
	if post.ParentID != nil {
		parent = sql.NullInt64{Int64: *post.ParentID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO posts (id, md5, rating, file_ext, file_size, image_width, image_height,
			duration, framecount, change_seq, score, fav, tag_string, tag_counts, sources, description,
			parent_id, pool_string, is_deleted, is_pending, is_flagged, is_appealed,
			has_pending_replacements, del_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, strings.ToLower(post.MD5), post.Rating, post.FileExt, post.FileSize, post.Width, post.Height,
		duration, post.Framecount, post.ChangeSeq, post.Score, post.Fav, post.TagString(), string(countsJSON),
		string(sourcesJSON), post.Description, parent, post.PoolString(), post.IsDeleted, post.IsPending,
		post.IsFlagged, post.IsAppealed, post.HasPendingReplacements, post.DelReason, post.CreatedAt, post.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) categoryCounts(ctx context.Context, tags []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(tags) == 0 {
		return counts, nil
	}
	args := make([]any, len(tags))
	for i, t := range tags {
		args[i] = t
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, category FROM tags WHERE name IN (`+placeholders(len(tags))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	known := make(map[string]string, len(tags))
	for rows.Next() {
		var name, category string
		if err := rows.Scan(&name, &category); err != nil {
			return nil, err
		}
		known[name] = category
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range tags {
		category, ok := known[t]
		if !ok {
			category = "general"
		}
		counts[category]++
	}
	return counts, nil
}

const postColumns = `id, md5, rating, file_ext, file_size, image_width, image_height, duration, framecount,
	change_seq, score, fav, tag_string, tag_counts, sources, description, parent_id, pool_string,
	is_deleted, is_pending, is_flagged, is_appealed, has_pending_replacements, del_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post                 models.Post
		duration             sql.NullFloat64
		parent               sql.NullInt64
		tagString, poolStr   string
		countsJSON, srcsJSON sql.NullString
	)
	err := row.Scan(&post.ID, &post.MD5, &post.Rating, &post.FileExt, &post.FileSize, &post.Width, &post.Height,
		&duration, &post.Framecount, &post.ChangeSeq, &post.Score, &post.Fav, &tagString, &countsJSON, &srcsJSON,
		&post.Description, &parent, &poolStr, &post.IsDeleted, &post.IsPending, &post.IsFlagged, &post.IsAppealed,
		&post.HasPendingReplacements, &post.DelReason, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		post.Duration = &duration.Float64
	}
	if parent.Valid {
		post.ParentID = &parent.Int64
	}
	post.Tags = strings.Fields(tagString)
	post.PoolIDs = parsePoolString(poolStr)
	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &post.TagCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tag counts: %w", err)
		}
	}
	if srcsJSON.Valid && srcsJSON.String != "" {
		if err := json.Unmarshal([]byte(srcsJSON.String), &post.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
	}
	return &post, nil
}

func parsePoolString(s string) []int64 {
	var ids []int64
	for _, f := range strings.Fields(s) {
		id, err := strconv.ParseInt(strings.TrimPrefix(f, "pool:"), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetPost returns a post by ID.
func (s *SQLiteStorage) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}
	return post, err
}

// ListPosts returns up to limit posts with id greater than afterID, in id order.
func (s *SQLiteStorage) ListPosts(ctx context.Context, afterID int64, limit int) ([]*models.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ChildIDs returns the ids of posts whose parent is parentID.
func (s *SQLiteStorage) ChildIDs(ctx context.Context, parentID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posts WHERE parent_id = ? ORDER BY id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

// DeletePost removes a post row.
func (s *SQLiteStorage) DeletePost(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	return err
}

// RecountTags recomputes every tag's post count from the posts table. Tags used by posts
// but missing from the tags table are created as general.
func (s *SQLiteStorage) RecountTags(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT tag_string FROM posts`)
	if err != nil {
		return err
	}
	counts := make(map[string]int)
	for rows.Next() {
		var tagString string
		if err := rows.Scan(&tagString); err != nil {
			rows.Close()
			return err
		}
		for _, t := range strings.Fields(tagString) {
			counts[t]++
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE tags SET post_count = 0`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tags (name, post_count) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET post_count = excluded.post_count`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for name, n := range counts {
		if _, err := stmt.ExecContext(ctx, name, n); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountPosts returns the total number of posts.
func (s *SQLiteStorage) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, err
}

// CountTags returns the total number of tags.
func (s *SQLiteStorage) CountTags(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
