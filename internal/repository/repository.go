package repository

import (
	"CommentThread/internal/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"go.uber.org/zap"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Repository struct {
	db  *dbpg.DB
	log *zap.Logger
}

// commentColumns expects the viewer id as the last query argument, bound to
// the placeholder given to commentFrom.
const commentColumns = `c.id, c.post_id, c.parent_id, c.path, c.depth, c.author_id, u.username, COALESCE(u.display_name, c.author_id), u.role, u.avatar_url, c.content, c.images, c.likes_count, c.is_deleted, c.created_at, c.updated_at, (l.user_id IS NOT NULL)`

const (
	getParentQuery  = `SELECT post_id, path, depth, is_deleted FROM comments WHERE id = $1`
	createQuery     = `INSERT INTO comments (id,post_id,parent_id,path,depth,author_id,content,images,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	updateQuery     = `UPDATE comments SET content = $2, images = $3, updated_at = $4 WHERE id = $1 AND NOT is_deleted`
	softDeleteQuery = `UPDATE comments SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	countQuery      = `SELECT COUNT(*) FILTER (WHERE parent_id IS NULL), COUNT(*) FROM comments WHERE post_id = $1`

	toggleLikeQuery = `
WITH removed AS (
	DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2 RETURNING 1
), added AS (
	INSERT INTO comment_likes (comment_id, user_id)
	SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM removed) AND EXISTS (SELECT 1 FROM comments WHERE id = $1)
	RETURNING 1
)
UPDATE comments
SET likes_count = GREATEST(likes_count + (SELECT COUNT(*) FROM added) - (SELECT COUNT(*) FROM removed), 0)
WHERE id = $1
RETURNING (SELECT COUNT(*) FROM added) > 0, likes_count`
)

var (
	getByIDQuery = fmt.Sprintf(`SELECT %s %s WHERE c.id = $1`, commentColumns, commentFrom("$2"))

	getSubtreeQuery = fmt.Sprintf(`SELECT %s %s WHERE c.path LIKE $1 ORDER BY c.path`, commentColumns, commentFrom("$2"))

	listPageQuery = fmt.Sprintf(`WITH roots AS (
	SELECT path FROM comments WHERE post_id = $1 AND parent_id IS NULL ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
)
SELECT %s %s JOIN roots r ON c.path LIKE r.path || '%%' ORDER BY c.path`, commentColumns, commentFrom("$4"))

	searchQuery = fmt.Sprintf(`SELECT %s %s WHERE c.post_id = $1 AND NOT c.is_deleted AND c.content ILIKE $2 ORDER BY c.created_at DESC LIMIT 50`, commentColumns, commentFrom("$3"))
)

var (
	retryStrategy = retry.Strategy{
		Attempts: 5,
		Delay:    time.Millisecond,
		Backoff:  2,
	}
	// writes that are not idempotent get exactly one attempt
	onceStrategy = retry.Strategy{
		Attempts: 1,
		Delay:    time.Millisecond,
		Backoff:  1,
	}
)

func commentFrom(viewerParam string) string {
	return `FROM comments c LEFT JOIN users u ON u.id = c.author_id LEFT JOIN comment_likes l ON l.comment_id = c.id AND l.user_id = ` + viewerParam
}

func NewRepository(masterDSN string, slaveDSNs []string, log *zap.Logger) (*Repository, error) {
	opts := dbpg.Options{
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, &opts)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Starting database migrations")

	if err := runMigrations(masterDSN); err != nil {
		log.Error("Failed to run migrations", zap.Error(err))
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	log.Info("Successfully migrated database")

	return &Repository{db: db, log: log.Named("repository")}, nil
}

// Parent returns what a reply needs to know about its parent.
func (r *Repository) Parent(ctx context.Context, id string) (*models.ParentRef, error) {
	if !validID(id) {
		return nil, fmt.Errorf("parent comment %s: %w", id, models.ErrNotFound)
	}
	var p models.ParentRef
	row, err := r.db.QueryRowWithRetry(ctx, retryStrategy, getParentQuery, id)
	if err != nil {
		r.log.Error("QueryRow for parent comment failed", zap.Error(err), zap.String("parent_id", id))
		return nil, fmt.Errorf("query for parent comment failed: %w", err)
	}
	if err := row.Scan(&p.PostID, &p.Path, &p.Depth, &p.IsDeleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Warn("Parent comment not found", zap.String("parent_id", id))
			return nil, fmt.Errorf("parent comment %s: %w", id, models.ErrNotFound)
		}
		r.log.Error("Failed to scan parent path", zap.Error(err))
		return nil, fmt.Errorf("failed to scan parent path: %w", err)
	}
	p.ID = id
	return &p, nil
}

// Create stores a comment whose id, path and depth are already resolved.
func (r *Repository) Create(ctx context.Context, c models.FlatCommentRow) error {
	depth := 0
	if c.Depth != nil {
		depth = *c.Depth
	}
	_, err := r.db.ExecWithRetry(ctx, onceStrategy, createQuery,
		c.ID, c.PostID, c.ParentID, c.Path, depth, c.Author.ID, c.Content, pq.Array(nonNil(c.Images)), c.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create comment in DB", zap.Error(err), zap.String("post_id", c.PostID))
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id, viewerID string) (*models.FlatCommentRow, error) {
	if !validID(id) {
		return nil, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	row, err := r.db.QueryRowWithRetry(ctx, retryStrategy, getByIDQuery, id, viewerID)
	if err != nil {
		r.log.Error("Failed to get comment by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get comment by ID: %w", err)
	}
	c, err := scanComment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
		}
		r.log.Error("Failed to scan comment by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get comment by ID: %w", err)
	}
	return c, nil
}

// GetSubtree returns the comment stored at path and all of its descendants.
func (r *Repository) GetSubtree(ctx context.Context, path, viewerID string) ([]models.FlatCommentRow, error) {
	rows, err := r.db.QueryWithRetry(ctx, retryStrategy, getSubtreeQuery, path+"%", viewerID)
	if err != nil {
		r.log.Error("Failed to get subtree by path", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to get subtree by path: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListPage returns one page of top-level comments (newest first) together
// with every reply beneath them.
func (r *Repository) ListPage(ctx context.Context, postID, viewerID string, limit, offset int) ([]models.FlatCommentRow, error) {
	rows, err := r.db.QueryWithRetry(ctx, retryStrategy, listPageQuery, postID, limit, offset, viewerID)
	if err != nil {
		r.log.Error("Failed to list comment page", zap.String("post_id", postID), zap.Error(err))
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *Repository) Count(ctx context.Context, postID string) (topLevel, total int, err error) {
	row, err := r.db.QueryRowWithRetry(ctx, retryStrategy, countQuery, postID)
	if err != nil {
		r.log.Error("Failed to count comments", zap.String("post_id", postID), zap.Error(err))
		return 0, 0, fmt.Errorf("failed to count comments: %w", err)
	}
	if err := row.Scan(&topLevel, &total); err != nil {
		r.log.Error("Failed to scan comment counts", zap.Error(err))
		return 0, 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return topLevel, total, nil
}

func (r *Repository) Update(ctx context.Context, id, content string, images []string, at time.Time) error {
	if !validID(id) {
		return fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	res, err := r.db.ExecWithRetry(ctx, retryStrategy, updateQuery, id, content, pq.Array(nonNil(images)), at)
	if err != nil {
		r.log.Error("Failed to update comment", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return requireAffected(res, id)
}

func (r *Repository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	res, err := r.db.ExecWithRetry(ctx, retryStrategy, softDeleteQuery, id, at)
	if err != nil {
		r.log.Error("Failed to delete comment", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return requireAffected(res, id)
}

func (r *Repository) ToggleLike(ctx context.Context, id, userID string) (models.LikeState, error) {
	var state models.LikeState
	if !validID(id) {
		return state, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	row, err := r.db.QueryRowWithRetry(ctx, onceStrategy, toggleLikeQuery, id, userID)
	if err != nil {
		r.log.Error("Failed to toggle like", zap.String("id", id), zap.Error(err))
		return state, fmt.Errorf("failed to toggle like: %w", err)
	}
	if err := row.Scan(&state.IsLiked, &state.LikesCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
		}
		r.log.Error("Failed to scan like state", zap.String("id", id), zap.Error(err))
		return state, fmt.Errorf("failed to toggle like: %w", err)
	}
	return state, nil
}

func (r *Repository) SearchByText(ctx context.Context, postID, query, viewerID string) ([]models.FlatCommentRow, error) {
	searchPattern := "%" + likeEscaper.Replace(query) + "%"

	rows, err := r.db.QueryWithRetry(ctx, retryStrategy, searchQuery, postID, searchPattern, viewerID)
	if err != nil {
		r.log.Error("Failed to search comments with LIKE", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("failed to search comments: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanComment(s scanner) (*models.FlatCommentRow, error) {
	var (
		c     models.FlatCommentRow
		depth int
	)
	err := s.Scan(&c.ID, &c.PostID, &c.ParentID, &c.Path, &depth,
		&c.Author.ID, &c.Author.Username, &c.Author.DisplayName, &c.Author.Role, &c.Author.AvatarURL,
		&c.Content, pq.Array(&c.Images), &c.LikesCount, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt, &c.IsLiked)
	if err != nil {
		return nil, err
	}
	c.Depth = &depth
	return &c, nil
}

func (r *Repository) collect(rows *sql.Rows) ([]models.FlatCommentRow, error) {
	var comments []models.FlatCommentRow
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			r.log.Error("Failed to scan comment row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comments: %w", err)
	}
	return comments, nil
}

// likeEscaper makes user text match literally inside an ILIKE pattern;
// backslash is the default escape character in Postgres.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// validID filters ids the uuid column would reject with a syntax error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nonNil(images []string) []string {
	if images == nil {
		return []string{}
	}
	return images
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("comment %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func runMigrations(connStr string) error {
	migratePath := os.Getenv("MIGRATE_PATH")
	if migratePath == "" {
		migratePath = "./migrations"
	}
	absPath, err := filepath.Abs(migratePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	absPath = filepath.ToSlash(absPath)
	migrateUrl := fmt.Sprintf("file://%s", absPath)
	m, err := migrate.New(migrateUrl, connStr)
	if err != nil {
		return fmt.Errorf("start migrations error %v", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration up error: %v", err)
	}
	return nil
}
