// Package postgres provides the Postgres-backed blog.Repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/inkpress/internal/blog"
)

//go:embed schema.sql
var schema string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Repository implements blog.Repository on Postgres.
type Repository struct {
	db DB
}

var _ blog.Repository = (*Repository)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Repository{db: pool}, nil
}

// NewWithDB wraps an existing pool (primarily for testing).
func NewWithDB(db DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.db == nil {
		return
	}
	r.db.Close()
}

// Migrate creates the tables when they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	clauses []string
	args    []any
}

// add appends cond, where %d is replaced by the next placeholder number.
func (w *where) add(cond string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *where) limit(limit, offset int) string {
	out := ""
	if limit > 0 {
		w.args = append(w.args, limit)
		out += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		out += fmt.Sprintf(" OFFSET $%d", len(w.args))
	}
	return out
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return blog.ErrNotFound
	}
	return err
}

func affected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return blog.ErrNotFound
	}
	return nil
}

const blogColumns = `id, name, descr, url, lang, status, updated_at`

func scanBlog(row pgx.Row) (blog.Blog, error) {
	var b blog.Blog
	err := row.Scan(&b.ID, &b.Name, &b.Desc, &b.URL, &b.Lang, &b.Status, &b.UpdatedAt)
	return b, err
}

// GetBlog fetches a blog by ID.
func (r *Repository) GetBlog(ctx context.Context, id string) (blog.Blog, error) {
	b, err := scanBlog(r.db.QueryRow(ctx, `SELECT `+blogColumns+` FROM blogs WHERE id = $1`, id))
	if err != nil {
		return blog.Blog{}, fmt.Errorf("select blog: %w", notFound(err))
	}
	return b, nil
}

// ListBlogs returns every blog.
func (r *Repository) ListBlogs(ctx context.Context) ([]blog.Blog, error) {
	rows, err := r.db.Query(ctx, `SELECT `+blogColumns+` FROM blogs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select blogs: %w", err)
	}
	defer rows.Close()
	var out []blog.Blog
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blog: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveBlog upserts a blog.
func (r *Repository) SaveBlog(ctx context.Context, b blog.Blog) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO blogs (id, name, descr, url, lang, status, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, descr = EXCLUDED.descr, url = EXCLUDED.url,
	lang = EXCLUDED.lang, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		b.ID, b.Name, b.Desc, b.URL, b.Lang, b.Status, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert blog: %w", err)
	}
	return nil
}

// TouchBlog moves updated_at forward, never backwards.
func (r *Repository) TouchBlog(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE blogs SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch blog: %w", err)
	}
	return nil
}

const postColumns = `p.id, p.blog_id, p.user_id, p.cat_id, p.type, p.status, p.title, p.url, p.format,
	p.excerpt, p.content, p.excerpt_xhtml, p.content_xhtml, p.lang, p.password, p.selected,
	p.open_comment, p.open_tb, p.created_at, p.updated_at, p.tags, p.nb_comment, p.nb_trackback, p.words`

func scanPost(row pgx.Row) (blog.Post, error) {
	var p blog.Post
	var status int
	err := row.Scan(&p.ID, &p.BlogID, &p.UserID, &p.CategoryID, &p.Type, &status, &p.Title, &p.URL,
		&p.Format, &p.Excerpt, &p.Content, &p.ExcerptXHTML, &p.ContentXHTML, &p.Lang, &p.Password,
		&p.Selected, &p.OpenComment, &p.OpenTrackback, &p.Created, &p.Updated, &p.Tags,
		&p.NbComment, &p.NbTrackback, &p.Words)
	p.Status = blog.PostStatus(status)
	return p, err
}

func postWhere(f blog.PostFilter) *where {
	w := &where{}
	if f.BlogID != "" {
		w.add("p.blog_id = $%d", f.BlogID)
	}
	if f.ID != 0 {
		w.add("p.id = $%d", f.ID)
	}
	if f.Type != "" {
		w.add("p.type = $%d", f.Type)
	}
	if f.Status != nil {
		w.add("p.status = $%d", int(*f.Status))
	}
	if f.UserID != "" {
		w.add("p.user_id = $%d", f.UserID)
	}
	if f.CategoryID != 0 {
		w.add("p.cat_id = $%d", f.CategoryID)
	}
	if f.CategoryURL != "" {
		w.add("p.cat_id = (SELECT c.id FROM categories c WHERE c.blog_id = p.blog_id AND c.url = $%d)", f.CategoryURL)
	}
	if f.URL != "" {
		w.add("p.url = $%d", f.URL)
	}
	if f.Year != 0 {
		w.add("EXTRACT(YEAR FROM p.created_at) = $%d", f.Year)
	}
	if f.Month != 0 {
		w.add("EXTRACT(MONTH FROM p.created_at) = $%d", f.Month)
	}
	if f.Tag != "" {
		w.add("$%d = ANY(p.tags)", f.Tag)
	}
	if f.Lang != "" {
		w.add("p.lang = $%d", f.Lang)
	}
	if f.Selected != nil {
		w.add("p.selected = $%d", *f.Selected)
	}
	for _, word := range blog.SearchWords(f.Search) {
		w.add("(' ' || p.words) LIKE $%d", "% "+word+"%")
	}
	return w
}

// ListPosts filters, sorts and pages posts.
func (r *Repository) ListPosts(ctx context.Context, f blog.PostFilter) ([]blog.Post, error) {
	w := postWhere(f)
	order := " ORDER BY p.created_at DESC, p.id DESC"
	if f.Ascending {
		order = " ORDER BY p.created_at ASC, p.id ASC"
	}
	query := `SELECT ` + postColumns + ` FROM posts p` + w.String() + order
	query += w.limit(f.Limit, f.Offset)
	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()
	out := []blog.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPosts counts posts matching f.
func (r *Repository) CountPosts(ctx context.Context, f blog.PostFilter) (int, error) {
	w := postWhere(f)
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts p`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func postArgs(p blog.Post) []any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		p.BlogID, p.UserID, p.CategoryID, p.Type, int(p.Status), p.Title, p.URL, p.Format,
		p.Excerpt, p.Content, p.ExcerptXHTML, p.ContentXHTML, p.Lang, p.Password, p.Selected,
		p.OpenComment, p.OpenTrackback, p.Created, p.Updated, tags, p.NbComment, p.NbTrackback, p.Words,
	}
}

// CreatePost inserts a post and returns its ID.
func (r *Repository) CreatePost(ctx context.Context, p blog.Post) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO posts (blog_id, user_id, cat_id, type, status, title, url, format, excerpt, content,
	excerpt_xhtml, content_xhtml, lang, password, selected, open_comment, open_tb, created_at,
	updated_at, tags, nb_comment, nb_trackback, words)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
RETURNING id`, postArgs(p)...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

// UpdatePost replaces a post row.
func (r *Repository) UpdatePost(ctx context.Context, p blog.Post) error {
	args := append(postArgs(p), p.ID)
	tag, err := r.db.Exec(ctx, `
UPDATE posts SET user_id = $2, cat_id = $3, type = $4, status = $5, title = $6, url = $7,
	format = $8, excerpt = $9, content = $10, excerpt_xhtml = $11, content_xhtml = $12,
	lang = $13, password = $14, selected = $15, open_comment = $16, open_tb = $17,
	created_at = $18, updated_at = $19, tags = $20, nb_comment = $21, nb_trackback = $22, words = $23
WHERE blog_id = $1 AND id = $24`, args...)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return affected(tag)
}

// DeletePost removes a post; comments cascade.
func (r *Repository) DeletePost(ctx context.Context, blogID string, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE blog_id = $1 AND id = $2`, blogID, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return affected(tag)
}

// ListArchiveMonths groups published entries by month.
func (r *Repository) ListArchiveMonths(ctx context.Context, blogID string) ([]blog.ArchiveMonth, error) {
	rows, err := r.db.Query(ctx, `
SELECT EXTRACT(YEAR FROM created_at)::int AS y, EXTRACT(MONTH FROM created_at)::int AS m, COUNT(*)::int
FROM posts WHERE blog_id = $1 AND type = 'post' AND status = 1
GROUP BY y, m ORDER BY y DESC, m DESC`, blogID)
	if err != nil {
		return nil, fmt.Errorf("select archive months: %w", err)
	}
	defer rows.Close()
	out := []blog.ArchiveMonth{}
	for rows.Next() {
		var a blog.ArchiveMonth
		if err := rows.Scan(&a.Year, &a.Month, &a.Count); err != nil {
			return nil, fmt.Errorf("scan archive month: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListTags counts tags on published posts.
func (r *Repository) ListTags(ctx context.Context, blogID string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
SELECT t.tag, COUNT(*)::int FROM posts p, unnest(p.tags) AS t(tag)
WHERE p.blog_id = $1 AND p.status = 1 GROUP BY t.tag`, blogID)
	if err != nil {
		return nil, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var tag string
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out[tag] = n
	}
	return out, rows.Err()
}

// ListCategories returns categories by position with published post counts.
func (r *Repository) ListCategories(ctx context.Context, blogID string) ([]blog.Category, error) {
	rows, err := r.db.Query(ctx, `
SELECT c.id, c.blog_id, c.title, c.url, c.descr, c.position,
	(SELECT COUNT(*)::int FROM posts p WHERE p.cat_id = c.id AND p.status = 1 AND p.type = 'post')
FROM categories c WHERE c.blog_id = $1 ORDER BY c.position, c.id`, blogID)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()
	out := []blog.Category{}
	for rows.Next() {
		var c blog.Category
		if err := rows.Scan(&c.ID, &c.BlogID, &c.Title, &c.URL, &c.Desc, &c.Position, &c.NbPost); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c blog.Category) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO categories (blog_id, title, url, descr, position) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		c.BlogID, c.Title, c.URL, c.Desc, c.Position).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return id, nil
}

// DeleteCategory removes a category and detaches its posts.
func (r *Repository) DeleteCategory(ctx context.Context, blogID string, id int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE posts SET cat_id = 0 WHERE blog_id = $1 AND cat_id = $2`, blogID, id); err != nil {
		return fmt.Errorf("detach posts: %w", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE blog_id = $1 AND id = $2`, blogID, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return affected(tag)
}

const commentColumns = `id, post_id, blog_id, author, email, site, content, ip, status, trackback, created_at, words`

func commentWhere(f blog.CommentFilter) *where {
	w := &where{}
	if f.BlogID != "" {
		w.add("blog_id = $%d", f.BlogID)
	}
	if f.ID != 0 {
		w.add("id = $%d", f.ID)
	}
	if f.PostID != 0 {
		w.add("post_id = $%d", f.PostID)
	}
	if f.Status != nil {
		w.add("status = $%d", int(*f.Status))
	}
	if f.Trackback != nil {
		w.add("trackback = $%d", *f.Trackback)
	}
	if f.Site != "" {
		w.add("site = $%d", f.Site)
	}
	if f.VisiblePosts {
		w.add("post_id IN (SELECT id FROM posts WHERE status = $%d AND password = '')", int(blog.PostPublished))
	}
	return w
}

// ListComments returns comments oldest first, or newest first when
// f.Descending is set.
func (r *Repository) ListComments(ctx context.Context, f blog.CommentFilter) ([]blog.Comment, error) {
	w := commentWhere(f)
	order := ` ORDER BY created_at, id`
	if f.Descending {
		order = ` ORDER BY created_at DESC, id DESC`
	}
	query := `SELECT ` + commentColumns + ` FROM comments` + w.String() + order
	query += w.limit(f.Limit, f.Offset)
	rows, err := r.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()
	out := []blog.Comment{}
	for rows.Next() {
		var c blog.Comment
		var status int
		if err := rows.Scan(&c.ID, &c.PostID, &c.BlogID, &c.Author, &c.Email, &c.Site, &c.Content,
			&c.IP, &status, &c.Trackback, &c.Created, &c.Words); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Status = blog.CommentStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountComments counts comments matching f.
func (r *Repository) CountComments(ctx context.Context, f blog.CommentFilter) (int, error) {
	w := commentWhere(f)
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM comments`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// CreateComment inserts a comment.
func (r *Repository) CreateComment(ctx context.Context, c blog.Comment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO comments (post_id, blog_id, author, email, site, content, ip, status, trackback, created_at, words)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		c.PostID, c.BlogID, c.Author, c.Email, c.Site, c.Content, c.IP, int(c.Status), c.Trackback,
		c.Created, c.Words).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	return id, nil
}

// UpdateComment replaces a comment row.
func (r *Repository) UpdateComment(ctx context.Context, c blog.Comment) error {
	tag, err := r.db.Exec(ctx, `
UPDATE comments SET author = $3, email = $4, site = $5, content = $6, status = $7, created_at = $8, words = $9
WHERE blog_id = $1 AND id = $2`,
		c.BlogID, c.ID, c.Author, c.Email, c.Site, c.Content, int(c.Status), c.Created, c.Words)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return affected(tag)
}

// DeleteComment removes a comment.
func (r *Repository) DeleteComment(ctx context.Context, blogID string, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM comments WHERE blog_id = $1 AND id = $2`, blogID, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return affected(tag)
}

const userColumns = `id, name, firstname, displayname, email, url, pwd, super, status, lang, default_format`

func scanUser(row pgx.Row) (blog.User, error) {
	var u blog.User
	err := row.Scan(&u.ID, &u.Name, &u.Firstname, &u.DisplayName, &u.Email, &u.URL, &u.PasswordHash,
		&u.Super, &u.Status, &u.Lang, &u.DefaultFormat)
	return u, err
}

func (r *Repository) loadPermissions(ctx context.Context, u *blog.User) error {
	rows, err := r.db.Query(ctx, `SELECT blog_id, perms FROM permissions WHERE user_id = $1`, u.ID)
	if err != nil {
		return fmt.Errorf("select permissions: %w", err)
	}
	defer rows.Close()
	u.Permissions = map[string]blog.PermissionSet{}
	for rows.Next() {
		var blogID, perms string
		if err := rows.Scan(&blogID, &perms); err != nil {
			return fmt.Errorf("scan permissions: %w", err)
		}
		u.Permissions[blogID] = blog.ParsePermissions(perms)
	}
	return rows.Err()
}

// GetUser loads an account with its permissions.
func (r *Repository) GetUser(ctx context.Context, id string) (blog.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return blog.User{}, fmt.Errorf("select user: %w", notFound(err))
	}
	if err := r.loadPermissions(ctx, &u); err != nil {
		return blog.User{}, err
	}
	return u, nil
}

// ListBlogUsers returns users with permissions on blogID and super users.
func (r *Repository) ListBlogUsers(ctx context.Context, blogID string) ([]blog.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users
WHERE super OR id IN (SELECT user_id FROM permissions WHERE blog_id = $1) ORDER BY id`, blogID)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	var out []blog.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadPermissions(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SaveUser upserts an account and replaces its permissions.
func (r *Repository) SaveUser(ctx context.Context, u blog.User) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO users (id, name, firstname, displayname, email, url, pwd, super, status, lang, default_format)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, firstname = EXCLUDED.firstname, displayname = EXCLUDED.displayname,
	email = EXCLUDED.email, url = EXCLUDED.url, pwd = EXCLUDED.pwd, super = EXCLUDED.super,
	status = EXCLUDED.status, lang = EXCLUDED.lang, default_format = EXCLUDED.default_format`,
		u.ID, u.Name, u.Firstname, u.DisplayName, u.Email, u.URL, u.PasswordHash, u.Super, u.Status,
		u.Lang, u.DefaultFormat)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE user_id = $1`, u.ID); err != nil {
		return fmt.Errorf("clear permissions: %w", err)
	}
	for blogID, set := range u.Permissions {
		if len(set) == 0 {
			continue
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO permissions (user_id, blog_id, perms) VALUES ($1,$2,$3)`,
			u.ID, blogID, set.String()); err != nil {
			return fmt.Errorf("insert permissions: %w", err)
		}
	}
	return nil
}

// GetSettings returns one settings namespace.
func (r *Repository) GetSettings(ctx context.Context, blogID, namespace string) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM settings WHERE blog_id = $1 AND ns = $2`, blogID, namespace)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting upserts one setting.
func (r *Repository) SetSetting(ctx context.Context, blogID, namespace, key, value string) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO settings (blog_id, ns, key, value) VALUES ($1,$2,$3,$4)
ON CONFLICT (blog_id, ns, key) DO UPDATE SET value = EXCLUDED.value`, blogID, namespace, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// DeleteSetting removes one setting.
func (r *Repository) DeleteSetting(ctx context.Context, blogID, namespace, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM settings WHERE blog_id = $1 AND ns = $2 AND key = $3`,
		blogID, namespace, key); err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// DeleteNamespace removes a namespace from every blog.
func (r *Repository) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM settings WHERE ns = $1`, namespace); err != nil {
		return fmt.Errorf("delete settings namespace: %w", err)
	}
	return nil
}

// CreateMedia records an uploaded file.
func (r *Repository) CreateMedia(ctx context.Context, m blog.Media) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO media (blog_id, user_id, name, path, url, content_type, size, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		m.BlogID, m.UserID, m.Name, m.Path, m.URL, m.ContentType, m.Size, m.Created).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert media: %w", err)
	}
	return id, nil
}

// ListMedia lists a blog's media, newest first.
func (r *Repository) ListMedia(ctx context.Context, blogID string) ([]blog.Media, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, blog_id, user_id, name, path, url, content_type, size, created_at
FROM media WHERE blog_id = $1 ORDER BY id DESC`, blogID)
	if err != nil {
		return nil, fmt.Errorf("select media: %w", err)
	}
	defer rows.Close()
	out := []blog.Media{}
	for rows.Next() {
		var m blog.Media
		if err := rows.Scan(&m.ID, &m.BlogID, &m.UserID, &m.Name, &m.Path, &m.URL, &m.ContentType,
			&m.Size, &m.Created); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
