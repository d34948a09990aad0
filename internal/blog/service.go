package blog

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/inkpress/internal/events"
)

// Settings namespaces and keys used by the service.
const (
	NamespaceSystem     = "system"
	SettingCommentsPub  = "comments_pub"
	SettingTrackbackPub = "trackbacks_pub"
	SettingAllowComment = "allow_comments"
	SettingAllowTB      = "allow_trackbacks"
)

const maxURLAttempts = 100

// Service applies the engine's business rules on top of a Repository.
type Service struct {
	repo    Repository
	formats Formatter
	clock   Clock
	emitter events.Emitter
	policy  *bluemonday.Policy
	logger  *zap.Logger
}

// NewService constructs a Service. formats, emitter and logger may be nil.
func NewService(repo Repository, formats Formatter, clock Clock, emitter events.Emitter, logger *zap.Logger) *Service {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Service{
		repo:    repo,
		formats: formats,
		clock:   clock,
		emitter: emitter,
		policy:  bluemonday.UGCPolicy(),
		logger:  logger,
	}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Repository exposes the underlying store for maintenance tasks.
func (s *Service) Repository() Repository {
	return s.repo
}

// Formats returns the registered formatter names.
func (s *Service) Formats() []string {
	if s.formats == nil {
		return []string{"xhtml"}
	}
	return s.formats.Names()
}

// GetBlog loads one blog.
func (s *Service) GetBlog(ctx context.Context, id string) (Blog, error) {
	b, err := s.repo.GetBlog(ctx, id)
	if err != nil {
		return Blog{}, fmt.Errorf("get blog %s: %w", id, err)
	}
	return b, nil
}

// Blogs lists all blogs.
func (s *Service) Blogs(ctx context.Context) ([]Blog, error) {
	return s.repo.ListBlogs(ctx)
}

// UpdateBlog saves the name, description, URL and language of a blog.
func (s *Service) UpdateBlog(ctx context.Context, b Blog) (Blog, error) {
	if strings.TrimSpace(b.Name) == "" {
		return Blog{}, fmt.Errorf("%w: blog name is required", ErrInvalid)
	}
	old, err := s.GetBlog(ctx, b.ID)
	if err != nil {
		return Blog{}, err
	}
	b.Status = old.Status
	b.UpdatedAt = s.clock.Now()
	if err := s.repo.SaveBlog(ctx, b); err != nil {
		return Blog{}, fmt.Errorf("save blog %s: %w", b.ID, err)
	}
	return b, nil
}

// UserBlogs lists the blogs u can access.
func (s *Service) UserBlogs(ctx context.Context, u User) ([]Blog, error) {
	all, err := s.repo.ListBlogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	out := make([]Blog, 0, len(all))
	for _, b := range all {
		if u.Can(b.ID, PermUsage, PermContentAdmin) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Posts lists posts matching f.
func (s *Service) Posts(ctx context.Context, f PostFilter) ([]Post, error) {
	posts, err := s.repo.ListPosts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// CountPosts counts posts matching f, ignoring Limit and Offset.
func (s *Service) CountPosts(ctx context.Context, f PostFilter) (int, error) {
	f.Limit, f.Offset = 0, 0
	n, err := s.repo.CountPosts(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// GetPost loads a post or page by id.
func (s *Service) GetPost(ctx context.Context, blogID string, id int64) (Post, error) {
	if id <= 0 {
		return Post{}, ErrNotFound
	}
	posts, err := s.repo.ListPosts(ctx, PostFilter{BlogID: blogID, ID: id, Limit: 1})
	if err != nil {
		return Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	if len(posts) == 0 {
		return Post{}, ErrNotFound
	}
	return posts[0], nil
}

// PostByURL loads a post of the given type by its URL, whatever its status.
func (s *Service) PostByURL(ctx context.Context, blogID, typ, url string) (Post, error) {
	posts, err := s.repo.ListPosts(ctx, PostFilter{BlogID: blogID, Type: typ, URL: url, Limit: 1})
	if err != nil {
		return Post{}, fmt.Errorf("get post by url: %w", err)
	}
	if len(posts) == 0 {
		return Post{}, ErrNotFound
	}
	return posts[0], nil
}

// NewPost validates, formats and stores p, returning the stored copy.
func (s *Service) NewPost(ctx context.Context, p Post) (Post, error) {
	if p.BlogID == "" {
		return Post{}, fmt.Errorf("%w: blog id is required", ErrInvalid)
	}
	if p.Type == "" {
		p.Type = TypePost
	}
	if p.Type != TypePost && p.Type != TypePage {
		return Post{}, fmt.Errorf("%w: unknown post type %q", ErrInvalid, p.Type)
	}
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Content) == "" {
		return Post{}, fmt.Errorf("%w: empty post", ErrInvalid)
	}
	if err := s.checkCategory(ctx, p.BlogID, p.CategoryID); err != nil {
		return Post{}, err
	}
	now := s.clock.Now()
	if p.Created.IsZero() {
		p.Created = now
	}
	p.Updated = now
	p.ID = 0
	if err := s.prepare(ctx, &p); err != nil {
		return Post{}, err
	}
	id, err := s.repo.CreatePost(ctx, p)
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	p.ID = id
	s.touch(ctx, p.BlogID)
	s.emitPost(events.PostCreated, p)
	if p.Published() {
		s.emitPost(events.PostPublished, p)
	}
	return p, nil
}

// UpdatePost replaces the editable fields of an existing post.
func (s *Service) UpdatePost(ctx context.Context, p Post) (Post, error) {
	old, err := s.GetPost(ctx, p.BlogID, p.ID)
	if err != nil {
		return Post{}, err
	}
	if p.Type == "" {
		p.Type = old.Type
	}
	if p.Created.IsZero() {
		p.Created = old.Created
	}
	if p.UserID == "" {
		p.UserID = old.UserID
	}
	if err := s.checkCategory(ctx, p.BlogID, p.CategoryID); err != nil {
		return Post{}, err
	}
	p.NbComment, p.NbTrackback = old.NbComment, old.NbTrackback
	p.Updated = s.clock.Now()
	if p.URL == "" {
		p.URL = old.URL
	}
	if err := s.prepare(ctx, &p); err != nil {
		return Post{}, err
	}
	if err := s.repo.UpdatePost(ctx, p); err != nil {
		return Post{}, fmt.Errorf("update post %d: %w", p.ID, err)
	}
	s.touch(ctx, p.BlogID)
	if p.Published() && !old.Published() {
		s.emitPost(events.PostPublished, p)
	}
	return p, nil
}

// SetPostStatus changes only the status of a post.
func (s *Service) SetPostStatus(ctx context.Context, blogID string, id int64, status PostStatus) (Post, error) {
	p, err := s.GetPost(ctx, blogID, id)
	if err != nil {
		return Post{}, err
	}
	p.Status = status
	return s.UpdatePost(ctx, p)
}

// SetPostCategory moves a post to category catID (0 removes it).
func (s *Service) SetPostCategory(ctx context.Context, blogID string, postID, catID int64) error {
	p, err := s.GetPost(ctx, blogID, postID)
	if err != nil {
		return err
	}
	if err := s.checkCategory(ctx, blogID, catID); err != nil {
		return err
	}
	p.CategoryID = catID
	p.Updated = s.clock.Now()
	if err := s.repo.UpdatePost(ctx, p); err != nil {
		return fmt.Errorf("set post category: %w", err)
	}
	s.touch(ctx, blogID)
	return nil
}

// DeletePost removes a post and its comments.
func (s *Service) DeletePost(ctx context.Context, blogID string, id int64) error {
	p, err := s.GetPost(ctx, blogID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, blogID, id); err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}
	s.touch(ctx, blogID)
	s.emitPost(events.PostDeleted, p)
	return nil
}

// Archives lists months holding published posts, newest first.
func (s *Service) Archives(ctx context.Context, blogID string) ([]ArchiveMonth, error) {
	months, err := s.repo.ListArchiveMonths(ctx, blogID)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	return months, nil
}

// Tags returns published tag usage counts.
func (s *Service) Tags(ctx context.Context, blogID string) (map[string]int, error) {
	tags, err := s.repo.ListTags(ctx, blogID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// Categories lists categories ordered by position.
func (s *Service) Categories(ctx context.Context, blogID string) ([]Category, error) {
	cats, err := s.repo.ListCategories(ctx, blogID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// CategoryByURL finds a category by its URL.
func (s *Service) CategoryByURL(ctx context.Context, blogID, url string) (Category, error) {
	cats, err := s.Categories(ctx, blogID)
	if err != nil {
		return Category{}, err
	}
	for _, c := range cats {
		if c.URL == url {
			return c, nil
		}
	}
	return Category{}, ErrNotFound
}

// GetCategory finds a category by id.
func (s *Service) GetCategory(ctx context.Context, blogID string, id int64) (Category, error) {
	cats, err := s.Categories(ctx, blogID)
	if err != nil {
		return Category{}, err
	}
	for _, c := range cats {
		if c.ID == id {
			return c, nil
		}
	}
	return Category{}, ErrNotFound
}

// NewCategory stores a category with a unique URL.
func (s *Service) NewCategory(ctx context.Context, c Category) (Category, error) {
	if strings.TrimSpace(c.Title) == "" {
		return Category{}, fmt.Errorf("%w: category title is required", ErrInvalid)
	}
	cats, err := s.Categories(ctx, c.BlogID)
	if err != nil {
		return Category{}, err
	}
	taken := make(map[string]bool, len(cats))
	for _, existing := range cats {
		taken[existing.URL] = true
		if existing.Position >= c.Position {
			c.Position = existing.Position + 1
		}
	}
	url := Slugify(c.URL, true)
	if url == "" {
		url = Slugify(c.Title, false)
	}
	for taken[url] {
		url = nextURL(url)
	}
	c.URL = url
	id, err := s.repo.CreateCategory(ctx, c)
	if err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	c.ID = id
	s.touch(ctx, c.BlogID)
	return c, nil
}

// DeleteCategory removes a category; its posts are left uncategorized.
func (s *Service) DeleteCategory(ctx context.Context, blogID string, id int64) error {
	if _, err := s.GetCategory(ctx, blogID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, blogID, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	s.touch(ctx, blogID)
	return nil
}

// Comments lists comments matching f.
func (s *Service) Comments(ctx context.Context, f CommentFilter) ([]Comment, error) {
	comments, err := s.repo.ListComments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// CountComments counts comments matching f.
func (s *Service) CountComments(ctx context.Context, f CommentFilter) (int, error) {
	f.Limit, f.Offset = 0, 0
	n, err := s.repo.CountComments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// GetComment loads a comment by id.
func (s *Service) GetComment(ctx context.Context, blogID string, id int64) (Comment, error) {
	comments, err := s.repo.ListComments(ctx, CommentFilter{BlogID: blogID, ID: id, Limit: 1})
	if err != nil {
		return Comment{}, fmt.Errorf("get comment %d: %w", id, err)
	}
	if len(comments) == 0 {
		return Comment{}, ErrNotFound
	}
	return comments[0], nil
}

// AddComment stores a reader comment on a published post. The initial status
// depends on the comments_pub setting unless the caller forces one with
// forceStatus.
func (s *Service) AddComment(ctx context.Context, c Comment, forceStatus *CommentStatus) (Comment, error) {
	post, err := s.GetPost(ctx, c.BlogID, c.PostID)
	if err != nil {
		return Comment{}, err
	}
	if forceStatus == nil && (!post.Published() || !post.OpenComment) {
		return Comment{}, fmt.Errorf("%w: comments are closed", ErrForbidden)
	}
	c.Author = strings.TrimSpace(c.Author)
	if c.Author == "" {
		return Comment{}, fmt.Errorf("%w: author is required", ErrInvalid)
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return Comment{}, fmt.Errorf("%w: bad email", ErrInvalid)
		}
	}
	c.Content = strings.TrimSpace(s.policy.Sanitize(c.Content))
	if c.Content == "" {
		return Comment{}, fmt.Errorf("%w: empty comment", ErrInvalid)
	}
	c.Site = NormalizeSite(c.Site)
	c.Trackback = false
	if forceStatus != nil {
		c.Status = *forceStatus
	} else {
		c.Status = s.initialStatus(ctx, c.BlogID, SettingCommentsPub)
	}
	return s.storeComment(ctx, c, events.CommentCreated)
}

// AddPingback registers a pingback from source on post. A second pingback
// from the same source returns ErrDuplicate.
func (s *Service) AddPingback(ctx context.Context, blogID string, post Post, source, title, excerpt string) (Comment, error) {
	if !post.Published() || !post.OpenTrackback {
		return Comment{}, fmt.Errorf("%w: pingbacks are closed", ErrForbidden)
	}
	n, err := s.repo.CountComments(ctx, CommentFilter{
		BlogID: blogID, PostID: post.ID, Trackback: BoolPtr(true), Site: source,
	})
	if err != nil {
		return Comment{}, fmt.Errorf("check pingback: %w", err)
	}
	if n > 0 {
		return Comment{}, ErrDuplicate
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = source
	}
	content := "<!-- TB -->\n<p><strong>" + s.policy.Sanitize(title) + "</strong></p>"
	if excerpt = strings.TrimSpace(excerpt); excerpt != "" {
		content += "\n<p>" + s.policy.Sanitize(excerpt) + "</p>"
	}
	c := Comment{
		PostID:    post.ID,
		BlogID:    blogID,
		Author:    title,
		Site:      source,
		Content:   content,
		Trackback: true,
		Status:    s.initialStatus(ctx, blogID, SettingTrackbackPub),
	}
	return s.storeComment(ctx, c, events.PingbackReceived)
}

// UpdateComment replaces the editable fields of a comment.
func (s *Service) UpdateComment(ctx context.Context, c Comment) (Comment, error) {
	old, err := s.GetComment(ctx, c.BlogID, c.ID)
	if err != nil {
		return Comment{}, err
	}
	c.PostID, c.Trackback, c.IP = old.PostID, old.Trackback, old.IP
	if c.Created.IsZero() {
		c.Created = old.Created
	}
	c.Content = s.policy.Sanitize(c.Content)
	c.Site = NormalizeSite(c.Site)
	c.Words = Words(c.Author, c.Content)
	if err := s.repo.UpdateComment(ctx, c); err != nil {
		return Comment{}, fmt.Errorf("update comment %d: %w", c.ID, err)
	}
	s.recountPost(ctx, c.BlogID, c.PostID)
	s.touch(ctx, c.BlogID)
	return c, nil
}

// DeleteComment removes a comment.
func (s *Service) DeleteComment(ctx context.Context, blogID string, id int64) error {
	c, err := s.GetComment(ctx, blogID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, blogID, id); err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	s.recountPost(ctx, blogID, c.PostID)
	s.touch(ctx, blogID)
	return nil
}

// RecountComments recomputes comment and trackback counters for every post
// of the blog and returns how many posts changed.
func (s *Service) RecountComments(ctx context.Context, blogID string) (int, error) {
	posts, err := s.repo.ListPosts(ctx, PostFilter{BlogID: blogID})
	if err != nil {
		return 0, fmt.Errorf("list posts: %w", err)
	}
	changed := 0
	for _, p := range posts {
		ok, err := s.recount(ctx, p)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// ReindexPosts rebuilds the search words of every post.
func (s *Service) ReindexPosts(ctx context.Context, blogID string) (int, error) {
	posts, err := s.repo.ListPosts(ctx, PostFilter{BlogID: blogID})
	if err != nil {
		return 0, fmt.Errorf("list posts: %w", err)
	}
	for _, p := range posts {
		p.Words = Words(p.Title, p.ExcerptXHTML, p.ContentXHTML)
		if err := s.repo.UpdatePost(ctx, p); err != nil {
			return 0, fmt.Errorf("reindex post %d: %w", p.ID, err)
		}
	}
	return len(posts), nil
}

// ReindexComments rebuilds the search words of every comment.
func (s *Service) ReindexComments(ctx context.Context, blogID string) (int, error) {
	comments, err := s.repo.ListComments(ctx, CommentFilter{BlogID: blogID})
	if err != nil {
		return 0, fmt.Errorf("list comments: %w", err)
	}
	for _, c := range comments {
		c.Words = Words(c.Author, c.Content)
		if err := s.repo.UpdateComment(ctx, c); err != nil {
			return 0, fmt.Errorf("reindex comment %d: %w", c.ID, err)
		}
	}
	return len(comments), nil
}

// Users lists the accounts holding permissions on blogID.
func (s *Service) Users(ctx context.Context, blogID string) ([]User, error) {
	users, err := s.repo.ListBlogUsers(ctx, blogID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser loads an account.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

// Authenticate checks a user id and clear password. Unknown users, disabled
// accounts and wrong passwords all yield ErrBadCredentials.
func (s *Service) Authenticate(ctx context.Context, userID, password string) (User, error) {
	if userID == "" || password == "" {
		return User{}, ErrBadCredentials
	}
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrBadCredentials
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if u.Status != 1 {
		return User{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// CheckPermission returns ErrForbidden unless u holds one of perms on blogID.
func (s *Service) CheckPermission(u User, blogID string, perms ...Permission) error {
	if !u.Can(blogID, perms...) {
		return fmt.Errorf("%w: %s on %s", ErrForbidden, u.ID, blogID)
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for User.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: empty password", ErrInvalid)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Settings returns a namespace of blog settings.
func (s *Service) Settings(ctx context.Context, blogID, namespace string) (map[string]string, error) {
	settings, err := s.repo.GetSettings(ctx, blogID, namespace)
	if err != nil {
		return nil, fmt.Errorf("get settings %s/%s: %w", blogID, namespace, err)
	}
	return settings, nil
}

// SetSetting writes one setting.
func (s *Service) SetSetting(ctx context.Context, blogID, namespace, key, value string) error {
	if namespace == "" || key == "" {
		return fmt.Errorf("%w: setting namespace and key are required", ErrInvalid)
	}
	if err := s.repo.SetSetting(ctx, blogID, namespace, key, value); err != nil {
		return fmt.Errorf("set setting %s.%s: %w", namespace, key, err)
	}
	return nil
}

// DeleteSetting removes one setting.
func (s *Service) DeleteSetting(ctx context.Context, blogID, namespace, key string) error {
	if err := s.repo.DeleteSetting(ctx, blogID, namespace, key); err != nil {
		return fmt.Errorf("delete setting %s.%s: %w", namespace, key, err)
	}
	return nil
}

// DropSettings removes a settings namespace from every blog.
func (s *Service) DropSettings(ctx context.Context, namespace string) error {
	if namespace == "" {
		return fmt.Errorf("%w: setting namespace is required", ErrInvalid)
	}
	if err := s.repo.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("drop settings %s: %w", namespace, err)
	}
	return nil
}

// AddMedia registers an uploaded file.
func (s *Service) AddMedia(ctx context.Context, m Media) (Media, error) {
	if m.Created.IsZero() {
		m.Created = s.clock.Now()
	}
	id, err := s.repo.CreateMedia(ctx, m)
	if err != nil {
		return Media{}, fmt.Errorf("create media: %w", err)
	}
	m.ID = id
	return m, nil
}

// NormalizeSite makes commenter URLs absolute.
func NormalizeSite(site string) string {
	site = strings.TrimSpace(site)
	if site == "" {
		return ""
	}
	if !strings.Contains(site, "://") {
		site = "http://" + site
	}
	return site
}

func (s *Service) prepare(ctx context.Context, p *Post) error {
	if p.Format == "" {
		p.Format = "xhtml"
	}
	var err error
	if p.ContentXHTML, err = s.format(p.Format, p.Content); err != nil {
		return err
	}
	if p.ExcerptXHTML, err = s.format(p.Format, p.Excerpt); err != nil {
		return err
	}
	p.Words = Words(p.Title, p.ExcerptXHTML, p.ContentXHTML)
	p.Tags = normalizeTags(p.Tags)
	url, err := s.uniqueURL(ctx, *p)
	if err != nil {
		return err
	}
	p.URL = url
	return nil
}

func (s *Service) format(name, src string) (string, error) {
	if src == "" {
		return "", nil
	}
	if s.formats == nil {
		return s.policy.Sanitize(src), nil
	}
	out, err := s.formats.Format(name, src)
	if err != nil {
		return "", fmt.Errorf("%w: format %s: %v", ErrInvalid, name, err)
	}
	return out, nil
}

// uniqueURL builds the permalink path: YYYY/MM/DD/slug for posts, slug for
// pages, bumped with -N until no other post of the same type uses it.
func (s *Service) uniqueURL(ctx context.Context, p Post) (string, error) {
	url := Slugify(p.URL, true)
	if url == "" {
		slug := Slugify(p.Title, false)
		if slug == "" {
			slug = p.Type
		}
		if p.Type == TypePost {
			url = p.Created.Format("2006/01/02") + "/" + slug
		} else {
			url = slug
		}
	}
	for i := 0; i < maxURLAttempts; i++ {
		posts, err := s.repo.ListPosts(ctx, PostFilter{BlogID: p.BlogID, Type: p.Type, URL: url, Limit: 1})
		if err != nil {
			return "", fmt.Errorf("check post url: %w", err)
		}
		if len(posts) == 0 || posts[0].ID == p.ID {
			return url, nil
		}
		url = nextURL(url)
	}
	return "", fmt.Errorf("%w: no free url for %q", ErrDuplicate, p.Title)
}

func (s *Service) checkCategory(ctx context.Context, blogID string, id int64) error {
	if id == 0 {
		return nil
	}
	if _, err := s.GetCategory(ctx, blogID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: unknown category %d", ErrInvalid, id)
		}
		return err
	}
	return nil
}

func (s *Service) initialStatus(ctx context.Context, blogID, key string) CommentStatus {
	settings, err := s.repo.GetSettings(ctx, blogID, NamespaceSystem)
	if err != nil {
		s.logger.Warn("load moderation settings failed", zap.String("blog_id", blogID), zap.Error(err))
		return CommentPending
	}
	if v, ok := settings[key]; ok && (v == "0" || v == "false") {
		return CommentPending
	}
	return CommentPublished
}

func (s *Service) storeComment(ctx context.Context, c Comment, typ events.Type) (Comment, error) {
	c.Created = s.clock.Now()
	c.Words = Words(c.Author, c.Content)
	id, err := s.repo.CreateComment(ctx, c)
	if err != nil {
		return Comment{}, fmt.Errorf("create comment: %w", err)
	}
	c.ID = id
	s.recountPost(ctx, c.BlogID, c.PostID)
	s.touch(ctx, c.BlogID)
	s.emitter.Emit(events.Event{
		Type:      typ,
		TS:        c.Created,
		BlogID:    c.BlogID,
		PostID:    c.PostID,
		CommentID: c.ID,
		URL:       c.Site,
		Title:     c.Author,
		Note:      c.Status.String(),
	})
	return c, nil
}

func (s *Service) recountPost(ctx context.Context, blogID string, postID int64) {
	p, err := s.GetPost(ctx, blogID, postID)
	if err != nil {
		s.logger.Warn("recount: load post failed", zap.Int64("post_id", postID), zap.Error(err))
		return
	}
	if _, err := s.recount(ctx, p); err != nil {
		s.logger.Warn("recount failed", zap.Int64("post_id", postID), zap.Error(err))
	}
}

func (s *Service) recount(ctx context.Context, p Post) (bool, error) {
	published := CommentStatusPtr(CommentPublished)
	comments, err := s.repo.CountComments(ctx, CommentFilter{
		BlogID: p.BlogID, PostID: p.ID, Status: published, Trackback: BoolPtr(false),
	})
	if err != nil {
		return false, fmt.Errorf("count comments: %w", err)
	}
	trackbacks, err := s.repo.CountComments(ctx, CommentFilter{
		BlogID: p.BlogID, PostID: p.ID, Status: published, Trackback: BoolPtr(true),
	})
	if err != nil {
		return false, fmt.Errorf("count trackbacks: %w", err)
	}
	if p.NbComment == comments && p.NbTrackback == trackbacks {
		return false, nil
	}
	p.NbComment, p.NbTrackback = comments, trackbacks
	if err := s.repo.UpdatePost(ctx, p); err != nil {
		return false, fmt.Errorf("update counters: %w", err)
	}
	return true, nil
}

func (s *Service) touch(ctx context.Context, blogID string) {
	if err := s.repo.TouchBlog(ctx, blogID, s.clock.Now()); err != nil {
		s.logger.Warn("touch blog failed", zap.String("blog_id", blogID), zap.Error(err))
	}
}

func (s *Service) emitPost(typ events.Type, p Post) {
	s.emitter.Emit(events.Event{
		Type:    typ,
		TS:      s.clock.Now(),
		BlogID:  p.BlogID,
		PostID:  p.ID,
		URL:     p.URL,
		Title:   p.Title,
		Content: p.ContentXHTML,
		Note:    p.Type,
	})
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = Slugify(t, false)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
