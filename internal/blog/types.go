package blog

import (
	"time"
)

// PostStatus mirrors the post_status column.
type PostStatus int

// Post statuses.
const (
	PostPending     PostStatus = -2
	PostScheduled   PostStatus = -1
	PostUnpublished PostStatus = 0
	PostPublished   PostStatus = 1
)

// String returns a human label for the status.
func (s PostStatus) String() string {
	switch s {
	case PostPending:
		return "pending"
	case PostScheduled:
		return "scheduled"
	case PostUnpublished:
		return "unpublished"
	case PostPublished:
		return "published"
	default:
		return "unknown"
	}
}

// CommentStatus mirrors the comment_status column.
type CommentStatus int

// Comment statuses.
const (
	CommentJunk        CommentStatus = -2
	CommentPending     CommentStatus = -1
	CommentUnpublished CommentStatus = 0
	CommentPublished   CommentStatus = 1
)

// String returns a human label for the status.
func (s CommentStatus) String() string {
	switch s {
	case CommentJunk:
		return "junk"
	case CommentPending:
		return "pending"
	case CommentUnpublished:
		return "unpublished"
	case CommentPublished:
		return "published"
	default:
		return "unknown"
	}
}

// Post types.
const (
	TypePost = "post"
	TypePage = "page"
)

// Blog is one site hosted by the engine.
type Blog struct {
	ID        string
	Name      string
	Desc      string
	URL       string
	Lang      string
	Status    int
	UpdatedAt time.Time
}

// Post is an entry or a static page.
type Post struct {
	ID            int64
	BlogID        string
	UserID        string
	CategoryID    int64
	Type          string
	Status        PostStatus
	Title         string
	URL           string
	Format        string
	Excerpt       string
	Content       string
	ExcerptXHTML  string
	ContentXHTML  string
	Lang          string
	Password      string
	Selected      bool
	OpenComment   bool
	OpenTrackback bool
	Created       time.Time
	Updated       time.Time
	Tags          []string
	NbComment     int
	NbTrackback   int
	Words         string
}

// Published reports whether the post is visible on the public side.
func (p Post) Published() bool {
	return p.Status == PostPublished
}

// Category groups posts.
type Category struct {
	ID       int64
	BlogID   string
	Title    string
	URL      string
	Desc     string
	Position int
	NbPost   int
}

// Comment is a reader comment, or a pingback/trackback when Trackback is set.
type Comment struct {
	ID        int64
	PostID    int64
	BlogID    string
	Author    string
	Email     string
	Site      string
	Content   string
	IP        string
	Status    CommentStatus
	Trackback bool
	Created   time.Time
	Words     string
}

// User is an account able to log into XML-RPC and the admin API.
type User struct {
	ID            string
	Name          string
	Firstname     string
	DisplayName   string
	Email         string
	URL           string
	PasswordHash  string
	Super         bool
	Status        int
	Lang          string
	DefaultFormat string
	Permissions   map[string]PermissionSet
}

// CommonName returns the name used for bylines.
func (u User) CommonName() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.Firstname != "" && u.Name != "":
		return u.Firstname + " " + u.Name
	case u.Name != "":
		return u.Name
	default:
		return u.ID
	}
}

// Media is an uploaded file registered for a blog.
type Media struct {
	ID          int64
	BlogID      string
	UserID      string
	Name        string
	Path        string
	URL         string
	ContentType string
	Size        int64
	Created     time.Time
}

// ArchiveMonth counts published posts for one month.
type ArchiveMonth struct {
	Year  int
	Month int
	Count int
}

// PostFilter narrows ListPosts/CountPosts. Zero values mean "any".
type PostFilter struct {
	BlogID      string
	ID          int64
	Type        string
	Status      *PostStatus
	UserID      string
	CategoryID  int64
	CategoryURL string
	URL         string
	Year        int
	Month       int
	Tag         string
	Lang        string
	Search      string
	Selected    *bool
	Limit       int
	Offset      int
	// Ascending switches the default newest-first ordering.
	Ascending bool
}

// CommentFilter narrows ListComments/CountComments.
type CommentFilter struct {
	BlogID    string
	ID        int64
	PostID    int64
	Status    *CommentStatus
	Trackback *bool
	Site      string
	// VisiblePosts keeps comments of published posts without a password.
	VisiblePosts bool
	// Descending lists newest comments first.
	Descending bool
	Limit      int
	Offset     int
}

// StatusPtr is a helper for filters.
func StatusPtr(s PostStatus) *PostStatus {
	return &s
}

// CommentStatusPtr is a helper for filters.
func CommentStatusPtr(s CommentStatus) *CommentStatus {
	return &s
}

// BoolPtr is a helper for filters.
func BoolPtr(b bool) *bool {
	return &b
}
