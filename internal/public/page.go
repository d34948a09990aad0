package public

import (
	"context"
	"html/template"
	"time"

	"github.com/JakeFAU/inkpress/internal/blog"
)

// Page is the data every template document receives.
type Page struct {
	Blog      blog.Blog
	Type      string
	Args      Args
	Lang      string
	BaseURL   string
	SelfURL   string
	XMLRPCURL string
	Updated   time.Time

	Posts      []PostView
	Post       *PostView
	Comments   []CommentView
	Pings      []CommentView
	Category   *CategoryView
	Categories []CategoryView
	Tag        string
	Tags       []TagView
	Archives   []ArchiveView
	Date       time.Time
	Query      string
	Total      int
	Pager      Pager

	FeedComments bool
	Form         CommentForm
	Message      string
	Error        string

	ctx context.Context
}

// Context returns the request context, for template functions that load
// data.
func (p *Page) Context() context.Context {
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

// PostView is a post with its computed links and trusted HTML.
type PostView struct {
	blog.Post
	Permalink     string
	TrackbackURL  string
	Author        string
	CategoryTitle string
	CategoryLink  string
	HTML          template.HTML
	ExcerptHTML   template.HTML
	// Protected marks a password protected post whose body was withheld.
	Protected bool
}

// CommentView is a comment with its trusted HTML and the post it belongs to.
type CommentView struct {
	blog.Comment
	HTML      template.HTML
	PostTitle string
	Permalink string
}

// CategoryView is a category with its links.
type CategoryView struct {
	blog.Category
	Permalink string
	FeedURL   string
}

// TagView is a tag with its usage count.
type TagView struct {
	Name      string
	Count     int
	Permalink string
}

// ArchiveView is one month of the archive index.
type ArchiveView struct {
	blog.ArchiveMonth
	Date      time.Time
	Permalink string
}

// Pager links to the neighbour pages of a listing. PrevURL points to newer
// entries.
type Pager struct {
	Current int
	PrevURL string
	NextURL string
}

// CommentForm holds the submitted comment fields so the form can be
// redisplayed.
type CommentForm struct {
	Name        string
	Email       string
	Site        string
	Content     string
	PreviewHTML template.HTML
}
