package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/inkpress/internal/blog"
	"github.com/JakeFAU/inkpress/internal/media"
)

// Indexer is the part of blog.Service the counter and index tasks use.
type Indexer interface {
	RecountComments(ctx context.Context, blogID string) (int, error)
	ReindexPosts(ctx context.Context, blogID string) (int, error)
	ReindexComments(ctx context.Context, blogID string) (int, error)
}

// Flusher drops cached templates; render.Renderer satisfies it.
type Flusher interface {
	Flush()
}

type funcTask struct {
	id, name string
	run      func(ctx context.Context, blogID string) (string, error)
}

func (t funcTask) ID() string   { return t.id }
func (t funcTask) Name() string { return t.name }
func (t funcTask) Run(ctx context.Context, blogID string) (string, error) {
	return t.run(ctx, blogID)
}

// CountComments recomputes per-post comment and trackback counters.
func CountComments(idx Indexer) Task {
	return funcTask{id: "countcomments", name: "Count again comments and trackbacks", run: func(ctx context.Context, blogID string) (string, error) {
		n, err := idx.RecountComments(ctx, blogID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d posts updated", n), nil
	}}
}

// IndexPosts rebuilds the search words of posts.
func IndexPosts(idx Indexer) Task {
	return funcTask{id: "indexposts", name: "Search engine index: entries", run: func(ctx context.Context, blogID string) (string, error) {
		n, err := idx.ReindexPosts(ctx, blogID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d entries indexed", n), nil
	}}
}

// IndexComments rebuilds the search words of comments.
func IndexComments(idx Indexer) Task {
	return funcTask{id: "indexcomments", name: "Search engine index: comments", run: func(ctx context.Context, blogID string) (string, error) {
		n, err := idx.ReindexComments(ctx, blogID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d comments indexed", n), nil
	}}
}

// Cache empties the template cache.
func Cache(f Flusher) Task {
	return funcTask{id: "cache", name: "Empty templates cache", run: func(context.Context, string) (string, error) {
		f.Flush()
		return "templates cache emptied", nil
	}}
}

// Exporter is the part of blog.Service the export task reads.
type Exporter interface {
	GetBlog(ctx context.Context, id string) (blog.Blog, error)
	Categories(ctx context.Context, blogID string) ([]blog.Category, error)
	Posts(ctx context.Context, f blog.PostFilter) ([]blog.Post, error)
	Comments(ctx context.Context, f blog.CommentFilter) ([]blog.Comment, error)
}

// Export is the document written by the export task.
type Export struct {
	Version    int             `yaml:"version"`
	Exported   time.Time       `yaml:"exported"`
	Blog       blog.Blog       `yaml:"blog"`
	Categories []blog.Category `yaml:"categories"`
	Posts      []blog.Post     `yaml:"posts"`
	Comments   []blog.Comment  `yaml:"comments"`
}

// ExportBlog writes a YAML dump of a blog to <blog>/exports/<timestamp>.yaml
// in store.
func ExportBlog(src Exporter, store media.Store, clock Clock) Task {
	return funcTask{id: "exportblog", name: "Export blog", run: func(ctx context.Context, blogID string) (string, error) {
		doc, err := BuildExport(ctx, src, blogID, clock.Now())
		if err != nil {
			return "", err
		}
		data, err := yaml.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("encode export: %w", err)
		}
		name := path.Join(blogID, "exports", doc.Exported.Format("20060102-150405")+".yaml")
		if _, err := store.PutObject(ctx, name, "application/yaml", bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("store export: %w", err)
		}
		return "exported to " + store.PublicURL(name), nil
	}}
}

// BuildExport collects everything a blog owns.
func BuildExport(ctx context.Context, src Exporter, blogID string, now time.Time) (Export, error) {
	b, err := src.GetBlog(ctx, blogID)
	if err != nil {
		return Export{}, fmt.Errorf("load blog: %w", err)
	}
	cats, err := src.Categories(ctx, blogID)
	if err != nil {
		return Export{}, fmt.Errorf("load categories: %w", err)
	}
	posts, err := src.Posts(ctx, blog.PostFilter{BlogID: blogID, Ascending: true})
	if err != nil {
		return Export{}, fmt.Errorf("load posts: %w", err)
	}
	comments, err := src.Comments(ctx, blog.CommentFilter{BlogID: blogID})
	if err != nil {
		return Export{}, fmt.Errorf("load comments: %w", err)
	}
	return Export{Version: 1, Exported: now.UTC(), Blog: b, Categories: cats, Posts: posts, Comments: comments}, nil
}

// Defaults returns the standard task list.
func Defaults(svc *blog.Service, cache Flusher, store media.Store, clock Clock) []Task {
	tasks := []Task{CountComments(svc), IndexPosts(svc), IndexComments(svc)}
	if cache != nil {
		tasks = append(tasks, Cache(cache))
	}
	if store != nil {
		tasks = append(tasks, ExportBlog(svc, store, clock))
	}
	return tasks
}
