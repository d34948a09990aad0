// Package blog holds the domain model of the engine (blogs, posts, categories,
// comments, users, settings, media) together with the storage interfaces the
// rest of the code talks to and the Service that applies business rules on
// top of them. Concrete repositories live under internal/storage.
package blog
