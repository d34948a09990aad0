package modules

import "context"

// Plugin is a compiled-in module. Lifecycle hooks are optional: a plugin
// implements the interfaces below for the transitions it cares about.
type Plugin interface {
	ID() string
	Define() Define
}

// Installer runs when a builtin is first registered without saved state.
type Installer interface {
	Install(ctx context.Context) error
}

// Activator runs when the module is enabled.
type Activator interface {
	Activate(ctx context.Context) error
}

// Deactivator runs when the module is disabled.
type Deactivator interface {
	Deactivate(ctx context.Context) error
}

// Uninstaller runs before a module is deleted.
type Uninstaller interface {
	Uninstall(ctx context.Context) error
}

// Configurer is told about new settings for a blog.
type Configurer interface {
	Configure(ctx context.Context, blogID string, settings map[string]string) error
}
