package modules

import "errors"

var (
	// ErrUnknownModule is returned for ids the manager does not know.
	ErrUnknownModule = errors.New("unknown module")
	// ErrProtected is returned when deleting a protected module or
	// overwriting a builtin.
	ErrProtected = errors.New("module is protected")
	// ErrInvalidDefine is returned for unreadable or incomplete manifests.
	ErrInvalidDefine = errors.New("invalid module definition")
	// ErrInvalidPackage is returned for zip archives that are not a module.
	ErrInvalidPackage = errors.New("invalid module package")
	// ErrNotNewer is returned when an archive does not update an installed
	// module.
	ErrNotNewer = errors.New("module is already installed in this or a newer version")
	// ErrUnknownSetting is returned when configuring an undeclared key.
	ErrUnknownSetting = errors.New("unknown module setting")
)
