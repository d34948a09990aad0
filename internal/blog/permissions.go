package blog

import (
	"sort"
	"strings"
)

// Permission names a right a user holds on a blog.
type Permission string

// Known permissions.
const (
	PermAdmin        Permission = "admin"
	PermUsage        Permission = "usage"
	PermContentAdmin Permission = "contentadmin"
	PermPublish      Permission = "publish"
	PermDelete       Permission = "delete"
	PermCategories   Permission = "categories"
	PermMedia        Permission = "media"
)

// PermissionSet is the set of permissions a user has on one blog.
type PermissionSet map[Permission]bool

// ParsePermissions reads a comma separated list ("usage,publish").
func ParsePermissions(s string) PermissionSet {
	set := PermissionSet{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			set[Permission(p)] = true
		}
	}
	return set
}

// String renders the set as a sorted comma separated list.
func (s PermissionSet) String() string {
	names := make([]string, 0, len(s))
	for p, ok := range s {
		if ok {
			names = append(names, string(p))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Has reports whether any of perms is granted. Admin implies everything.
func (s PermissionSet) Has(perms ...Permission) bool {
	if s[PermAdmin] {
		return true
	}
	for _, p := range perms {
		if s[p] {
			return true
		}
	}
	return false
}

// Can reports whether u holds at least one of perms on blogID. Super users
// hold every permission. An empty perms list only requires some access.
func (u User) Can(blogID string, perms ...Permission) bool {
	if u.Super {
		return true
	}
	set, ok := u.Permissions[blogID]
	if !ok || len(set) == 0 {
		return false
	}
	if len(perms) == 0 {
		return true
	}
	return set.Has(perms...)
}
