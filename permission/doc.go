// Package permission defines the closed role and permission enumerations
// used for request-time authorization, and the static role→permission
// policy checked by the middleware.
//
// Roles and permissions are fixed at compile time. Permissions are bits in
// a [Mask]; a role's grant set is a single mask, so a required-permission
// check is one AND per request.
package permission
