// Package graph is a minimal Microsoft Graph To Do client. It owns the
// authenticated request plumbing (bearer injection, the single forced-refresh
// retry after a 401) and typed operations over task lists, tasks and
// checklist items. Wire types stay private; callers see plain domain structs.
package graph
