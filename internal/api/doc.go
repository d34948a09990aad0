// Package api hosts the admin JSON API. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /admin/api/login to exchange credentials for a bearer token.
//   - /admin/api/modules/... to list, toggle, configure, install and delete
//     plugins and themes (super users only).
//   - /admin/api/repository/{type}/... to search the remote catalogs.
//   - /admin/api/blogs/{blog_id}/maintenance/... to run housekeeping tasks
//     (blog admins).
package api
