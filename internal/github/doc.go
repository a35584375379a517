// Package github pushes site files to a GitHub repository through the REST
// contents API.
//
// Each file is uploaded with a separate commit. The client looks up the
// current blob SHA first so existing files are updated rather than rejected,
// retries transient failures with exponential backoff, and never includes
// response bodies in returned errors.
package github
