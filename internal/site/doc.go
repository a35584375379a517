// Package site serves the Matapouri Blue website: the public pages, the
// standalone content editors, and the JSON endpoints used by the editors and
// the backup dashboard.
package site
