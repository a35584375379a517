// Package cli implements the matapouri command-line interface.
//
// The root command loads configuration (flags, environment, matapouri.yaml)
// and installs the structured logger. Subcommands serve the website, create,
// list and restore backups, push the project to GitHub and check the GitHub
// token. Results are printed as text or JSON.
package cli
