package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/matapouriblue/matapouri-blue/internal/backup"
	"github.com/matapouriblue/matapouri-blue/internal/github"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// CreateResult is the output of backup create
type CreateResult struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// ListResult is the output of backup list
type ListResult struct {
	Root    string   `json:"root"`
	Backups []string `json:"backups"`
	Count   int      `json:"count"`
}

// RestoreResult is the output of backup restore
type RestoreResult struct {
	Category string         `json:"category"`
	Found    bool           `json:"found"`
	Applied  bool           `json:"applied,omitempty"`
	Payload  backup.Payload `json:"payload,omitempty"`
}

// PushResult is the output of push
type PushResult struct {
	Mode     string   `json:"mode"`
	Repo     string   `json:"repo"`
	UpToDate bool     `json:"up_to_date"`
	Files    []string `json:"files"`
	Total    int      `json:"total_files"`
}

// writeJSON outputs v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(v)
}

// WriteCreated writes the result of backup create
func WriteCreated(w io.Writer, result *CreateResult, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, result)
	}
	_, err := fmt.Fprintf(w, "Project backup created: %s\n", result.Name)
	return err
}

// WriteList writes the result of backup list
func WriteList(w io.Writer, result *ListResult, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, result)
	}

	if result.Count == 0 {
		fmt.Fprintf(w, "No backups found in %s.\n", result.Root)
		return nil
	}
	for _, name := range result.Backups {
		fmt.Fprintln(w, name)
	}
	fmt.Fprintf(w, "\nTotal: %d backups in %s\n", result.Count, result.Root)
	return nil
}

// WriteRestore writes the result of backup restore. Text output lists the
// payload fields in key order.
func WriteRestore(w io.Writer, result *RestoreResult, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, result)
	}

	if !result.Found {
		fmt.Fprintf(w, "No backup available for %s.\n", result.Category)
		return nil
	}

	keys := make([]string, 0, len(result.Payload))
	for key := range result.Payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "Latest %s backup:\n", result.Category)
	for _, key := range keys {
		value := result.Payload[key]
		if s, ok := value.(string); ok {
			fmt.Fprintf(w, "  %s: %s\n", key, s)
			continue
		}
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: %s\n", key, data)
	}
	if result.Applied {
		fmt.Fprintln(w, "\nRestored content applied to the site.")
	}
	return nil
}

// WritePush writes the result of push
func WritePush(w io.Writer, result *PushResult, format OutputFormat) error {
	if format == FormatJSON {
		if result.Files == nil {
			result.Files = []string{}
		}
		return writeJSON(w, result)
	}

	if result.UpToDate {
		fmt.Fprintln(w, "No changes to push - repository is up to date.")
		return nil
	}
	for _, file := range result.Files {
		fmt.Fprintf(w, "  %s\n", file)
	}
	fmt.Fprintf(w, "\nPushed %d files to %s (%s)\n", result.Total, result.Repo, result.Mode)
	return nil
}

// WriteTokenStatus writes the result of github check-token
func WriteTokenStatus(w io.Writer, status *github.TokenStatus, format OutputFormat) error {
	if format == FormatJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "Token valid for %s\n", status.Login)
	if len(status.Permissions) == 0 {
		fmt.Fprintln(w, "Permissions: none")
		return nil
	}
	fmt.Fprintf(w, "Permissions: %v\n", status.Permissions)
	return nil
}
