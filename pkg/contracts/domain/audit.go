package domain

import (
	"io/fs"
	"strings"
	"time"
)

// DefaultSFTPPort is used when an account block does not specify a port.
const DefaultSFTPPort = 22

// TimestampLayout is how selected file timestamps are rendered in reports
// (local time, MM/DD/YYYY HH:MM:SS).
const TimestampLayout = "01/02/2006 15:04:05"

// Placeholder and marker strings written into report rows. Downstream
// consumers filter on these, so the exact text is part of the contract.
const (
	PlaceholderNone       = "-"
	PlaceholderNoFile     = "No file found"
	MarkerFolderNotSet    = "Folder not configured"
	MarkerErrorPrefix     = "Error: "
	MarkerConnErrorPrefix = "Connection error: "
)

// Account is one configured SFTP endpoint with credentials and the
// folders to inspect. Accounts missing host, username or password are
// dropped during config parsing.
type Account struct {
	Name     string   `json:"name" validate:"required"`
	Host     string   `json:"host" validate:"required"`
	Port     int      `json:"port"`
	Username string   `json:"username" validate:"required"`
	Password string   `json:"-" validate:"required"`
	Folders  []Folder `json:"folders"`
}

// Addr returns the host with the account port applied, defaulting to 22.
func (a Account) Addr() (host string, port int) {
	port = a.Port
	if port == 0 {
		port = DefaultSFTPPort
	}
	return a.Host, port
}

// Folder is a remote directory of interest. Filters are case-insensitive
// starts-with strings; an empty filter list means no name filtering.
type Folder struct {
	Label   string   `json:"label"`
	Path    string   `json:"path"`
	Filters []string `json:"filters,omitempty"`
}

// RemoteEntry is one entry of a remote directory listing.
type RemoteEntry struct {
	Name    string      `json:"name"`
	ModTime time.Time   `json:"mod_time"`
	Mode    fs.FileMode `json:"-"`
}

// IsRegular reports whether the entry is a regular file. Only regular
// files are eligible for selection.
func (e RemoteEntry) IsRegular() bool { return e.Mode.IsRegular() }

// IsDir reports whether the entry is a directory.
func (e RemoteEntry) IsDir() bool { return e.Mode.IsDir() }

// Selection is the outcome of resolving the latest file for one folder
// (or one prefix within a folder). When Found is false, Reason may carry
// a best-effort diagnostic such as "empty folder".
type Selection struct {
	Name    string    `json:"name,omitempty"`
	ModTime time.Time `json:"mod_time,omitempty"`
	Found   bool      `json:"found"`
	Reason  string    `json:"reason,omitempty"`
}

// Timestamp renders the selected modification time in the report layout.
func (s Selection) Timestamp() string {
	if !s.Found {
		return ""
	}
	return s.ModTime.Local().Format(TimestampLayout)
}

// ReportRow is one line of the output workbook. Exactly one of
// {real file name + timestamp, the "No file found" placeholder, an
// error marker} occupies the FileName/FileDate pair.
type ReportRow struct {
	Account  string `json:"account"`
	Folder   string `json:"folder"`
	FileName string `json:"file_name"`
	FileDate string `json:"file_date"`
}

// IsError reports whether the row carries an error marker rather than a
// selection result or a plain not-found placeholder.
func (r ReportRow) IsError() bool {
	lower := strings.ToLower(r.FileDate)
	return strings.HasPrefix(lower, "error") ||
		strings.HasPrefix(lower, "connection error") ||
		r.FileDate == MarkerFolderNotSet
}
