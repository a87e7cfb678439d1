package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sftpaudit/pkg/contracts/domain"
)

// Session is one open remote connection: the listing capability plus an
// explicit close.
type Session interface {
	Lister
	Close() error
}

// SessionDialer opens sessions for accounts. The SFTP dialer satisfies
// it in production; tests substitute fakes.
type SessionDialer interface {
	Dial(account domain.Account) (Session, error)
}

// Options filters and shapes one collection pass.
type Options struct {
	// AccountFilter keeps only accounts whose name contains the value
	// (case-insensitive). Empty keeps everything.
	AccountFilter string
	// FolderFilter keeps only folders whose label contains the value.
	FolderFilter string
	// SkipAccounts excludes accounts by name substring.
	SkipAccounts []string
	// TodayOnly restricts selection to the reference date.
	TodayOnly bool
	// PreviousDay picks the latest file strictly before the reference date.
	PreviousDay bool
	// OnDate overrides the reference date; nil means today.
	OnDate *time.Time
}

// referenceDate resolves the calendar date the policies operate on.
func (o Options) referenceDate() time.Time {
	if o.OnDate != nil {
		return *o.OnDate
	}
	return time.Now()
}

// Collector walks every configured account and folder sequentially, one
// connection at a time, and accumulates report rows. One account's
// failure never aborts the others.
type Collector struct {
	accounts []domain.Account
	dialer   SessionDialer
	logger   *slog.Logger
}

// NewCollector creates a collector over the parsed account list.
func NewCollector(accounts []domain.Account, dialer SessionDialer, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{accounts: accounts, dialer: dialer, logger: logger}
}

// Collect performs one pass over all accounts and returns the rows in
// account/folder configuration order.
func (c *Collector) Collect(ctx context.Context, opts Options) []domain.ReportRow {
	var rows []domain.ReportRow

	for _, account := range c.accounts {
		if !matchesFilter(account.Name, opts.AccountFilter) {
			continue
		}
		if c.isSkipped(ctx, account.Name, opts.SkipAccounts) {
			continue
		}
		rows = append(rows, c.collectAccount(ctx, account, opts)...)
	}

	return rows
}

func (c *Collector) isSkipped(ctx context.Context, name string, skip []string) bool {
	for _, s := range skip {
		if matchesFilter(name, s) {
			c.logger.InfoContext(ctx, "Skipping account due to skip list",
				slog.String("account", name))
			return true
		}
	}
	return false
}

func (c *Collector) collectAccount(ctx context.Context, account domain.Account, opts Options) []domain.ReportRow {
	c.logger.InfoContext(ctx, "Connecting to account",
		slog.String("account", account.Name),
		slog.String("host", account.Host))

	session, err := c.dialer.Dial(account)
	if err != nil {
		c.logger.ErrorContext(ctx, "Connection failed",
			slog.String("account", account.Name),
			slog.String("error", err.Error()))
		// One error row per configured folder so the outage is visible
		// on every report line the account would have produced.
		rows := make([]domain.ReportRow, 0, len(account.Folders))
		for _, folder := range account.Folders {
			rows = append(rows, domain.ReportRow{
				Account:  account.Name,
				Folder:   folder.Label,
				FileName: domain.PlaceholderNone,
				FileDate: domain.MarkerConnErrorPrefix + err.Error(),
			})
		}
		return rows
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "Failed to close session",
				slog.String("account", account.Name),
				slog.String("error", closeErr.Error()))
		}
		c.logger.InfoContext(ctx, "Disconnected from account",
			slog.String("account", account.Name))
	}()

	folders := filterFolders(account.Folders, opts.FolderFilter)
	if len(folders) == 0 {
		c.logger.WarnContext(ctx, "No folders configured matching filter",
			slog.String("account", account.Name),
			slog.String("folder_filter", opts.FolderFilter))
		label := opts.FolderFilter
		if label == "" {
			label = domain.PlaceholderNone
		}
		return []domain.ReportRow{{
			Account:  account.Name,
			Folder:   label,
			FileName: domain.PlaceholderNone,
			FileDate: domain.MarkerFolderNotSet,
		}}
	}

	selector := NewSelector(session)
	var rows []domain.ReportRow
	for _, folder := range folders {
		rows = append(rows, c.collectFolder(ctx, selector, account, folder, opts)...)
	}
	return rows
}

func (c *Collector) collectFolder(ctx context.Context, selector *Selector, account domain.Account, folder domain.Folder, opts Options) []domain.ReportRow {
	c.logger.InfoContext(ctx, "Checking folder",
		slog.String("account", account.Name),
		slog.String("folder", folder.Label),
		slog.String("path", folder.Path),
		slog.Any("filters", folder.Filters))

	if len(folder.Filters) > 0 {
		return c.collectPerPrefix(ctx, selector, account, folder, opts)
	}

	day := opts.referenceDate()
	policy := LatestOverall
	var sel domain.Selection
	var err error
	switch {
	case opts.TodayOnly:
		policy = LatestOnDate
		sel, err = selector.LatestFileOnDate(folder.Path, day, folder.Filters)
	case opts.PreviousDay:
		policy = LatestBeforeDate
		sel, err = selector.LatestFileBeforeDate(folder.Path, day, folder.Filters)
	default:
		sel, err = selector.LatestFile(folder.Path, folder.Filters)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "Error retrieving latest file",
			slog.String("account", account.Name),
			slog.String("folder", folder.Label),
			slog.String("error", err.Error()))
		return []domain.ReportRow{errorRow(account.Name, folder.Label, err)}
	}

	if sel.Found {
		c.logFound(ctx, account.Name, folder.Label, sel)
		return []domain.ReportRow{foundRow(account.Name, folder.Label, sel)}
	}

	// Date criterion not met; fall back to the latest file regardless
	// of date before reporting a miss.
	if policy != LatestOverall {
		fallback, fbErr := selector.LatestFile(folder.Path, folder.Filters)
		if fbErr != nil {
			c.logger.ErrorContext(ctx, "Fallback latest lookup failed",
				slog.String("account", account.Name),
				slog.String("folder", folder.Label),
				slog.String("error", fbErr.Error()))
		} else if fallback.Found {
			c.logger.WarnContext(ctx, "No file met the date criterion; using latest available file",
				slog.String("account", account.Name),
				slog.String("folder", folder.Label),
				slog.String("file", fallback.Name),
				slog.String("mod_time", fallback.Timestamp()))
			return []domain.ReportRow{foundRow(account.Name, folder.Label, fallback)}
		}
	}

	reason := selector.Diagnose(folder.Path, folder.Filters, policy, day)
	c.logger.WarnContext(ctx, "No files found",
		slog.String("account", account.Name),
		slog.String("folder", folder.Label),
		slog.String("path", folder.Path),
		slog.String("reason", reason))
	return []domain.ReportRow{notFoundRow(account.Name, folder.Label, reason)}
}

// collectPerPrefix emits one row per configured prefix, each labeled
// "<folder label> - <prefix>". An explicit date restriction applies only
// under the today-only policy; each prefix falls back to its latest
// available file when the date yields nothing.
func (c *Collector) collectPerPrefix(ctx context.Context, selector *Selector, account domain.Account, folder domain.Folder, opts Options) []domain.ReportRow {
	var onDate *time.Time
	if opts.TodayOnly {
		day := opts.referenceDate()
		onDate = &day
	}

	per, err := selector.LatestPerPrefix(folder.Path, folder.Filters, onDate)
	if err != nil {
		c.logger.ErrorContext(ctx, "Error retrieving latest files per prefix",
			slog.String("account", account.Name),
			slog.String("folder", folder.Label),
			slog.String("error", err.Error()))
		return []domain.ReportRow{errorRow(account.Name, folder.Label, err)}
	}

	var rows []domain.ReportRow
	for _, prefix := range lowerNonEmpty(folder.Filters) {
		label := folder.Label + " - " + prefix
		sel := per[prefix]
		if sel.Found {
			c.logFound(ctx, account.Name, label, sel)
			rows = append(rows, foundRow(account.Name, label, sel))
			continue
		}

		fallback, fbErr := selector.LatestFile(folder.Path, []string{prefix})
		if fbErr == nil && fallback.Found {
			c.logger.WarnContext(ctx, "No file met the date criterion; using latest available file",
				slog.String("account", account.Name),
				slog.String("folder", label),
				slog.String("file", fallback.Name))
			rows = append(rows, foundRow(account.Name, label, fallback))
			continue
		}

		c.logger.WarnContext(ctx, "No files found",
			slog.String("account", account.Name),
			slog.String("folder", label),
			slog.String("path", folder.Path))
		rows = append(rows, notFoundRow(account.Name, label, ""))
	}
	return rows
}

func (c *Collector) logFound(ctx context.Context, account, folder string, sel domain.Selection) {
	c.logger.InfoContext(ctx, "Latest file resolved",
		slog.String("account", account),
		slog.String("folder", folder),
		slog.String("file", sel.Name),
		slog.String("mod_time", sel.Timestamp()))
}

func foundRow(account, folder string, sel domain.Selection) domain.ReportRow {
	return domain.ReportRow{
		Account:  account,
		Folder:   folder,
		FileName: sel.Name,
		FileDate: sel.Timestamp(),
	}
}

func notFoundRow(account, folder, reason string) domain.ReportRow {
	date := domain.PlaceholderNoFile
	if reason != "" {
		date += " (" + reason + ")"
	}
	return domain.ReportRow{
		Account:  account,
		Folder:   folder,
		FileName: domain.PlaceholderNone,
		FileDate: date,
	}
}

func errorRow(account, folder string, err error) domain.ReportRow {
	return domain.ReportRow{
		Account:  account,
		Folder:   folder,
		FileName: domain.PlaceholderNone,
		FileDate: domain.MarkerErrorPrefix + err.Error(),
	}
}

func filterFolders(folders []domain.Folder, filter string) []domain.Folder {
	if filter == "" {
		return folders
	}
	var out []domain.Folder
	for _, f := range folders {
		if matchesFilter(f.Label, filter) {
			out = append(out, f)
		}
	}
	return out
}

// matchesFilter is a case-insensitive substring match; an empty pattern
// matches everything.
func matchesFilter(value, pattern string) bool {
	if pattern == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}
