package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sftpaudit/internal/audit"
	"sftpaudit/internal/config"
	"sftpaudit/internal/exporter"
	"sftpaudit/internal/infrastructure"
	"sftpaudit/internal/remote"
	"sftpaudit/pkg/contracts/domain"
)

const dateLayout = "2006-01-02"

// reportDateLayout names output workbooks (Accounts_Daily_Update_MM-DD-YYYY.xlsx).
const reportDateLayout = "01-02-2006"

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// sftpSessionDialer adapts the SFTP dialer to the orchestrator's
// session interface.
type sftpSessionDialer struct {
	dialer *remote.Dialer
}

func (d sftpSessionDialer) Dial(account domain.Account) (audit.Session, error) {
	client, err := d.dialer.Dial(account)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	accountFilter := flag.String("account", "", "filter accounts by name (partial match)")
	folderFilter := flag.String("folder", "", "filter folders by label (partial match)")
	output := flag.String("output", "", "output workbook path (defaults to result/Accounts_Daily_Update_<date>.xlsx)")
	previousDay := flag.Bool("previous-day", false, "pick the latest file strictly before the reference date")
	todayOnly := flag.Bool("today-only", false, "only consider files whose date equals the reference date")
	latest := flag.Bool("latest", false, "alias for -today-only")
	dateStr := flag.String("date", "", "single calendar date to report for (YYYY-MM-DD)")
	startStr := flag.String("start-date", "", "start date (inclusive) for a date range (YYYY-MM-DD)")
	endStr := flag.String("end-date", "", "end date (inclusive) for a date range (YYYY-MM-DD)")
	credentials := flag.String("credentials", "", "credentials file path (defaults to credentials.txt next to the executable)")
	var skip stringList
	flag.Var(&skip, "skip", "account name to skip (repeatable)")
	flag.Parse()

	if *latest {
		*todayOnly = true
	}
	runStarted := time.Now()

	paths, err := config.GetPaths()
	if err != nil {
		fmt.Printf("Error: Failed to initialize paths: %v\n", err)
		os.Exit(1)
	}
	if *credentials != "" {
		paths.CredentialsFile = *credentials
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Printf("Error: Failed to create required directories: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Warning: Failed to load config, using defaults: %v\n", err)
		cfg = config.Default()
	}
	logFile := paths.GetLogPath(fmt.Sprintf("run_%s.log", runStarted.Format("20060102_150405")))
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = logFile
	} else {
		logFile = cfg.Logging.FilePath
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx := infrastructure.WithRunID(context.Background(), uuid.NewString())

	dates, err := resolveDates(*dateStr, *startStr, *endStr)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid date arguments", slog.String("error", err.Error()))
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Default temporal policy: today-only.
	if !*todayOnly && !*previousDay {
		*todayOnly = true
	}

	accounts, err := config.LoadAccounts(paths.CredentialsFile)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load credentials", slog.String("error", err.Error()))
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	logger.InfoContext(ctx, "Run started",
		slog.String("account_filter", *accountFilter),
		slog.String("folder_filter", *folderFilter),
		slog.Bool("previous_day", *previousDay),
		slog.Bool("today_only", *todayOnly),
		slog.Any("skip", []string(skip)),
		slog.Int("accounts", len(accounts)),
		slog.Int("dates", len(dates)))

	dialer := remote.NewDialer(remote.Options{
		ConnectTimeout:   cfg.SFTP.ConnectTimeout,
		AcceptAnyHostKey: cfg.SFTP.AcceptAnyHostKey,
		KnownHostsFile:   cfg.SFTP.KnownHostsFile,
	}, logger)
	collector := audit.NewCollector(accounts, sftpSessionDialer{dialer}, logger)
	writer := exporter.NewExcelWriter(cfg.Report.SheetName)

	baseOpts := audit.Options{
		AccountFilter: *accountFilter,
		FolderFilter:  *folderFilter,
		SkipAccounts:  skip,
		TodayOnly:     *todayOnly,
		PreviousDay:   *previousDay,
	}

	if len(dates) > 0 {
		runDateRange(ctx, collector, writer, cfg, paths, baseOpts, dates, *output, logger)
		fmt.Printf("Date range processing completed. Check %s and %s for outputs.\nLogs: %s\n",
			paths.ResultDir, paths.ErrorsDir, logFile)
		return
	}

	rows := collector.Collect(ctx, baseOpts)
	if len(rows) == 0 {
		logger.WarnContext(ctx, "No data returned from collection")
		fmt.Println("No data found. Please verify your credentials file.")
		return
	}

	reportDate := runStarted.Format(reportDateLayout)
	resultPath := *output
	if resultPath == "" {
		resultPath = paths.GetResultPath(fmt.Sprintf("%s_%s.xlsx", cfg.Report.BaseName, reportDate))
	}
	if err := writer.WriteReport(rows, resultPath); err != nil {
		logger.ErrorContext(ctx, "Failed to write report", slog.String("error", err.Error()))
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	logger.InfoContext(ctx, "Main report saved", slog.String("path", resultPath))

	errMessage := "No errors detected."
	errorPath := paths.GetErrorsPath(fmt.Sprintf("%s_errors_%s.xlsx", cfg.Report.BaseName, reportDate))
	written, err := writer.WriteErrorReport(exporter.ErrorRows(rows), errorPath)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to write error report", slog.String("error", err.Error()))
	} else if written {
		logger.WarnContext(ctx, "Errors detected", slog.String("path", errorPath))
		errMessage = fmt.Sprintf("Errors saved to %s", errorPath)
	}

	fmt.Printf("Data saved to %s\n%s\nLogs: %s\n", resultPath, errMessage, logFile)
}

// runDateRange runs one collection pass and writes one workbook per
// requested calendar date.
func runDateRange(ctx context.Context, collector *audit.Collector, writer *exporter.ExcelWriter, cfg *config.Config, paths *config.Paths, baseOpts audit.Options, dates []time.Time, output string, logger *slog.Logger) {
	for _, day := range dates {
		logger.InfoContext(ctx, "Collecting for calendar date",
			slog.String("date", day.Format(dateLayout)))

		opts := baseOpts
		opts.OnDate = &day
		opts.TodayOnly = !baseOpts.PreviousDay
		rows := collector.Collect(ctx, opts)
		if len(rows) == 0 {
			logger.WarnContext(ctx, "No data returned for date, skipping",
				slog.String("date", day.Format(dateLayout)))
			continue
		}

		reportDate := day.Format(reportDateLayout)
		resultPath := output
		switch {
		case resultPath == "":
			resultPath = paths.GetResultPath(fmt.Sprintf("%s_%s.xlsx", cfg.Report.BaseName, reportDate))
		case len(dates) > 1:
			resultPath = withDateSuffix(resultPath, reportDate)
		}

		if err := writer.WriteReport(rows, resultPath); err != nil {
			logger.ErrorContext(ctx, "Failed to write report",
				slog.String("date", reportDate),
				slog.String("error", err.Error()))
			continue
		}
		logger.InfoContext(ctx, "Report saved",
			slog.String("date", reportDate),
			slog.String("path", resultPath))

		errorPath := paths.GetErrorsPath(fmt.Sprintf("%s_errors_%s.xlsx", cfg.Report.BaseName, reportDate))
		written, err := writer.WriteErrorReport(exporter.ErrorRows(rows), errorPath)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to write error report",
				slog.String("date", reportDate),
				slog.String("error", err.Error()))
		} else if written {
			logger.WarnContext(ctx, "Errors detected for date",
				slog.String("date", reportDate),
				slog.String("path", errorPath))
		} else {
			logger.InfoContext(ctx, "No errors detected for date",
				slog.String("date", reportDate))
		}
	}
}

// resolveDates turns the -date / -start-date / -end-date flags into the
// list of calendar dates to report for. An empty result means the run is
// not date-scoped.
func resolveDates(dateStr, startStr, endStr string) ([]time.Time, error) {
	if dateStr == "" && startStr == "" && endStr == "" {
		return nil, nil
	}

	if dateStr != "" {
		if startStr != "" || endStr != "" {
			return nil, fmt.Errorf("-date cannot be combined with -start-date/-end-date")
		}
		single, err := time.ParseInLocation(dateLayout, dateStr, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", dateStr)
		}
		return []time.Time{single}, nil
	}

	if startStr == "" || endStr == "" {
		return nil, fmt.Errorf("both -start-date and -end-date must be provided, or use -date for a single date")
	}
	start, err := time.ParseInLocation(dateLayout, startStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", startStr)
	}
	end, err := time.ParseInLocation(dateLayout, endStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", endStr)
	}
	if start.After(end) {
		return nil, fmt.Errorf("start date must be on or before end date")
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// withDateSuffix inserts _<date> before the file extension, so an
// explicit -output still yields one workbook per date in range mode.
func withDateSuffix(path, date string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + date + ext
}
