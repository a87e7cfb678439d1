package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"sftpaudit/pkg/contracts/domain"
)

// The credentials file is plain text: blocks separated by a line of five
// or more dashes, the first non-empty line of each block is the account
// display name, and the remaining "key: value" lines carry credentials
// and folder definitions. See LoadAccounts for the parsing rules.

var (
	blockDelimRe = regexp.MustCompile(`-{5,}`)
	quotedRe     = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
	hostRe       = regexp.MustCompile(`[a-zA-Z0-9.-]+`)
	hostPortRe   = regexp.MustCompile(`\d{2,5}`)
	digitsRe     = regexp.MustCompile(`\d+`)
	nonLetterRe  = regexp.MustCompile(`[^a-z]`)

	accountValidator = validator.New()
)

// LoadAccounts parses the credentials file into account records.
// Accounts missing host, username or password are dropped with a
// warning; an account without any folder gets an implicit root folder.
// A missing file is the only fatal condition.
func LoadAccounts(filePath string) ([]domain.Account, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("credentials file not found at %s: %w", filePath, err)
	}
	return ParseAccounts(string(content)), nil
}

// ParseAccounts parses the credentials text blob. Malformed blocks are
// skipped rather than surfaced as errors.
func ParseAccounts(content string) []domain.Account {
	var accounts []domain.Account

	for _, block := range blockDelimRe.Split(content, -1) {
		account, ok := parseBlock(block)
		if !ok {
			continue
		}
		if err := accountValidator.Struct(account); err != nil {
			slog.Warn("Dropping account with incomplete credentials",
				slog.String("account", account.Name),
				slog.String("error", err.Error()))
			continue
		}
		if len(account.Folders) == 0 {
			account.Folders = append(account.Folders, domain.Folder{Label: "Root", Path: "/"})
		}
		accounts = append(accounts, account)
	}

	return accounts
}

func parseBlock(block string) (domain.Account, bool) {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return domain.Account{}, false
	}

	account := domain.Account{Name: lines[0], Port: domain.DefaultSFTPPort}
	var lastFolder *domain.Folder

	for _, line := range lines[1:] {
		if strings.HasPrefix(line, "--") {
			continue
		}
		if !strings.Contains(line, ":") {
			// Continuation line: extra quoted filters for the previous folder.
			if lastFolder != nil {
				_, extra := parseFolderValue(line)
				appendFilters(lastFolder, extra)
			}
			continue
		}

		rawKey, rawValue, _ := strings.Cut(line, ":")
		value := cleanValue(rawValue)

		switch key := normalizeKey(rawKey); key {
		case "host", "hosturl", "ftpurl", "url":
			if m := hostRe.FindString(value); m != "" {
				account.Host = m
			}
			if m := hostPortRe.FindString(value); m != "" {
				if port, err := strconv.Atoi(m); err == nil {
					account.Port = port
				}
			}
		case "username":
			account.Username = value
		case "password":
			account.Password = value
		case "port":
			if m := digitsRe.FindString(value); m != "" {
				if port, err := strconv.Atoi(m); err == nil {
					account.Port = port
				}
			}
		case "folders", "locations":
			// Section marker; actual folder entries follow.
		case "folder":
			path, filters := parseFolderValue(rawValue)
			account.Folders = append(account.Folders, domain.Folder{Label: "Folder", Path: path, Filters: filters})
			lastFolder = &account.Folders[len(account.Folders)-1]
		default:
			// Folder definitions keep every quoted segment, so they are
			// parsed from the raw value rather than the cleaned one.
			path, filters := parseFolderValue(rawValue)
			label := deriveFolderLabel(account.Name, rawKey)
			account.Folders = append(account.Folders, domain.Folder{Label: label, Path: path, Filters: filters})
			lastFolder = &account.Folders[len(account.Folders)-1]
		}
	}

	return account, true
}

// cleanValue strips quotes and trailing comments from a value. A quoted
// segment is taken verbatim, even if it contains '#'; only unquoted
// values have '#' treated as a comment delimiter.
func cleanValue(raw string) string {
	rv := strings.TrimSpace(raw)
	if m := quotedRe.FindStringSubmatch(rv); m != nil {
		return strings.TrimSpace(firstGroup(m))
	}
	value, _, _ := strings.Cut(rv, "#")
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'")) {
			value = value[1 : len(value)-1]
		}
	}
	return strings.TrimSpace(value)
}

// normalizeKey lower-cases a key and strips everything except letters,
// so "Host URL", "host_url" and "HostUrl" all classify identically.
func normalizeKey(rawKey string) string {
	return nonLetterRe.ReplaceAllString(strings.ToLower(rawKey), "")
}

// deriveFolderLabel turns a raw config key into a display label: the
// account name is stripped out, underscores and dashes become spaces,
// and the first letter is capitalized.
func deriveFolderLabel(accountName, rawKey string) string {
	label := strings.TrimSpace(rawKey)
	if label == "" {
		return "Folder"
	}

	namePattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(accountName))
	stripped := strings.Trim(namePattern.ReplaceAllString(label, ""), " _-:")
	if stripped != "" {
		label = stripped
	}

	label = strings.ReplaceAll(label, "_", " ")
	label = strings.ReplaceAll(label, "-", " ")
	if label == "" {
		return "Folder"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// parseFolderValue extracts a folder path plus optional quoted filename
// filters from a free-form value such as:
//
//	'/Woodford/RAReporting' files we check: "RevAI_Fleet", "Daily_Bookings"
//
// The first quoted segment that looks like a path becomes the path; the
// remaining quoted segments become filters. When no quoted path exists
// the whole trimmed value is the path, preserving spaces in folder names.
func parseFolderValue(raw string) (string, []string) {
	value := strings.TrimSpace(raw)

	var segments []string
	for _, m := range quotedRe.FindAllStringSubmatch(value, -1) {
		if seg := firstGroup(m); seg != "" {
			segments = append(segments, seg)
		}
	}

	var path string
	for _, seg := range segments {
		if strings.HasPrefix(seg, "/") || strings.Contains(seg, "/") {
			path = seg
			break
		}
	}
	if path == "" {
		// No quoted path: the whole value is the path, preserving
		// spaces. Unquoted values may still carry a trailing comment.
		if len(segments) == 0 {
			value, _, _ = strings.Cut(value, "#")
			value = strings.TrimSpace(value)
		}
		path = value
		if path == "" {
			path = "/"
		}
	}

	var filters []string
	for _, seg := range segments {
		if seg != path {
			filters = append(filters, seg)
		}
	}

	return path, filters
}

// appendFilters adds filters to a folder, deduplicating case-insensitively.
func appendFilters(folder *domain.Folder, extra []string) {
	existing := make(map[string]bool, len(folder.Filters))
	for _, f := range folder.Filters {
		existing[strings.ToLower(f)] = true
	}
	for _, f := range extra {
		if lower := strings.ToLower(f); !existing[lower] {
			folder.Filters = append(folder.Filters, f)
			existing[lower] = true
		}
	}
}

// firstGroup returns the first non-empty capture group of a quotedRe
// match (group 1 for single quotes, group 2 for double quotes).
func firstGroup(m []string) string {
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
