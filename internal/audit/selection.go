// Package audit contains the latest-file resolution core and the
// run orchestrator that turns account configurations into report rows.
package audit

import (
	"strings"
	"time"

	"sftpaudit/pkg/contracts/domain"
)

// Lister is the remote directory listing capability the selection core
// depends on. The SFTP client satisfies it; tests use in-memory fakes.
type Lister interface {
	ListEntries(path string) ([]domain.RemoteEntry, error)
}

// Policy selects among candidate files by modification date.
type Policy int

const (
	// LatestOverall picks the file with the maximum modification time.
	LatestOverall Policy = iota
	// LatestOnDate restricts candidates to a single local calendar day.
	LatestOnDate
	// LatestBeforeDate restricts candidates to days strictly before a date.
	LatestBeforeDate
)

// Selector resolves the latest file in a folder under a temporal policy
// combined with optional name-prefix filters.
type Selector struct {
	lister Lister
}

// NewSelector creates a selector over the given listing capability.
func NewSelector(lister Lister) *Selector {
	return &Selector{lister: lister}
}

// collectCandidates gathers the eligible regular files for a folder.
// When prefix filters are given and nothing in the base folder matches,
// each filter is retried as a subfolder name prefix and the regular
// files directly inside matching subfolders are collected instead. The
// fallback descends one level only.
func (s *Selector) collectCandidates(path string, filters []string) ([]domain.RemoteEntry, error) {
	entries, err := s.lister.ListEntries(path)
	if err != nil {
		return nil, err
	}

	lowered := lowerNonEmpty(filters)

	var files []domain.RemoteEntry
	for _, e := range entries {
		if !e.IsRegular() {
			continue
		}
		if len(lowered) > 0 && !hasAnyPrefix(e.Name, lowered) {
			continue
		}
		files = append(files, e)
	}
	if len(files) > 0 || len(lowered) == 0 {
		return files, nil
	}

	// No direct match; treat each filter as a possible subfolder name.
	var collected []domain.RemoteEntry
	for _, e := range entries {
		if !e.IsDir() || !hasAnyPrefix(e.Name, lowered) {
			continue
		}
		subEntries, err := s.lister.ListEntries(joinRemote(path, e.Name))
		if err != nil {
			continue
		}
		for _, sub := range subEntries {
			if sub.IsRegular() {
				collected = append(collected, sub)
			}
		}
	}
	return collected, nil
}

// LatestFile returns the candidate with the maximum modification time,
// regardless of date.
func (s *Selector) LatestFile(path string, filters []string) (domain.Selection, error) {
	files, err := s.collectCandidates(path, filters)
	if err != nil {
		return domain.Selection{}, err
	}
	return latestOf(files), nil
}

// LatestFileOnDate returns the newest candidate whose local calendar
// date equals day.
func (s *Selector) LatestFileOnDate(path string, day time.Time, filters []string) (domain.Selection, error) {
	files, err := s.collectCandidates(path, filters)
	if err != nil {
		return domain.Selection{}, err
	}
	var eligible []domain.RemoteEntry
	for _, f := range files {
		if sameLocalDate(f.ModTime, day) {
			eligible = append(eligible, f)
		}
	}
	return latestOf(eligible), nil
}

// LatestFileBeforeDate returns the newest candidate whose local calendar
// date is strictly before day.
func (s *Selector) LatestFileBeforeDate(path string, day time.Time, filters []string) (domain.Selection, error) {
	files, err := s.collectCandidates(path, filters)
	if err != nil {
		return domain.Selection{}, err
	}
	var eligible []domain.RemoteEntry
	for _, f := range files {
		if beforeLocalDate(f.ModTime, day) {
			eligible = append(eligible, f)
		}
	}
	return latestOf(eligible), nil
}

// LatestPerPrefix runs the selection pipeline once per prefix, as if
// each prefix were a singleton filter list, keyed by the lower-cased
// prefix. When onDate is non-nil candidates are restricted to that
// local calendar date.
func (s *Selector) LatestPerPrefix(path string, prefixes []string, onDate *time.Time) (map[string]domain.Selection, error) {
	result := make(map[string]domain.Selection, len(prefixes))
	for _, prefix := range lowerNonEmpty(prefixes) {
		files, err := s.collectCandidates(path, []string{prefix})
		if err != nil {
			return nil, err
		}
		if onDate != nil {
			var eligible []domain.RemoteEntry
			for _, f := range files {
				if sameLocalDate(f.ModTime, *onDate) {
					eligible = append(eligible, f)
				}
			}
			files = eligible
		}
		result[prefix] = latestOf(files)
	}
	return result, nil
}

// Diagnose re-examines a folder to explain why a selection came back
// empty. It is best-effort: any listing failure yields an empty reason.
func (s *Selector) Diagnose(path string, filters []string, policy Policy, day time.Time) string {
	entries, err := s.lister.ListEntries(path)
	if err != nil {
		return ""
	}

	var files []domain.RemoteEntry
	for _, e := range entries {
		if e.IsRegular() {
			files = append(files, e)
		}
	}
	if len(files) == 0 {
		return "empty folder"
	}

	lowered := lowerNonEmpty(filters)
	if len(lowered) > 0 {
		var matched []domain.RemoteEntry
		for _, f := range files {
			if hasAnyPrefix(f.Name, lowered) {
				matched = append(matched, f)
			}
		}
		if len(matched) == 0 {
			return "no files matched configured filters"
		}
		files = matched
	}

	switch policy {
	case LatestOnDate:
		for _, f := range files {
			if sameLocalDate(f.ModTime, day) {
				return ""
			}
		}
		return "no file on requested date"
	case LatestBeforeDate:
		for _, f := range files {
			if beforeLocalDate(f.ModTime, day) {
				return ""
			}
		}
		return "no file before requested date"
	}
	return ""
}

// latestOf picks the entry with the maximum modification time. Ties are
// broken in favor of the earliest listed entry, which keeps repeated
// runs over an identical listing deterministic.
func latestOf(files []domain.RemoteEntry) domain.Selection {
	if len(files) == 0 {
		return domain.Selection{}
	}
	latest := files[0]
	for _, f := range files[1:] {
		if f.ModTime.After(latest.ModTime) {
			latest = f
		}
	}
	return domain.Selection{Name: latest.Name, ModTime: latest.ModTime, Found: true}
}

// sameLocalDate reports whether t falls on the given local calendar day.
func sameLocalDate(t, day time.Time) bool {
	y1, m1, d1 := t.Local().Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// beforeLocalDate reports whether t's local calendar day is strictly
// before the given day.
func beforeLocalDate(t, day time.Time) bool {
	y1, m1, d1 := t.Local().Date()
	y2, m2, d2 := day.Date()
	t1 := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return t1.Before(t2)
}

// lowerNonEmpty lower-cases the given strings, dropping empty ones.
func lowerNonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}

// hasAnyPrefix reports whether name starts with any of the lowered
// prefixes, case-insensitively.
func hasAnyPrefix(name string, lowered []string) bool {
	lowerName := strings.ToLower(name)
	for _, p := range lowered {
		if strings.HasPrefix(lowerName, p) {
			return true
		}
	}
	return false
}

// joinRemote joins a remote folder path and an entry name with a single
// forward slash, independent of the local OS separator.
func joinRemote(path, name string) string {
	return strings.TrimRight(path, "/") + "/" + name
}
