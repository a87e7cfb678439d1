package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftpaudit/pkg/contracts/domain"
)

// fakeSession wraps a fakeLister with close tracking.
type fakeSession struct {
	fakeLister
	closed bool
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeDialer hands out one session per account, or a dial error.
type fakeDialer struct {
	sessions map[string]*fakeSession
	dialErrs map[string]error
	dialed   []string
}

func (d *fakeDialer) Dial(account domain.Account) (Session, error) {
	d.dialed = append(d.dialed, account.Name)
	if err, ok := d.dialErrs[account.Name]; ok {
		return nil, err
	}
	return d.sessions[account.Name], nil
}

func testAccount(name string, folders ...domain.Folder) domain.Account {
	return domain.Account{
		Name:     name,
		Host:     "sftp.example.com",
		Port:     22,
		Username: "user",
		Password: "secret",
		Folders:  folders,
	}
}

func TestCollectLatestFile(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/Dryyve/Processed Bookings/Italy": {
			file("old.csv", localTime(2025, time.October, 12, 8, 0)),
			file("new.csv", localTime(2025, time.October, 14, 9, 30)),
		},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP", domain.Folder{Label: "Dryyve Italy Booking", Path: "/Dryyve/Processed Bookings/Italy"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{
		AccountFilter: "Wheels FTP",
		FolderFilter:  "Dryyve Italy Booking",
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "Wheels FTP", rows[0].Account)
	assert.Equal(t, "Dryyve Italy Booking", rows[0].Folder)
	assert.Equal(t, "new.csv", rows[0].FileName)
	assert.Equal(t, "10/14/2025 09:30:00", rows[0].FileDate)
	assert.True(t, session.closed, "session must be closed after the account is processed")
}

func TestCollectEmptyFolder(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP", domain.Folder{Label: "Bookings", Path: "/bookings"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{})

	require.Len(t, rows, 1)
	assert.Equal(t, domain.PlaceholderNone, rows[0].FileName)
	assert.Equal(t, "No file found (empty folder)", rows[0].FileDate)
	assert.False(t, rows[0].IsError(), "not-found is not an error condition")
}

func TestCollectFolderExcludedByFilter(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/inventory": {file("inv.csv", localTime(2025, time.October, 14, 8, 0))},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP", domain.Folder{Label: "Dryyve Italy Inventory", Path: "/inventory"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{FolderFilter: "Dryyve Italy Booking"})

	require.Len(t, rows, 1)
	assert.Equal(t, domain.MarkerFolderNotSet, rows[0].FileDate)
	assert.True(t, rows[0].IsError())
	assert.Empty(t, session.calls, "no remote listing call may be made for an excluded folder")
	assert.True(t, session.closed)
}

func TestCollectConnectionFailureFansOutPerFolder(t *testing.T) {
	goodSession := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/data": {file("ok.csv", localTime(2025, time.October, 14, 8, 0))},
	}}}
	dialer := &fakeDialer{
		sessions: map[string]*fakeSession{"Beta": goodSession},
		dialErrs: map[string]error{"Alpha": fmt.Errorf("auth failed")},
	}
	collector := NewCollector([]domain.Account{
		testAccount("Alpha",
			domain.Folder{Label: "Bookings", Path: "/bookings"},
			domain.Folder{Label: "Inventory", Path: "/inventory"},
		),
		testAccount("Beta", domain.Folder{Label: "Data", Path: "/data"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{})

	require.Len(t, rows, 3)
	assert.Equal(t, "Alpha", rows[0].Account)
	assert.Equal(t, "Bookings", rows[0].Folder)
	assert.Equal(t, "Connection error: auth failed", rows[0].FileDate)
	assert.Equal(t, "Inventory", rows[1].Folder)
	assert.Equal(t, "Connection error: auth failed", rows[1].FileDate)
	assert.True(t, rows[0].IsError())

	// The failure of Alpha must not abort Beta.
	assert.Equal(t, "Beta", rows[2].Account)
	assert.Equal(t, "ok.csv", rows[2].FileName)
	assert.Equal(t, []string{"Alpha", "Beta"}, dialer.dialed)
}

func TestCollectListingErrorProducesErrorRow(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{
		listings: map[string][]domain.RemoteEntry{
			"/ok": {file("fine.csv", localTime(2025, time.October, 14, 8, 0))},
		},
		errs: map[string]error{"/broken": fmt.Errorf("permission denied")},
	}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP",
			domain.Folder{Label: "Broken", Path: "/broken"},
			domain.Folder{Label: "Fine", Path: "/ok"},
		),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{})

	require.Len(t, rows, 2)
	assert.Equal(t, "Error: permission denied", rows[0].FileDate)
	assert.True(t, rows[0].IsError())
	assert.Equal(t, "fine.csv", rows[1].FileName, "a folder failure must not abort the remaining folders")
}

func TestCollectSkipList(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/data": {file("ok.csv", localTime(2025, time.October, 14, 8, 0))},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Keeper": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wizard", domain.Folder{Label: "Data", Path: "/data"}),
		testAccount("Keeper", domain.Folder{Label: "Data", Path: "/data"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{SkipAccounts: []string{"Wizard"}})

	require.Len(t, rows, 1)
	assert.Equal(t, "Keeper", rows[0].Account)
	assert.Equal(t, []string{"Keeper"}, dialer.dialed, "skipped accounts must not be dialed")
}

func TestCollectTodayOnlyWithFallback(t *testing.T) {
	day := localTime(2025, time.October, 14, 0, 0)
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/data": {file("stale.csv", localTime(2025, time.October, 10, 8, 0))},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP", domain.Folder{Label: "Data", Path: "/data"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{TodayOnly: true, OnDate: &day})

	require.Len(t, rows, 1)
	assert.Equal(t, "stale.csv", rows[0].FileName,
		"a date miss falls back to the latest available file")
	assert.Equal(t, "10/10/2025 08:00:00", rows[0].FileDate)
}

func TestCollectPreviousDay(t *testing.T) {
	day := localTime(2025, time.October, 14, 0, 0)
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/data": {
			file("yesterday.csv", localTime(2025, time.October, 13, 8, 0)),
			file("today.csv", localTime(2025, time.October, 14, 8, 0)),
		},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP", domain.Folder{Label: "Data", Path: "/data"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{PreviousDay: true, OnDate: &day})

	require.Len(t, rows, 1)
	assert.Equal(t, "yesterday.csv", rows[0].FileName)
}

func TestCollectPerPrefixRows(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/Woodford/RAReporting": {
			dir("RevAI_Fleet"),
			dir("RevAI_RentalAgreements"),
		},
		"/Woodford/RAReporting/RevAI_Fleet": {
			file("fleet.csv", localTime(2025, time.October, 14, 8, 0)),
		},
		"/Woodford/RAReporting/RevAI_RentalAgreements": {
			file("ra.csv", localTime(2025, time.October, 13, 8, 0)),
		},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Woodford": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Woodford", domain.Folder{
			Label:   "RAReporting",
			Path:    "/Woodford/RAReporting",
			Filters: []string{"RevAI_Fleet", "RevAI_RentalAgreements"},
		}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{})

	require.Len(t, rows, 2)
	assert.Equal(t, "RAReporting - revai_fleet", rows[0].Folder)
	assert.Equal(t, "fleet.csv", rows[0].FileName)
	assert.Equal(t, "RAReporting - revai_rentalagreements", rows[1].Folder)
	assert.Equal(t, "ra.csv", rows[1].FileName)
}

func TestCollectPerPrefixNotFound(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/drop": {file("unrelated.csv", localTime(2025, time.October, 14, 8, 0))},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Woodford": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Woodford", domain.Folder{Label: "Drop", Path: "/drop", Filters: []string{"Inventory"}}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{})

	require.Len(t, rows, 1)
	assert.Equal(t, "Drop - inventory", rows[0].Folder)
	assert.Equal(t, domain.PlaceholderNone, rows[0].FileName)
	assert.Equal(t, domain.PlaceholderNoFile, rows[0].FileDate)
}

func TestCollectAccountFilter(t *testing.T) {
	session := &fakeSession{fakeLister: fakeLister{listings: map[string][]domain.RemoteEntry{
		"/data": {file("ok.csv", localTime(2025, time.October, 14, 8, 0))},
	}}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"Wheels FTP": session}}
	collector := NewCollector([]domain.Account{
		testAccount("Wheels FTP", domain.Folder{Label: "Data", Path: "/data"}),
		testAccount("Other", domain.Folder{Label: "Data", Path: "/data"}),
	}, dialer, nil)

	rows := collector.Collect(context.Background(), Options{AccountFilter: "wheels"})

	require.Len(t, rows, 1)
	assert.Equal(t, "Wheels FTP", rows[0].Account)
	assert.Equal(t, []string{"Wheels FTP"}, dialer.dialed)
}
