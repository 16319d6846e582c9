package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"housing-chat/infrastructure/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	// chat: and msg: hold the records, the other prefixes are indexes
	prefix := flag.String("prefix", "chat:", "Prefix to scan (chat:, msg:, pair:, member:, msgid:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	records, err := storage.ScanRecords(db, *prefix)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, rec := range records {
		at := "--:--:--"
		if !rec.At.IsZero() {
			at = rec.At.Format("2006-01-02 15:04:05")
		}
		// First 8 characters are enough to tell ids apart
		displayID := rec.ID
		if len(displayID) > 8 {
			displayID = displayID[:8]
		}
		table.Append([]string{rec.Key, rec.Kind, at, displayID, rec.Detail})
	}
	table.Render()
	fmt.Printf("%d record(s) under %q\n", len(records), *prefix)
}

// openDB opens the store read-only so it can run next to a live server.
func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		return nil, fmt.Errorf("store needs recovery, stop the server and open it once in write mode: %w", err)
	}
	return db, err
}
