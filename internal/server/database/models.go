package database

import "time"

// Protection is one protected file. Rows are never updated or deleted.
type Protection struct {
	ID                  string
	FileName            string
	FileSize            int64
	MimeType            string
	StoragePath         string
	LegalHash           string
	ContentHash         string
	FloralHash          string
	BlockchainTx        string
	BlockchainTimestamp time.Time
	Chain               string
	BlockNumber         int64
	ExplorerURL         string
	PasswordHash        *string // nil when no password set
	CreatedAt           time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalProtections    int64
	SimulatedTimestamps int64
	TotalBytes          int64
}
