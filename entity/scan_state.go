package entity

type ScanStateItem struct {
	BasePath  string `json:"base_path"`
	DirPath   string `json:"dir_path"`
	MtimeMs   int64  `json:"mtime_ms"`
	ScannedAt int64  `json:"scanned_at"`
}

// ScanResult aggregates the counters of one base-path scan.
type ScanResult struct {
	Scanned    int64 `json:"scanned"`
	Skipped    int64 `json:"skipped"`
	Added      int64 `json:"added"`
	Moved      int64 `json:"moved"`
	Removed    int64 `json:"removed"`
	DurationMs int64 `json:"durationMs"`
}

func (r *ScanResult) Merge(o *ScanResult) {
	r.Scanned += o.Scanned
	r.Skipped += o.Skipped
	r.Added += o.Added
	r.Moved += o.Moved
	r.Removed += o.Removed
	r.DurationMs += o.DurationMs
}
