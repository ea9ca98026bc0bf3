package downloader

// indexDocument is the package catalog published by the distribution
// server. Full-day packages carry hour -1, increments the publication hour.
type indexDocument struct {
	GeneratedAt string         `json:"generated_at"`
	Packages    []indexPackage `json:"packages"`
}

type indexPackage struct {
	ID     string `json:"id"`
	Day    string `json:"day"`
	Hour   int    `json:"hour"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	Path   string `json:"path"`
}
