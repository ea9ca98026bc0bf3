package run

// Classification labels how a run reached its terminal state.
type Classification string

const (
	ClassificationSuccess            Classification = "success"
	ClassificationCancelledRedundant Classification = "cancelled_redundant"
	ClassificationDownloadError      Classification = "download_error"
	ClassificationTimeout            Classification = "timeout"
)
