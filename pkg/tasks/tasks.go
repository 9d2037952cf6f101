// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// PageVectorizeTask represents the data structure for a page vectorization job.
// The page snapshot has already been written to object storage by the time
// the task is produced; ObjectKey points at it.
type PageVectorizeTask struct {
	SourceHash string `json:"source_hash"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	ObjectKey  string `json:"object_key"`
	UserID     uint   `json:"user_id"`
}
