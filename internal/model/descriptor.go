package model

// ResourceDescriptor is an operator written description of a resource to
// ingest, it holds the same data the resource wizard collects.
type ResourceDescriptor struct {
	Name               string
	Description        string
	IndicatorID        string
	Mode               SubmitMode
	PreviousResourceID string
	SourceKind         SourceKind
	// FilePath is the local file to upload for file sources.
	FilePath string
	// API is the API source configuration for API sources.
	API *APISource
}
