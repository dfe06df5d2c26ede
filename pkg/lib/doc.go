// Package lib provides a Go SDK to ingest data wrappers programmatically.
//
// It runs the same flow as the wrapperctl CLI without shelling out to it:
// upload or describe the source, request the wrapper generation, follow its
// status and attach the generated resource to its indicator. Every submission
// is journaled in a local SQLite database so interrupted ones can be finished
// later with [Client.Reconcile].
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{BackendURL: "https://wrappers.example.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Submit(ctx, lib.SubmitOpts{
//	    Name:        "CO2 emissions",
//	    IndicatorID: "ind-1",
//	    API: &lib.APISource{
//	        Location: "https://data.example.com/co2",
//	        AuthType: lib.AuthTypeBearer,
//	        Credentials: token,
//	    },
//	})
//
// # Editing resources
//
// Use [SubmitModeEdit] with the resource being replaced. The new resource is
// linked before the old one is unlinked and deleted, so the indicator is never
// left without data:
//
//	client.Submit(ctx, lib.SubmitOpts{
//	    Mode:               lib.SubmitModeEdit,
//	    IndicatorID:        "ind-1",
//	    PreviousResourceID: "res-0",
//	    File:               &lib.FileSource{Name: "co2.csv", Reader: f},
//	})
//
// # Errors
//
// Errors can be checked with [errors.Is] against [ErrNotFound], [ErrNotValid],
// [ErrAlreadyExists], [ErrUpload] and [ErrGenerate]. Failed generations are
// returned as [*JobError] and failed resource updates as [*RelinkError], use
// [errors.As] to get them.
//
// # Testing
//
// Set [Config].Backend to [BackendFake] to run against an in-memory backend
// that simulates the generation jobs.
package lib
