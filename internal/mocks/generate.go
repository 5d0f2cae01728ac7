// Package mocks provides gomock implementations of the core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockBlobStore(ctrl)
//	store.EXPECT().Copy(gomock.Any(), "q-bucket", "eicar.txt", "dmz-bucket").Return(nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=blob_store_mock.go github.com/target/quarantine-scanner/internal/core BlobStore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=process_runner_mock.go github.com/target/quarantine-scanner/internal/core ProcessRunner
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=publisher_mock.go github.com/target/quarantine-scanner/internal/core Publisher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=batch_source_mock.go github.com/target/quarantine-scanner/internal/core BatchSource
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=scan_ledger_mock.go github.com/target/quarantine-scanner/internal/core ScanLedger
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ledger_reaper_repository_mock.go github.com/target/quarantine-scanner/internal/core LedgerReaperRepository
