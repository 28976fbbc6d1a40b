// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// recordResult is the outcome of reconciling one record
type recordResult struct {
	ID     string
	Synced bool
	Err    *RecordError
}

// resultSynced marks a record as persisted (fresh insert or idempotent duplicate)
func resultSynced(id string) recordResult {
	return recordResult{ID: id, Synced: true}
}

// resultBadRecord marks a record that failed validation
func resultBadRecord(id string, err error) recordResult {
	return recordResult{ID: id, Err: &RecordError{
		ID:     id,
		Error:  err.Error(),
		Reason: ReasonBadRecord,
	}}
}

// resultPersistFailed marks a record the store could not write
func resultPersistFailed(id string, err error) recordResult {
	return recordResult{ID: id, Err: &RecordError{
		ID:     id,
		Error:  err.Error(),
		Reason: ReasonPersistFailed,
	}}
}

// buildSyncResponse folds per-record results into a response, keeping input order
func buildSyncResponse(results []recordResult) *SyncResponse {
	resp := &SyncResponse{
		SyncedIDs: make([]string, 0, len(results)),
		Errors:    []RecordError{},
	}
	for _, r := range results {
		if r.Synced {
			resp.SyncedIDs = append(resp.SyncedIDs, r.ID)
			continue
		}
		if r.Err != nil {
			resp.Errors = append(resp.Errors, *r.Err)
		}
	}
	return resp
}
