// Package revalidation defines the content-change notification model
// delivered by the external store's webhook.
package revalidation

// Notification is the body of a store change webhook. Field names follow the
// store's document envelope.
type Notification struct {
	Type string `json:"_type"`
	ID   string `json:"_id"`
	Slug *Slug  `json:"slug,omitempty"`
	Rev  string `json:"_rev,omitempty"`
}

// Slug carries the document's current slug, when the changed kind has one.
type Slug struct {
	Current string `json:"current"`
}

// RepairResult is the outcome of patching one dependent record during the
// subject-link repair pass. Err is empty on success.
type RepairResult struct {
	RecordID string `json:"recordId"`
	Err      string `json:"error,omitempty"`
}

// RepairReport aggregates a best-effort repair pass. Failures never abort the
// pass; each dependent record is patched independently.
type RepairReport struct {
	ID      string         `json:"id"`
	Subject string         `json:"subjectId"`
	NewSlug string         `json:"newSlug"`
	Patched int            `json:"patched"`
	Failed  int            `json:"failed"`
	Results []RepairResult `json:"results,omitempty"`
}

// Add records one dependent-record outcome.
func (r *RepairReport) Add(recordID string, err error) {
	res := RepairResult{RecordID: recordID}
	if err != nil {
		res.Err = err.Error()
		r.Failed++
	} else {
		r.Patched++
	}
	r.Results = append(r.Results, res)
}
