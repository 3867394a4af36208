package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/metadata"
)

// sanitizeExclude keeps only ASCII alphanumerics and the punctuation in
// sanitizePunctuation; fetch-errors applies it to each exclude substring
// before matching it against a row's msg and trace.
const sanitizePunctuation = "-_.: "

func sanitizeExclude(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune(sanitizePunctuation, r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *Dispatcher) handleRead(ctx context.Context, method string, body []byte) ([]byte, error) {
	switch method {
	case "get-steps":
		return d.handleGetSteps(ctx, body)
	case "step-count":
		return d.handleStepCount(ctx, body)
	case "fetch-errors":
		return d.handleFetchErrors(ctx, body)
	case "fetch-rows":
		return d.handleFetchRows(ctx, body)
	case "delete-steps":
		for _, st := range []metadata.Status{metadata.StatusQueued, metadata.StatusPending, metadata.StatusWorking, metadata.StatusSuccess, metadata.StatusError, metadata.StatusCancel} {
			rows, err := d.repo.SelectCandidates(ctx, nil, st, false, time.Now(), -1, false)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				if err := d.repo.Delete(ctx, row.ID); err != nil {
					return nil, err
				}
			}
		}
		return []byte(`"ok"`), nil
	default:
		return nil, fmt.Errorf("unknown read method %q", method)
	}
}

type getStepsOptions struct {
	Limit          int    `json:"limit"`
	ChunkSize      int    `json:"chunk_size"`
	Status         string `json:"status"`
	IncludeWorking *bool  `json:"include_working"`
	Reverse        bool   `json:"reverse"`
}

func (d *Dispatcher) handleGetSteps(ctx context.Context, body []byte) ([]byte, error) {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(body, &tuple); err != nil {
		return nil, fmt.Errorf("decode get-steps body: %w", err)
	}
	var scopes []string
	if err := json.Unmarshal(tuple[0], &scopes); err != nil {
		return nil, fmt.Errorf("decode get-steps scopes: %w", err)
	}
	opts := getStepsOptions{Limit: 1, Status: "pending"}
	if err := json.Unmarshal(tuple[1], &opts); err != nil {
		return nil, fmt.Errorf("decode get-steps options: %w", err)
	}
	status := metadata.Status(opts.Status)
	if opts.Status == "" {
		status = metadata.StatusPending
	}
	includeWorking := true
	if opts.IncludeWorking != nil {
		includeWorking = *opts.IncludeWorking
	}

	steps, err := d.sched.GetSteps(ctx, scopes, opts.Limit, status, includeWorking, opts.Reverse)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.ID)
	}
	return json.Marshal(ids)
}

func (d *Dispatcher) handleStepCount(ctx context.Context, body []byte) ([]byte, error) {
	var doc struct {
		Types string `json:"types"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode step-count body: %w", err)
	}
	counts, err := d.repo.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for status, count := range counts {
		if doc.Types != "*" && (status == metadata.StatusSuccess || status == metadata.StatusCancel) {
			continue
		}
		out[string(status)] = count
	}
	return json.Marshal(out)
}

func (d *Dispatcher) handleFetchErrors(ctx context.Context, body []byte) ([]byte, error) {
	var doc struct {
		Count   int             `json:"count"`
		Exclude json.RawMessage `json:"exclude"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode fetch-errors body: %w", err)
	}
	var excludes []string
	if len(doc.Exclude) > 0 && string(doc.Exclude) != "null" {
		var single string
		if err := json.Unmarshal(doc.Exclude, &single); err == nil {
			excludes = []string{single}
		} else {
			var many []string
			if err := json.Unmarshal(doc.Exclude, &many); err != nil {
				return nil, fmt.Errorf("decode fetch-errors exclude: %w", err)
			}
			excludes = many
		}
	}
	for i := range excludes {
		excludes[i] = strings.ToLower(sanitizeExclude(excludes[i]))
	}

	// Overfetch since exclude filtering may drop rows after the query.
	rows, err := d.repo.SelectCandidates(ctx, nil, metadata.StatusError, false, time.Now(), doc.Count*10, false)
	if err != nil {
		return nil, err
	}
	total := len(rows)

	type tableRow struct {
		ID         string           `json:"id"`
		Status     string           `json:"status"`
		Msg        string           `json:"msg"`
		Trace      string           `json:"trace"`
		Definition *blob.Definition `json:"definition,omitempty"`
	}
	table := make([]tableRow, 0, doc.Count)
	for _, row := range rows {
		if len(table) >= doc.Count {
			break
		}
		if excludeMatches(row.Msg, row.Trace, excludes) {
			continue
		}
		def, _ := blob.GetStepDefinition(ctx, d.store, row.ID)
		table = append(table, tableRow{
			ID:         row.ID,
			Status:     string(row.Status),
			Msg:        row.Msg,
			Trace:      row.Trace,
			Definition: def,
		})
	}

	return json.Marshal(map[string]interface{}{
		"total": total,
		"count": len(table),
		"table": table,
	})
}

func excludeMatches(msg, trace string, excludes []string) bool {
	lowerMsg := strings.ToLower(msg)
	lowerTrace := strings.ToLower(trace)
	for _, ex := range excludes {
		if ex == "" {
			continue
		}
		if strings.Contains(lowerMsg, ex) || strings.Contains(lowerTrace, ex) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) handleFetchRows(ctx context.Context, body []byte) ([]byte, error) {
	var doc struct {
		StepID string `json:"step_id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode fetch-rows body: %w", err)
	}
	ids := strings.Split(doc.StepID, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	rows, err := d.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	type outRow struct {
		ID       string          `json:"id"`
		Priority int             `json:"priority"`
		Scope    string          `json:"scope"`
		Tag      string          `json:"tag"`
		Status   string          `json:"status"`
		Epoch    int64           `json:"epoch"`
		Msg      string          `json:"msg"`
		Trace    string          `json:"trace"`
		Edges    json.RawMessage `json:"edges,omitempty"`
	}
	out := make([]outRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, outRow{
			ID: row.ID, Priority: row.Priority, Scope: row.Scope, Tag: row.Tag,
			Status: string(row.Status), Epoch: row.Epoch, Msg: row.Msg, Trace: row.Trace,
			Edges: json.RawMessage(row.Edges),
		})
	}
	return json.Marshal(out)
}
