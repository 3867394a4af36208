package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/executor"
	"github.com/daniel-olson-code/buelon/internal/metadata"
)

// applyMutation decodes a transaction-queue entry's body per its method's
// documented encoding and applies it through the executor. Every branch
// here corresponds to one row of the state-machine executor's transition
// table.
func applyMutation(ctx context.Context, exec *executor.Executor, method string, body []byte) error {
	switch method {
	case "done":
		return exec.Done(ctx, string(body))
	case "pending":
		return exec.Pending(ctx, string(body))
	case "cancel":
		return exec.Cancel(ctx, string(body))
	case "reset":
		return exec.Reset(ctx, string(body))
	case "error":
		var doc struct {
			StepID string `json:"step_id"`
			Msg    string `json:"msg"`
			Trace  string `json:"trace"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode error body: %w", err)
		}
		return exec.Error(ctx, doc.StepID, doc.Msg, doc.Trace)
	case "upload-step":
		def, status, err := decodeUploadStep(body)
		if err != nil {
			return err
		}
		if err := blob.PutStepDefinition(ctx, exec.Store(), def); err != nil {
			return fmt.Errorf("persist step definition: %w", err)
		}
		return exec.UploadStep(ctx, def, status)
	case "upload-steps":
		var tuple [2]json.RawMessage
		if err := json.Unmarshal(body, &tuple); err != nil {
			return fmt.Errorf("decode upload-steps body: %w", err)
		}
		var defs []*blob.Definition
		var statuses []int
		if err := json.Unmarshal(tuple[0], &defs); err != nil {
			return fmt.Errorf("decode upload-steps definitions: %w", err)
		}
		if err := json.Unmarshal(tuple[1], &statuses); err != nil {
			return fmt.Errorf("decode upload-steps statuses: %w", err)
		}
		if len(defs) != len(statuses) {
			return fmt.Errorf("upload-steps: %d definitions but %d statuses", len(defs), len(statuses))
		}
		for i, def := range defs {
			status, ok := metadata.StatusFromInt(statuses[i])
			if !ok {
				return fmt.Errorf("upload-steps: unknown status int %d for step %q", statuses[i], def.ID)
			}
			if err := blob.PutStepDefinition(ctx, exec.Store(), def); err != nil {
				return fmt.Errorf("persist step definition %q: %w", def.ID, err)
			}
			if err := exec.UploadStep(ctx, def, status); err != nil {
				return fmt.Errorf("upload step %q: %w", def.ID, err)
			}
		}
		return nil
	case "reset-errors":
		includeWorking := string(body) == "true"
		_, err := exec.ResetErrors(ctx, nil, includeWorking)
		return err
	default:
		return fmt.Errorf("unknown mutating method %q", method)
	}
}

func decodeUploadStep(body []byte) (*blob.Definition, metadata.Status, error) {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(body, &tuple); err != nil {
		return nil, "", fmt.Errorf("decode upload-step body: %w", err)
	}
	var def blob.Definition
	if err := json.Unmarshal(tuple[0], &def); err != nil {
		return nil, "", fmt.Errorf("decode upload-step definition: %w", err)
	}
	var statusInt int
	if err := json.Unmarshal(tuple[1], &statusInt); err != nil {
		return nil, "", fmt.Errorf("decode upload-step status: %w", err)
	}
	status, ok := metadata.StatusFromInt(statusInt)
	if !ok {
		return nil, "", fmt.Errorf("unknown status int %d", statusInt)
	}
	return &def, status, nil
}
