package reconcile

import (
	"fmt"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// Replace builds a full-replace batch for a container: delete_all, then
// insert_all of the desired associations tagged with status. The insert is
// omitted when desired is empty. There is no diffing; the desired set is
// always fully known by the caller and containers are small.
//
// Every returned row carries containerID and status regardless of what the
// caller put in desired. Payload maps are copied.
func Replace(containerID string, desired []types.Association, status types.Status) (types.OperationBatch, error) {
	if containerID == "" {
		return types.OperationBatch{}, types.ErrInvalidID
	}
	if err := status.Validate(); err != nil {
		return types.OperationBatch{}, err
	}

	rows := make([]types.Association, 0, len(desired))
	subjects := make(map[string]bool, len(desired))
	for _, a := range desired {
		if a.SubjectID == "" {
			return types.OperationBatch{}, fmt.Errorf("association without subject: %w", types.ErrInvalidID)
		}
		if subjects[a.SubjectID] {
			return types.OperationBatch{}, fmt.Errorf("subject %s: %w", a.SubjectID, types.ErrDuplicateSubject)
		}
		subjects[a.SubjectID] = true
		if err := a.ValidatePayload(); err != nil {
			return types.OperationBatch{}, fmt.Errorf("subject %s: %w", a.SubjectID, err)
		}

		row := a
		row.ContainerID = containerID
		row.Status = status
		if a.Payload != nil {
			row.Payload = make(map[string]any, len(a.Payload))
			for k, v := range a.Payload {
				row.Payload[k] = v
			}
		}
		rows = append(rows, row)
	}

	batch := types.OperationBatch{
		ContainerID: containerID,
		DeleteAll:   &types.Operation{Kind: types.OpDeleteAll, Target: containerID},
	}
	if len(rows) > 0 {
		batch.InsertAll = &types.Operation{Kind: types.OpInsertAll, Target: containerID, Associations: rows}
	}
	return batch, nil
}
