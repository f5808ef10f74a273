package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
)

// HandlePublishPostTask hands a due post to the publish coordinator. The
// coordinator's compare-and-swap on the pending status makes this safe to
// race with the poll loop: whichever picks the post up first wins, the other
// sees a no-op.
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if _, err := q.ps.ProcessPost(ctx, payload.PostID); err != nil {
		log.Printf("Error publishing post %d from queue: %v", payload.PostID, err)
		return err
	}

	return nil
}
