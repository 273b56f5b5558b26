package worker

import (
	"context"
	"time"
)

// ShouldAck exposes shouldAck for tests.
var ShouldAck = shouldAck

// HandleMessage runs data through the Pub/Sub message path of a handler
// built around jobs and reports whether it would be acked.
func HandleMessage(ctx context.Context, jobs *JobHandler, data []byte) bool {
	h := &PubSubHandler{jobs: jobs, logger: jobs.logger}
	return h.handleMessage(ctx, "msg-1", time.Unix(0, 0), data)
}
