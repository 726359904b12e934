package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/localroute/types"
)

// State is a step of the per-call state machine. Nothing is persisted; the
// states exist for debug logging and tests.
type State string

const (
	StateStart            State = "START"
	StateClassified       State = "CLASSIFIED"
	StateRemoteDispatched State = "REMOTE_DISPATCHED"
	StateLocalFormatted   State = "LOCAL_FORMATTED"
	StateLocalInvoked     State = "LOCAL_INVOKED"
	StateLocalSynthesized State = "LOCAL_SYNTHESIZED"
	StateDone             State = "DONE"
)

func logState(ctx context.Context, logger *zap.Logger, s State, fields ...zap.Field) {
	if ce := logger.Check(zap.DebugLevel, "call state"); ce != nil {
		fields = append(fields, zap.String("state", string(s)))
		if id, ok := types.RequestID(ctx); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		ce.Write(fields...)
	}
}
