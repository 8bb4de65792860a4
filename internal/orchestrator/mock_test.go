package orchestrator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/pkg/backend"
)

// mockBackend is a test double for backend.Client.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Call(ctx context.Context, req backend.Request) (*backend.Response, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*backend.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

// reqWithPurpose matches any request asking for the given purpose.
func reqWithPurpose(purpose model.PassPurpose) interface{} {
	return mock.MatchedBy(func(req backend.Request) bool {
		return req.Purpose == purpose
	})
}

// reqWithTrade matches an extraction request scoped to the given trade.
func reqWithTrade(trade string) interface{} {
	return mock.MatchedBy(func(req backend.Request) bool {
		return req.Purpose == model.PurposeInitialExtraction && req.Trade == trade
	})
}
