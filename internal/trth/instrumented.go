package trth

import (
	"context"
	"io"

	"github.com/plugaai/trth_downloader/internal/telemetry"
)

const clientType = "trth"

// InstrumentedClient wraps a ResultClient with telemetry.
type InstrumentedClient struct {
	client    ResultClient
	telemetry *telemetry.Telemetry
}

func NewInstrumentedClient(client ResultClient, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{client: client, telemetry: tel}
}

func (c *InstrumentedClient) ListResults(ctx context.Context) ([]byte, error) {
	var result []byte

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "list_results", func(ctx context.Context) error {
		var err error

		result, err = c.client.ListResults(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// OpenFile only measures opening the stream; bytes read afterwards are
// accounted by the downloader.
func (c *InstrumentedClient) OpenFile(ctx context.Context, name string) (io.ReadCloser, error) {
	var result io.ReadCloser

	err := c.telemetry.InstrumentClientOperation(ctx, clientType, "open_file", func(ctx context.Context) error {
		var err error

		result, err = c.client.OpenFile(ctx, name)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// InstrumentedCanceller wraps a RequestCanceller with telemetry.
type InstrumentedCanceller struct {
	canceller RequestCanceller
	telemetry *telemetry.Telemetry
}

func NewInstrumentedCanceller(canceller RequestCanceller, tel *telemetry.Telemetry) *InstrumentedCanceller {
	return &InstrumentedCanceller{canceller: canceller, telemetry: tel}
}

func (c *InstrumentedCanceller) CancelRequest(ctx context.Context, requestID string) error {
	return c.telemetry.InstrumentClientOperation(ctx, clientType, "cancel_request", func(ctx context.Context) error {
		return c.canceller.CancelRequest(ctx, requestID)
	})
}
