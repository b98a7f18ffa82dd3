// Package backend provides model-backend implementations for the
// generation engine. The transformer forward pass runs out of process;
// this side only moves token ids and logits.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/theawakener0/oxide/internal/logger"
)

// tokenSchema is the request layout: one int32 row per token id.
var tokenSchema = arrow.NewSchema([]arrow.Field{
	{Name: "token", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// stepMeta rides along each request batch as app metadata.
type stepMeta struct {
	Pos   int  `json:"pos"`
	Reset bool `json:"reset,omitempty"`
}

// Flight talks to a model server over an Arrow Flight DoExchange
// stream: each Forward writes one record batch of token ids and reads
// back one batch of logits. The server owns the weights and KV cache;
// Reset asks it to drop the cached context.
type Flight struct {
	mu sync.Mutex

	client flight.Client
	stream flight.FlightService_DoExchangeClient
	writer *flight.Writer
	reader *flight.Reader

	vocabSize int
	eosID     int
	log       *logger.Logger
}

// DialFlight connects to addr and opens the exchange stream. vocabSize
// and eosID come from the model file's metadata.
func DialFlight(ctx context.Context, addr string, vocabSize, eosID int) (*Flight, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("backend: connect %s: %w", addr, err)
	}

	stream, err := client.DoExchange(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("backend: open exchange: %w", err)
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(tokenSchema))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  []byte("generate"),
	})

	return &Flight{
		client:    client,
		stream:    stream,
		writer:    writer,
		vocabSize: vocabSize,
		eosID:     eosID,
		log:       logger.Log.With("backend"),
	}, nil
}

func (f *Flight) VocabSize() int  { return f.vocabSize }
func (f *Flight) EOSTokenID() int { return f.eosID }

// Forward streams tokens to the server and returns the next-token
// logits it answers with.
func (f *Flight) Forward(ctx context.Context, tokens []int, pos int) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := tokenRecord(tokens)
	defer rec.Release()
	meta, err := json.Marshal(stepMeta{Pos: pos})
	if err != nil {
		return nil, fmt.Errorf("backend: marshal step metadata: %w", err)
	}
	if err := f.writer.WriteWithAppMetadata(rec, meta); err != nil {
		return nil, fmt.Errorf("backend: write %d tokens at pos %d: %w", len(tokens), pos, err)
	}

	if f.reader == nil {
		r, err := flight.NewRecordReader(f.stream)
		if err != nil {
			return nil, fmt.Errorf("backend: open result stream: %w", err)
		}
		f.reader = r
	}
	if !f.reader.Next() {
		if err := f.reader.Err(); err != nil {
			return nil, fmt.Errorf("backend: read logits: %w", err)
		}
		return nil, fmt.Errorf("backend: server closed the stream")
	}

	logits, err := logitsFromRecord(f.reader.Record())
	if err != nil {
		return nil, err
	}
	if f.vocabSize > 0 && len(logits) != f.vocabSize {
		return nil, fmt.Errorf("backend: got %d logits, want vocab size %d", len(logits), f.vocabSize)
	}
	return logits, nil
}

// Reset tells the server to discard its cached context. Best effort: a
// dead stream surfaces on the next Forward instead.
func (f *Flight) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := tokenRecord(nil)
	defer rec.Release()
	meta, _ := json.Marshal(stepMeta{Reset: true})
	if err := f.writer.WriteWithAppMetadata(rec, meta); err != nil {
		f.log.Warn("context reset failed", "error", err.Error())
	}
}

// Close tears down the stream and connection.
func (f *Flight) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	if f.writer != nil {
		if err := f.writer.Close(); err != nil {
			firstErr = err
		}
	}
	if f.stream != nil {
		if err := f.stream.CloseSend(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if f.client != nil {
		if err := f.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// tokenRecord builds a one-column record of token ids.
func tokenRecord(tokens []int) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, tokenSchema)
	defer b.Release()

	ints := b.Field(0).(*array.Int32Builder)
	ints.Reserve(len(tokens))
	for _, t := range tokens {
		ints.Append(int32(t))
	}
	return b.NewRecord()
}

// logitsFromRecord extracts the float32 logits column from a response
// batch.
func logitsFromRecord(rec arrow.Record) ([]float32, error) {
	if rec.NumCols() < 1 {
		return nil, fmt.Errorf("backend: response batch has no columns")
	}
	col, ok := rec.Column(0).(*array.Float32)
	if !ok {
		return nil, fmt.Errorf("backend: response column is %s, want float32", rec.Column(0).DataType())
	}
	out := make([]float32, col.Len())
	copy(out, col.Float32Values())
	return out, nil
}
