package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/netframe/coreengine/internal/bundle"
	"github.com/netframe/coreengine/internal/codec"
	"github.com/netframe/coreengine/internal/metrics"
	"github.com/netframe/coreengine/internal/pool"
	"github.com/netframe/coreengine/internal/protocol"
)

// reactorLoop is the pipeline's single I/O-reactor job (§5: "the async
// socket I/O is driven on a single LongTerm worker"). It owns the only
// blocking read on the socket; everything downstream of a successfully
// framed payload is handed to the pool as a separate, sequence-numbered
// job so CPU-bound decompress/decrypt/dispatch work runs off this
// goroutine without losing the per-pipeline delivery order §8 requires.
func (p *Pipeline) reactorLoop() (bool, error) {
	reader := codec.NewFrameReader(p.conn, p.opts.StartCode, p.opts.EndCode, p.opts.BufferSize)
	for {
		raw, err := reader.ReadFrame()
		if err != nil {
			wasExpired := p.Condition() == ConditionExpired
			if !wasExpired {
				p.terminate(false)
			}
			if wasExpired || errors.Is(err, io.EOF) {
				// A locally-initiated Stop/terminate races the reactor's
				// blocked read; the resulting "closed connection" error
				// is expected teardown, not a transport failure.
				return true, nil
			}
			return false, fmt.Errorf("pipeline: reactor read: %w", err)
		}
		metrics.FramesCounter.WithLabelValues("inbound", "frame").Inc()
		metrics.BytesCounter.WithLabelValues("inbound").Add(float64(len(raw)))

		seq := p.inboundSeq.Inc() - 1
		payload := raw
		_, err = p.jobs.Push(pool.Job{
			Priority: pool.Normal,
			Work: func() (bool, error) {
				p.processInbound(seq, payload)
				return true, nil
			},
		})
		if err != nil {
			p.logger.Error("pipeline: failed to enqueue inbound frame: %v", err)
		}
		if p.Condition() == ConditionExpired {
			return true, nil
		}
	}
}

// processInbound performs decompress -> optional decrypt -> mode split,
// then hands the frame to deliver for in-order dispatch.
func (p *Pipeline) processInbound(seq uint64, raw []byte) {
	body, err := codec.Decompress(raw)
	if err != nil {
		p.logger.Error("pipeline: decompress failed, dropping frame: %v", err)
		p.deliver(seq, nil)
		return
	}
	if p.opts.EncryptMode && p.hasSessionKey() {
		key, iv := p.sessionKey()
		plain, err := codec.DecryptCBC(key, iv, body)
		if err != nil {
			p.logger.Error("pipeline: decrypt failed, dropping frame: %v", err)
			p.deliver(seq, nil)
			return
		}
		body = plain
	}
	if len(body) == 0 {
		p.deliver(seq, nil)
		return
	}
	mode := protocol.Mode(body[0])
	inner := body[1:]

	ev := p.dispatchByMode(mode, inner)
	p.deliver(seq, ev)
}

func (p *Pipeline) dispatchByMode(mode protocol.Mode, inner []byte) *Event {
	switch mode {
	case protocol.ModeConnection:
		p.handleHandshakeFrame(inner)
		return nil
	case protocol.ModeMessage:
		if p.Condition() != ConditionConfirmed {
			p.terminate(false)
			return nil
		}
		return &Event{Kind: EventMessage, ID: p.ID(), SubID: p.SubID(), Message: string(inner)}
	case protocol.ModeBinary:
		if p.Condition() != ConditionConfirmed {
			p.terminate(false)
			return nil
		}
		msg, data, err := protocol.DecodeBinary(inner)
		if err != nil {
			p.logger.Error("pipeline: malformed binary payload: %v", err)
			return nil
		}
		return &Event{Kind: EventBinary, ID: p.ID(), SubID: p.SubID(), BinaryMessage: msg, BinaryData: data}
	case protocol.ModeFile:
		if p.Condition() != ConditionConfirmed {
			p.terminate(false)
			return nil
		}
		p.handleFileFrame(inner)
		return nil
	default:
		p.logger.Warn("pipeline: unknown mode byte %d, dropping frame", mode)
		return nil
	}
}

// deliver buffers a completed dispatch by its frame sequence number and
// flushes any contiguous run starting at the next expected sequence, so
// Handler.OnDispatch calls happen in frame-arrival order even though
// decompress/decrypt ran concurrently across pool workers.
func (p *Pipeline) deliver(seq uint64, ev *Event) {
	p.dispatchMu.Lock()
	p.pending[seq] = ev
	for {
		next, ok := p.pending[p.nextDispatch]
		if !ok {
			break
		}
		delete(p.pending, p.nextDispatch)
		p.nextDispatch++
		if next != nil && p.handler != nil {
			p.dispatchMu.Unlock()
			p.handler.OnDispatch(*next)
			p.dispatchMu.Lock()
		}
	}
	p.dispatchMu.Unlock()
}

func (p *Pipeline) handleFileFrame(inner []byte) {
	guid, tag, rest, err := protocol.DecodeFileHeader(inner)
	if err != nil {
		p.logger.Error("pipeline: malformed file header: %v", err)
		return
	}
	switch tag {
	case protocol.FileStart:
		count, err := protocol.DecodeFileStartCount(rest)
		if err != nil {
			p.logger.Error("pipeline: malformed file start: %v", err)
			return
		}
		if err := p.bundles.Start(guid, count); err != nil {
			p.logger.Error("pipeline: bundle start: %v", err)
		}
	case protocol.FileFailure:
		_, msg, err := protocol.DecodeFileFailureBody(rest)
		if err != nil {
			p.logger.Error("pipeline: malformed file failure: %v", err)
			return
		}
		if err := p.bundles.Failure(guid, msg); err != nil {
			p.logger.Error("pipeline: bundle failure: %v", err)
		}
	case protocol.FileSuccess:
		_, msg, fileBytes, err := protocol.DecodeFileSuccessBody(rest)
		if err != nil {
			p.logger.Error("pipeline: malformed file success: %v", err)
			return
		}
		path, err := p.persistReceivedFile(guid, fileBytes)
		if err != nil {
			p.logger.Error("pipeline: persisting received file: %v", err)
			if err := p.bundles.Failure(guid, "failed to persist received file"); err != nil {
				p.logger.Error("pipeline: bundle failure: %v", err)
			}
			return
		}
		if err := p.bundles.Success(guid, msg, path); err != nil {
			p.logger.Error("pipeline: bundle success: %v", err)
		}
	default:
		p.logger.Warn("pipeline: unknown file sub-tag %d", tag)
	}
}

func (p *Pipeline) onBundleComplete(result bundle.Result) {
	if p.handler == nil {
		return
	}
	p.handler.OnDispatch(Event{Kind: EventFiles, ID: p.ID(), SubID: p.SubID(), Bundle: result})
}

func (p *Pipeline) handleHandshakeFrame(payload []byte) {
	if p.Condition() != ConditionWaiting {
		// A Connection frame outside Waiting is unexpected but harmless
		// to ignore; only Binary/Message/File force Expired per §4.C.
		p.logger.Warn("pipeline: unexpected handshake frame in condition %s", p.Condition())
		return
	}
	if p.isClientRole() {
		p.handleServerHandshakeResponse(payload)
	} else {
		p.handleClientHandshakeRequest(payload)
	}
}
