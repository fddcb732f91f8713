package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/netframe/coreengine/internal/codec"
	"github.com/netframe/coreengine/internal/protocol"
)

// sendClientHandshake pushes the client's Connection-mode handshake
// request (§4.C lifecycle step 1). Travels unencrypted: Connection
// frames always bypass encryption and, in any case, no session key
// exists yet at this point.
func (p *Pipeline) sendClientHandshake() error {
	req := protocol.HandshakeRequest{
		ID:            p.localID,
		SubID:         p.subID,
		RegisteredKey: p.opts.RegisteredKey,
		Condition:     true,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("pipeline: marshal handshake request: %w", err)
	}
	return p.enqueueWrite(protocol.ModeConnection, data)
}

// handleServerHandshakeResponse is the client side of the handshake:
// parse the server's response, absorb key/iv/encrypt_mode on success, or
// terminate on rejection (§4.C lifecycle step 2, §8 scenario 3).
func (p *Pipeline) handleServerHandshakeResponse(payload []byte) {
	var resp protocol.HandshakeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		p.logger.Error("pipeline: malformed handshake response: %v", err)
		p.terminate(true)
		return
	}
	if !resp.Condition {
		if p.handler != nil {
			p.handler.OnDispatch(Event{Kind: EventConnection, ID: p.localID, Confirmed: false, ByItself: true})
		}
		p.terminate(true)
		return
	}

	p.id.Store(resp.ID)
	p.subID = resp.SubID
	if resp.EncryptMode {
		key, err := decodeBase64(resp.Key)
		if err != nil {
			p.logger.Error("pipeline: malformed session key: %v", err)
			p.terminate(true)
			return
		}
		iv, err := decodeBase64(resp.IV)
		if err != nil {
			p.logger.Error("pipeline: malformed session iv: %v", err)
			p.terminate(true)
			return
		}
		p.installSessionKey(key, iv)
	}
	p.condition.advance(ConditionConfirmed)
	if p.handler != nil {
		p.handler.OnDispatch(Event{Kind: EventConnection, ID: p.id.Load(), SubID: p.subID, Confirmed: true})
	}
}

// handleClientHandshakeRequest is the server-session side: verify the
// registered key and, on success, negotiate a fresh session key/iv and
// respond Confirmed; on mismatch, respond rejected and terminate
// (§4.C lifecycle "server-session side", §7 "Auth").
func (p *Pipeline) handleClientHandshakeRequest(payload []byte) {
	var req protocol.HandshakeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		p.logger.Error("pipeline: malformed handshake request: %v", err)
		p.terminate(true)
		return
	}

	if req.RegisteredKey != p.opts.RegisteredKey {
		resp := protocol.HandshakeResponse{ID: p.localID, SubID: p.subID, Condition: false}
		_ = p.sendHandshakeResponse(resp)
		p.terminate(true)
		return
	}

	p.id.Store(req.ID)
	resp := protocol.HandshakeResponse{ID: p.localID, SubID: p.subID, Condition: true}
	if p.opts.EncryptMode {
		key, iv, err := codec.GenerateKeyIV()
		if err != nil {
			p.logger.Error("pipeline: generate session key: %v", err)
			p.terminate(true)
			return
		}
		p.installSessionKey(key, iv)
		resp.Key = encodeBase64(key)
		resp.IV = encodeBase64(iv)
		resp.EncryptMode = true
	}
	if err := p.sendHandshakeResponse(resp); err != nil {
		p.logger.Error("pipeline: send handshake response: %v", err)
		p.terminate(false)
		return
	}
	p.condition.advance(ConditionConfirmed)
	if p.handler != nil {
		p.handler.OnDispatch(Event{Kind: EventConnection, ID: p.id.Load(), SubID: p.subID, Confirmed: true})
	}
}

func (p *Pipeline) sendHandshakeResponse(resp protocol.HandshakeResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("pipeline: marshal handshake response: %w", err)
	}
	return p.enqueueWrite(protocol.ModeConnection, data)
}
