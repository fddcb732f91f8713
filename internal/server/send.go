package server

import (
	"fmt"

	"github.com/netframe/coreengine/internal/pipeline"
)

// SendMessage implements §4.E's send_* target selection for Message-mode
// sends: empty id broadcasts to every session (first-failure-stops, the
// spec's original semantics); a non-empty id unicasts, additionally
// matching sub_id when given.
func (a *Acceptor) SendMessage(message, id, subID string) error {
	for _, s := range a.snapshot() {
		if !matches(s, id, subID) {
			continue
		}
		if err := s.pipe.SendMessage(message); err != nil {
			return fmt.Errorf("server: send message to %s/%s: %w", s.id(), s.subID(), err)
		}
	}
	return nil
}

// SendBinary is SendMessage's Binary-mode counterpart.
func (a *Acceptor) SendBinary(message string, data []byte, id, subID string) error {
	for _, s := range a.snapshot() {
		if !matches(s, id, subID) {
			continue
		}
		if err := s.pipe.SendBinary(message, data); err != nil {
			return fmt.Errorf("server: send binary to %s/%s: %w", s.id(), s.subID(), err)
		}
	}
	return nil
}

// SendFiles starts a file bundle on every session matching (id, subID),
// returning the first failure to start a bundle (the files themselves
// send asynchronously per-session; see pipeline.Pipeline.SendFiles).
func (a *Acceptor) SendFiles(files []pipeline.FileToSend, id, subID string) error {
	for _, s := range a.snapshot() {
		if !matches(s, id, subID) {
			continue
		}
		if _, err := s.pipe.SendFiles(files); err != nil {
			return fmt.Errorf("server: send files to %s/%s: %w", s.id(), s.subID(), err)
		}
	}
	return nil
}

// Broadcast sends message to every registered session, stopping and
// returning the first failure (a session not yet Confirmed is such a
// failure) — the spec's original §4.E broadcast
// semantics, preserved for callers that need "all or abort".
func (a *Acceptor) Broadcast(message string) error {
	return a.SendMessage(message, "", "")
}

// BroadcastResult is one session's outcome from BroadcastBestEffort.
type BroadcastResult struct {
	ID    string
	SubID string
	Err   error
}

// BroadcastBestEffort sends message to every session regardless of
// earlier failures and returns every per-session outcome, the
// Open-Question-4 "best-effort all" alternative to Broadcast's
// first-failure-stops behavior.
func (a *Acceptor) BroadcastBestEffort(message string) []BroadcastResult {
	sessions := a.snapshot()
	results := make([]BroadcastResult, 0, len(sessions))
	for _, s := range sessions {
		err := s.pipe.SendMessage(message)
		results = append(results, BroadcastResult{ID: s.id(), SubID: s.subID(), Err: err})
	}
	return results
}
