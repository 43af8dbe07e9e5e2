package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Payload is the signed content of a feedback.
//
// Field order is part of the wire contract: Canonical serializes the fields
// in declaration order and signatures are computed over those bytes.
type Payload struct {
	Message      string `json:"message"`
	SubmitterDID string `json:"submitterDid"`
	ReceiverDID  string `json:"receiverDid"`
	Rating       int    `json:"rating"`
}

// Canonical returns the exact byte sequence that is signed and verified:
// {"message":..,"submitterDid":..,"receiverDid":..,"rating":N}, without
// HTML escaping and without a trailing newline. U+2028 and U+2029 are
// emitted raw, matching JSON.stringify in browser wallets.
func (p Payload) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode feedback payload: %w", err)
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

var (
	escapedLS = []byte(`\u2028`)
	escapedPS = []byte(`\u2029`)
)

// unescapeLineSeparators rewrites the \u2028 and \u2029 escapes produced by
// encoding/json back into raw runes. Escapes are consumed pairwise so an
// escaped backslash followed by "u2028" is left alone.
func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, escapedLS[:5]) {
		return b
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			i++
			continue
		}
		switch {
		case bytes.HasPrefix(b[i:], escapedLS):
			out = utf8.AppendRune(out, '\u2028')
			i += len(escapedLS)
		case bytes.HasPrefix(b[i:], escapedPS):
			out = utf8.AppendRune(out, '\u2029')
			i += len(escapedPS)
		default:
			out = append(out, b[i], b[i+1])
			i += 2
		}
	}
	return out
}

// ValidUTF8 reports whether every text field is valid UTF-8. Invalid bytes
// would be replaced by U+FFFD when encoding, so the signed bytes would not be
// what the client sent.
func (p Payload) ValidUTF8() bool {
	return utf8.ValidString(p.Message) && utf8.ValidString(p.SubmitterDID) && utf8.ValidString(p.ReceiverDID)
}

// Missing reports whether any field is absent. A zero rating counts as absent.
func (p Payload) Missing() bool {
	return p.Message == "" || p.SubmitterDID == "" || p.ReceiverDID == "" || p.Rating == 0
}

// Submission is a signed feedback to be relayed on-chain.
type Submission struct {
	Payload
	Signature string `json:"signature"`
}

// Receipt is returned once a submission is confirmed.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	SubmitterDID    string `json:"submitterDid"`
	ReceiverDID     string `json:"receiverDid"`
	Message         string `json:"message"`
	Rating          int    `json:"rating"`
	Submitter       string `json:"submitter"`
}

// Record is one stored feedback.
type Record struct {
	Index        uint64 `json:"index"`
	Submitter    string `json:"submitter"`
	SubmitterDID string `json:"submitterDid"`
	ReceiverDID  string `json:"receiverDid"`
	Message      string `json:"message"`
	Rating       string `json:"rating"`
	Timestamp    string `json:"timestamp"`
}

// Reputation is the aggregate rating of a DID.
type Reputation struct {
	DID           string `json:"did"`
	TotalRating   string `json:"totalRating"`
	FeedbackCount string `json:"feedbackCount"`
	AverageRating string `json:"averageRating"`
}
