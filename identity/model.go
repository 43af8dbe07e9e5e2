package identity

import "github.com/pilacorp/go-did-gateway/feedback"

// SignRequest is either a MessageSignRequest or a FeedbackSignRequest.
type SignRequest interface {
	privateKey() string
}

// MessageSignRequest signs Message as-is.
type MessageSignRequest struct {
	PrivateKey string
	Message    string
}

func (r MessageSignRequest) privateKey() string { return r.PrivateKey }

// FeedbackSignRequest signs the canonical serialization of Feedback.
type FeedbackSignRequest struct {
	PrivateKey string
	Feedback   feedback.Payload
}

func (r FeedbackSignRequest) privateKey() string { return r.PrivateKey }

// Identity is a freshly generated account and its DID. The private key is
// returned exactly once and never stored.
type Identity struct {
	DID        string `json:"did"`
	Address    string `json:"address"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// SignResult is a signature together with the signer's identity and the
// exact string that was signed.
type SignResult struct {
	SignedMessage string `json:"signedMessage"`
	DID           string `json:"did"`
	Address       string `json:"address"`
	PublicKey     string `json:"publicKey"`
	Payload       string `json:"payload"`
}

// Verification is the outcome of a signature check.
type Verification struct {
	IsValid          bool   `json:"isValid"`
	RecoveredAddress string `json:"recoveredAddress"`
}

// Balance is an account balance in ether and wei.
type Balance struct {
	Address    string `json:"address"`
	Balance    string `json:"balance"`
	BalanceWei string `json:"balanceWei"`
}
