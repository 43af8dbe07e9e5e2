package chain

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"github.com/pilacorp/go-did-gateway/apperr"
)

// ErrTxFailed is returned when a mined transaction has a failed receipt status.
var ErrTxFailed = errors.New("transaction failed")

// revertCode is the JSON-RPC error code nodes use for execution reverts.
const revertCode = 3

var rejectionMarkers = []string{
	"execution reverted",
	"insufficient funds",
	"intrinsic gas too low",
	"gas required exceeds allowance",
	"exceeds block gas limit",
	"out of gas",
}

// FormatEther renders a wei amount as a decimal ether string.
// It always keeps at least one fractional digit: 0 is "0.0", 1.5 ether is "1.5".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}

	abs := new(big.Int).Abs(wei)
	whole, frac := new(big.Int).QuoRem(abs, big.NewInt(params.Ether), new(big.Int))

	fracStr := strings.TrimRight(leftPad(frac.String(), 18), "0")
	if fracStr == "" {
		fracStr = "0"
	}

	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
	}

	return sign + whole.String() + "." + fracStr
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

// IsRejection reports whether err means the chain refused the transaction,
// as opposed to the node being unreachable.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTxFailed) {
		return true
	}

	var rpcErr interface{ ErrorCode() int }
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// classifyTxError wraps a transaction error with its gateway kind.
func classifyTxError(err error, format string, args ...any) error {
	if IsRejection(err) {
		return apperr.Rejected(err, format, args...)
	}
	return apperr.External(err, format, args...)
}
