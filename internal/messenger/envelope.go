// Package messenger delivers signed Dogecoin withdrawal transactions to the
// custodian network over libp2p gossipsub, backed by the ledger outbox for
// at-least-once delivery across restarts.
package messenger

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
)

// TxTopic is the gossipsub topic signed withdrawal transactions are
// published on.
const TxTopic = "/psybridge/doge-tx/1"

// Envelope is the wire format of one withdrawal transaction broadcast.
type Envelope struct {
	Nonce   uint32        `json:"nonce"`
	Sighash hexutil.Bytes `json:"sighash"`
	TxBytes hexutil.Bytes `json:"tx_bytes"`
}

// EncodeEnvelope serializes a broadcast envelope.
func EncodeEnvelope(nonce uint32, sighash merkle.Hash, txBytes []byte) ([]byte, error) {
	env := Envelope{
		Nonce:   nonce,
		Sighash: sighash[:],
		TxBytes: txBytes,
	}
	return json.Marshal(&env)
}

// DecodeEnvelope parses a broadcast envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if len(env.Sighash) != 32 {
		return nil, fmt.Errorf("envelope sighash is %d bytes, want 32", len(env.Sighash))
	}
	if len(env.TxBytes) == 0 {
		return nil, fmt.Errorf("envelope carries no transaction bytes")
	}
	return &env, nil
}

// SighashOf returns the envelope's sighash as a fixed array.
func (e *Envelope) SighashOf() merkle.Hash {
	var h merkle.Hash
	copy(h[:], e.Sighash)
	return h
}
