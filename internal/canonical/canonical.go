// Package canonical provides the versioned deterministic encoding shared by
// the deterministic plan engine and the Merkle ledger. Both leaf hashing and
// proof verification must run through this package; two encodings of the
// same value are byte-identical regardless of Go map iteration order.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/veradex/tradecore/internal/domain"
)

// Version tags the encoding format. It is part of the encoded bytes, so any
// future format change produces different hashes rather than silently
// breaking stored proofs.
const Version = "v1"

// Encode returns the canonical byte encoding of v: the format version,
// a separator, then JSON with all object keys sorted recursively.
func Encode(v any) ([]byte, error) {
	// Round-trip through encoding/json to collapse v into the generic
	// map/slice/float64 shape, then re-emit with sorted keys.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(Version)
	buf.WriteByte('|')
	if err := writeValue(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the SHA-256 digest of the canonical encoding of v.
func Hash(v any) ([]byte, error) {
	enc, err := Encode(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(enc)
	return sum[:], nil
}

// HashHex is Hash with a hex-encoded result.
func HashHex(v any) (string, error) {
	sum, err := Hash(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// writeValue emits one JSON value with sorted object keys. The keys of the
// actual object are sorted at every nesting level.
func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonical: key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonical: value: %w", err)
		}
		buf.Write(b)
		return nil
	}
}

// TradeLeaf returns the canonical Merkle leaf content for a trade. The field
// set and its encoding are load-bearing: changing either invalidates every
// proof over ledgers containing the trade.
func TradeLeaf(t domain.Trade) ([]byte, error) {
	return Encode(map[string]any{
		"id":        t.ID,
		"symbol":    t.Symbol,
		"side":      string(t.Side),
		"quantity":  t.Quantity,
		"price":     t.Price,
		"pnl":       t.PnL,
		"timestamp": t.Timestamp.UnixMilli(),
	})
}

// EmptyPeriodLeaf returns the synthetic leaf used when a snapshot covers a
// period with no trades, so the Merkle ledger is never built over zero
// leaves.
func EmptyPeriodLeaf(owner string, period domain.Period) ([]byte, error) {
	return Encode(map[string]any{
		"note":         "no-trades",
		"owner":        owner,
		"period_start": period.Start.UnixMilli(),
		"period_end":   period.End.UnixMilli(),
	})
}
