// Package decoder extracts verifiable payment facts from raw signed ledger
// transactions. It is pure: given the same buffer and lookup tables it
// always produces the same fact, and it never touches shared state.
package decoder

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/catalog"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

const (
	signatureLen = 64
	accountLen   = 32
	blockhashLen = 32

	// transferCheckedOp is the token-program instruction tag for a
	// transfer that carries an explicit amount and decimals check.
	transferCheckedOp = 12

	// versionFlag marks a version-addressed message envelope.
	versionFlag = 0x80
)

// LookupTables maps a lookup-table address to its ordered account list.
// Tables live on the ledger; callers fetch and pass them in.
type LookupTables map[string][]string

// Decoder turns raw transaction buffers into TransactionFacts. The catalog
// supplies the token program identifiers it recognizes.
type Decoder struct {
	catalog *catalog.Catalog
	now     func() time.Time
}

// New creates a decoder backed by the given reference catalog.
func New(cat *catalog.Catalog) *Decoder {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Decoder{catalog: cat, now: time.Now}
}

type instruction struct {
	programIdx uint8
	accounts   []uint8
	data       []byte
}

// Decode deserializes a signed transaction, resolves its account list, and
// extracts the payment fact backing a receipt.
func (d *Decoder) Decode(raw []byte, tables LookupTables) (*contracts.TransactionFact, error) {
	r := &reader{buf: raw}

	sigCount, err := r.shortvec()
	if err != nil {
		return nil, fmt.Errorf("%w: signature count: %v", contracts.ErrMalformedTransaction, err)
	}
	if sigCount == 0 {
		return nil, fmt.Errorf("%w: no signature present", contracts.ErrMalformedTransaction)
	}
	sigs := make([][]byte, 0, sigCount)
	for i := 0; i < sigCount; i++ {
		sig, err := r.take(signatureLen)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated signature %d", contracts.ErrMalformedTransaction, i)
		}
		sigs = append(sigs, sig)
	}

	versioned := false
	prefix, err := r.peek()
	if err != nil {
		return nil, fmt.Errorf("%w: empty message", contracts.ErrMalformedTransaction)
	}
	if prefix&versionFlag != 0 {
		versioned = true
		r.skip(1)
	}

	// Message header: required signatures, readonly signed, readonly unsigned.
	if _, err := r.take(3); err != nil {
		return nil, fmt.Errorf("%w: truncated header", contracts.ErrMalformedTransaction)
	}

	keyCount, err := r.shortvec()
	if err != nil {
		return nil, fmt.Errorf("%w: account key count: %v", contracts.ErrMalformedTransaction, err)
	}
	keys := make([]string, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		key, err := r.take(accountLen)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated account key %d", contracts.ErrMalformedTransaction, i)
		}
		keys = append(keys, base58.Encode(key))
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no account keys", contracts.ErrMalformedTransaction)
	}

	if _, err := r.take(blockhashLen); err != nil {
		return nil, fmt.Errorf("%w: truncated blockhash", contracts.ErrMalformedTransaction)
	}

	instCount, err := r.shortvec()
	if err != nil {
		return nil, fmt.Errorf("%w: instruction count: %v", contracts.ErrMalformedTransaction, err)
	}
	insts := make([]instruction, 0, instCount)
	for i := 0; i < instCount; i++ {
		inst, err := r.instruction()
		if err != nil {
			return nil, fmt.Errorf("%w: instruction %d: %v", contracts.ErrMalformedTransaction, i, err)
		}
		insts = append(insts, inst)
	}

	if versioned {
		resolved, err := d.resolveLookups(r, tables)
		if err != nil {
			return nil, err
		}
		keys = append(keys, resolved...)
	}

	feePayer := keys[0]

	recipient, amount, found := d.findTransfer(insts, keys)
	if !found {
		return nil, fmt.Errorf("%w: scanned %d instructions", contracts.ErrNoTransferInstruction, len(insts))
	}

	sig := sigs[0]
	return &contracts.TransactionFact{
		Signature:     base58.Encode(sig),
		SignatureHash: sha256.Sum256(sig),
		Payer:         feePayer,
		Recipient:     recipient,
		Amount:        amount,
		ObservedAt:    d.now().UTC(),
	}, nil
}

// resolveLookups expands address-table references into concrete addresses.
// Writable addresses of every table come before any readonly ones, matching
// the ledger's resolution order.
func (d *Decoder) resolveLookups(r *reader, tables LookupTables) ([]string, error) {
	lookupCount, err := r.shortvec()
	if err != nil {
		return nil, fmt.Errorf("%w: lookup count: %v", contracts.ErrMalformedTransaction, err)
	}

	type lookup struct {
		table    string
		writable []uint8
		readonly []uint8
	}
	lookups := make([]lookup, 0, lookupCount)
	for i := 0; i < lookupCount; i++ {
		key, err := r.take(accountLen)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated lookup table key", contracts.ErrMalformedTransaction)
		}
		writable, err := r.byteVec()
		if err != nil {
			return nil, fmt.Errorf("%w: lookup writable indexes: %v", contracts.ErrMalformedTransaction, err)
		}
		readonly, err := r.byteVec()
		if err != nil {
			return nil, fmt.Errorf("%w: lookup readonly indexes: %v", contracts.ErrMalformedTransaction, err)
		}
		lookups = append(lookups, lookup{table: base58.Encode(key), writable: writable, readonly: readonly})
	}

	resolve := func(table string, indexes []uint8) ([]string, error) {
		addrs, ok := tables[table]
		if !ok {
			return nil, fmt.Errorf("%w: table %s not provided", contracts.ErrUnresolvableAccounts, table)
		}
		out := make([]string, 0, len(indexes))
		for _, idx := range indexes {
			if int(idx) >= len(addrs) {
				return nil, fmt.Errorf("%w: index %d out of range for table %s", contracts.ErrUnresolvableAccounts, idx, table)
			}
			out = append(out, addrs[idx])
		}
		return out, nil
	}

	var writable, readonly []string
	for _, l := range lookups {
		w, err := resolve(l.table, l.writable)
		if err != nil {
			return nil, err
		}
		writable = append(writable, w...)
	}
	for _, l := range lookups {
		ro, err := resolve(l.table, l.readonly)
		if err != nil {
			return nil, err
		}
		readonly = append(readonly, ro...)
	}
	return append(writable, readonly...), nil
}

// findTransfer scans for the first transfer-with-amount-check instruction
// from a recognized token program. The destination is the third account
// reference and the amount is a little-endian u64 at payload offset 1.
func (d *Decoder) findTransfer(insts []instruction, keys []string) (recipient string, amount uint64, found bool) {
	for _, inst := range insts {
		if int(inst.programIdx) >= len(keys) {
			continue
		}
		if !d.catalog.IsTokenProgram(keys[inst.programIdx]) {
			continue
		}
		if len(inst.data) < 9 || inst.data[0] != transferCheckedOp {
			continue
		}
		if len(inst.accounts) < 3 {
			continue
		}
		destIdx := inst.accounts[2]
		if int(destIdx) >= len(keys) {
			continue
		}
		return keys[destIdx], binary.LittleEndian.Uint64(inst.data[1:9]), true
	}
	return "", 0, false
}

// reader walks a transaction buffer.
type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("need %d bytes, have %d", n, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) peek() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, fmt.Errorf("unexpected end of buffer")
	}
	return r.buf[r.off], nil
}

func (r *reader) skip(n int) { r.off += n }

// shortvec decodes the ledger's compact-u16 length encoding: 7 bits per
// byte, high bit is the continuation flag, at most 3 bytes.
func (r *reader) shortvec() (int, error) {
	value := 0
	for i := 0; i < 3; i++ {
		b, err := r.take(1)
		if err != nil {
			return 0, err
		}
		value |= int(b[0]&0x7f) << (7 * i)
		if b[0]&0x80 == 0 {
			return value, nil
		}
	}
	return 0, fmt.Errorf("compact-u16 overflow")
}

func (r *reader) byteVec() ([]uint8, error) {
	n, err := r.shortvec()
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, n)
	copy(out, b)
	return out, nil
}

func (r *reader) instruction() (instruction, error) {
	idx, err := r.take(1)
	if err != nil {
		return instruction{}, err
	}
	accounts, err := r.byteVec()
	if err != nil {
		return instruction{}, err
	}
	dataLen, err := r.shortvec()
	if err != nil {
		return instruction{}, err
	}
	data, err := r.take(dataLen)
	if err != nil {
		return instruction{}, err
	}
	inst := instruction{programIdx: idx[0], accounts: accounts}
	inst.data = make([]byte, dataLen)
	copy(inst.data, data)
	return inst, nil
}
