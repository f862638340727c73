package decoder

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/catalog"
	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// txBuilder assembles synthetic wire transactions for tests.
type txBuilder struct {
	sigs      [][]byte
	versioned bool
	keys      [][]byte
	insts     []testInst
	lookups   []testLookup
}

type testInst struct {
	programIdx byte
	accounts   []byte
	data       []byte
}

type testLookup struct {
	table    []byte
	writable []byte
	readonly []byte
}

func key(fill byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = fill
	}
	return k
}

func sig(fill byte) []byte {
	s := make([]byte, 64)
	for i := range s {
		s[i] = fill
	}
	return s
}

func transferChecked(amount uint64) []byte {
	data := make([]byte, 10)
	data[0] = 12
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = 6
	return data
}

func (b *txBuilder) build(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, byte(len(b.sigs)))
	for _, s := range b.sigs {
		buf = append(buf, s...)
	}
	if b.versioned {
		buf = append(buf, 0x80)
	}
	buf = append(buf, 1, 0, 1) // header
	buf = append(buf, byte(len(b.keys)))
	for _, k := range b.keys {
		buf = append(buf, k...)
	}
	buf = append(buf, make([]byte, 32)...) // blockhash
	buf = append(buf, byte(len(b.insts)))
	for _, inst := range b.insts {
		buf = append(buf, inst.programIdx)
		buf = append(buf, byte(len(inst.accounts)))
		buf = append(buf, inst.accounts...)
		buf = append(buf, byte(len(inst.data)))
		buf = append(buf, inst.data...)
	}
	if b.versioned {
		buf = append(buf, byte(len(b.lookups)))
		for _, l := range b.lookups {
			buf = append(buf, l.table...)
			buf = append(buf, byte(len(l.writable)))
			buf = append(buf, l.writable...)
			buf = append(buf, byte(len(l.readonly)))
			buf = append(buf, l.readonly...)
		}
	}
	return buf
}

func programKey(t *testing.T) []byte {
	t.Helper()
	k, err := base58.Decode(catalog.TokenProgram)
	require.NoError(t, err)
	return k
}

func TestDecode_LegacyTransfer(t *testing.T) {
	payer := key(0x01)
	recipient := key(0x02)
	b := &txBuilder{
		sigs: [][]byte{sig(0x42)},
		keys: [][]byte{payer, key(0xaa), key(0xbb), recipient, programKey(t)},
		insts: []testInst{{
			programIdx: 4,
			accounts:   []byte{1, 2, 3},
			data:       transferChecked(750_000),
		}},
	}

	fact, err := New(nil).Decode(b.build(t), nil)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(payer), fact.Payer)
	assert.Equal(t, base58.Encode(recipient), fact.Recipient)
	assert.Equal(t, uint64(750_000), fact.Amount)
	assert.Equal(t, base58.Encode(sig(0x42)), fact.Signature)
	assert.NotEqual(t, [32]byte{}, fact.SignatureHash)
	assert.False(t, fact.ObservedAt.IsZero())
}

func TestDecode_VersionedWithLookupTables(t *testing.T) {
	payer := key(0x01)
	recipient := base58.Encode(key(0x02))
	table := key(0xcc)

	b := &txBuilder{
		versioned: true,
		sigs:      [][]byte{sig(0x42)},
		// Static keys: payer, source, mint, program. The destination comes
		// from the lookup table at resolved index 4.
		keys: [][]byte{payer, key(0xaa), key(0xbb), programKey(t)},
		insts: []testInst{{
			programIdx: 3,
			accounts:   []byte{1, 2, 4},
			data:       transferChecked(42),
		}},
		lookups: []testLookup{{table: table, writable: []byte{1}}},
	}
	tables := LookupTables{
		base58.Encode(table): {"unused-0", recipient},
	}

	fact, err := New(nil).Decode(b.build(t), tables)
	require.NoError(t, err)
	assert.Equal(t, recipient, fact.Recipient)
	assert.Equal(t, uint64(42), fact.Amount)
}

func TestDecode_WritableResolvesBeforeReadonly(t *testing.T) {
	payer := key(0x01)
	tableA := key(0xcc)
	tableB := key(0xdd)
	writableAddr := base58.Encode(key(0x02))
	readonlyAddr := base58.Encode(key(0x03))

	// Both tables contribute one address each; all writable indexes of all
	// tables must land before any readonly ones.
	b := &txBuilder{
		versioned: true,
		sigs:      [][]byte{sig(0x42)},
		keys:      [][]byte{payer, key(0xaa), key(0xbb), programKey(t)},
		insts: []testInst{{
			programIdx: 3,
			// Resolved layout: 0-3 static, 4 writable (tableB), 5 readonly (tableA).
			accounts: []byte{1, 2, 4},
			data:     transferChecked(7),
		}},
		lookups: []testLookup{
			{table: tableA, readonly: []byte{0}},
			{table: tableB, writable: []byte{0}},
		},
	}
	tables := LookupTables{
		base58.Encode(tableA): {readonlyAddr},
		base58.Encode(tableB): {writableAddr},
	}

	fact, err := New(nil).Decode(b.build(t), tables)
	require.NoError(t, err)
	assert.Equal(t, writableAddr, fact.Recipient)
}

func TestDecode_NoSignature(t *testing.T) {
	b := &txBuilder{
		keys: [][]byte{key(0x01)},
	}
	_, err := New(nil).Decode(b.build(t), nil)
	assert.True(t, errors.Is(err, contracts.ErrMalformedTransaction))
}

func TestDecode_Truncated(t *testing.T) {
	b := &txBuilder{
		sigs: [][]byte{sig(0x42)},
		keys: [][]byte{key(0x01), programKey(t)},
		insts: []testInst{{
			programIdx: 1,
			accounts:   []byte{0, 0, 0},
			data:       transferChecked(1),
		}},
	}
	raw := b.build(t)
	for _, cut := range []int{1, 10, 64, len(raw) / 2, len(raw) - 1} {
		_, err := New(nil).Decode(raw[:cut], nil)
		assert.True(t, errors.Is(err, contracts.ErrMalformedTransaction), "cut at %d", cut)
	}
}

func TestDecode_NoTransferInstruction(t *testing.T) {
	b := &txBuilder{
		sigs: [][]byte{sig(0x42)},
		keys: [][]byte{key(0x01), key(0x02)},
		insts: []testInst{{
			// Not a token program; must be skipped.
			programIdx: 1,
			accounts:   []byte{0, 0, 0},
			data:       transferChecked(9),
		}},
	}
	_, err := New(nil).Decode(b.build(t), nil)
	assert.True(t, errors.Is(err, contracts.ErrNoTransferInstruction))
}

func TestDecode_WrongOpcodeSkipped(t *testing.T) {
	data := transferChecked(9)
	data[0] = 3 // plain Transfer, not TransferChecked
	b := &txBuilder{
		sigs: [][]byte{sig(0x42)},
		keys: [][]byte{key(0x01), key(0x02), key(0x03), key(0x04), programKey(t)},
		insts: []testInst{{
			programIdx: 4,
			accounts:   []byte{1, 2, 3},
			data:       data,
		}},
	}
	_, err := New(nil).Decode(b.build(t), nil)
	assert.True(t, errors.Is(err, contracts.ErrNoTransferInstruction))
}

func TestDecode_MissingLookupTable(t *testing.T) {
	b := &txBuilder{
		versioned: true,
		sigs:      [][]byte{sig(0x42)},
		keys:      [][]byte{key(0x01), programKey(t)},
		insts: []testInst{{
			programIdx: 1,
			accounts:   []byte{0, 0, 2},
			data:       transferChecked(1),
		}},
		lookups: []testLookup{{table: key(0xcc), writable: []byte{0}}},
	}
	_, err := New(nil).Decode(b.build(t), nil)
	assert.True(t, errors.Is(err, contracts.ErrUnresolvableAccounts))
}

func TestDecode_LookupIndexOutOfRange(t *testing.T) {
	table := key(0xcc)
	b := &txBuilder{
		versioned: true,
		sigs:      [][]byte{sig(0x42)},
		keys:      [][]byte{key(0x01), programKey(t)},
		insts: []testInst{{
			programIdx: 1,
			accounts:   []byte{0, 0, 2},
			data:       transferChecked(1),
		}},
		lookups: []testLookup{{table: table, writable: []byte{5}}},
	}
	tables := LookupTables{base58.Encode(table): {"only-one"}}
	_, err := New(nil).Decode(b.build(t), tables)
	assert.True(t, errors.Is(err, contracts.ErrUnresolvableAccounts))
}

func TestDecode_Deterministic(t *testing.T) {
	b := &txBuilder{
		sigs: [][]byte{sig(0x42)},
		keys: [][]byte{key(0x01), key(0xaa), key(0xbb), key(0x02), programKey(t)},
		insts: []testInst{{
			programIdx: 4,
			accounts:   []byte{1, 2, 3},
			data:       transferChecked(100),
		}},
	}
	raw := b.build(t)
	d := New(nil)

	first, err := d.Decode(raw, nil)
	require.NoError(t, err)
	second, err := d.Decode(raw, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Signature, second.Signature)
	assert.Equal(t, first.SignatureHash, second.SignatureHash)
	assert.Equal(t, first.Payer, second.Payer)
	assert.Equal(t, first.Recipient, second.Recipient)
	assert.Equal(t, first.Amount, second.Amount)
}
