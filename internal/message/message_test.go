package message

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"

	"github.com/MBenz12/vault-x/internal/vaulterr"
)

func newKeys(n int) []solana.PublicKey {
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = solana.NewWallet().PublicKey()
	}
	return keys
}

func sampleMessage() *TransactionMessage {
	return &TransactionMessage{
		NumSigners:            2,
		NumWritableSigners:    1,
		NumWritableNonSigners: 1,
		AccountKeys:           newKeys(4),
		Instructions: []Instruction{
			{ProgramIDIndex: 3, AccountIndexes: []uint8{0, 1, 2}, Data: []byte{2, 0, 0, 0, 9}},
			{ProgramIDIndex: 3, AccountIndexes: []uint8{}, Data: []byte{}},
		},
	}
}

func TestPositionalClassification(t *testing.T) {
	m := sampleMessage()
	want := []Permission{WritableSigner, ReadonlySigner, WritableNonSigner, ReadonlyNonSigner}
	for i, p := range want {
		require.Equal(t, p, m.Permission(i), "index %d", i)
	}
	require.True(t, m.IsSigner(1))
	require.False(t, m.IsWritable(1))
	require.False(t, m.IsSigner(2))
	require.True(t, m.IsWritable(2))
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	require := require.New(t)
	raw, err := Encode(sampleMessage())
	require.NoError(err)

	decoded, err := Parse(raw)
	require.NoError(err)
	again, err := Encode(decoded)
	require.NoError(err)
	require.Equal(raw, again)

	require.Equal(len(raw), EncodedSize(decoded))
	n, err := MeasureEncoded(raw)
	require.NoError(err)
	require.Equal(len(raw), n)
}

func TestDecodeErrorsAreDistinctFromMalformed(t *testing.T) {
	require := require.New(t)
	raw, err := Encode(sampleMessage())
	require.NoError(err)

	for _, cut := range []int{0, 2, 5, 40, len(raw) - 1} {
		_, err := Decode(raw[:cut])
		require.ErrorIs(err, vaulterr.ErrMessageDecode, "cut at %d", cut)
		require.NotErrorIs(err, vaulterr.ErrMalformedMessage)

		_, err = MeasureEncoded(raw[:cut])
		require.ErrorIs(err, vaulterr.ErrMessageDecode, "measure cut at %d", cut)
	}

	_, err = Decode(append(append([]byte{}, raw...), 0))
	require.ErrorIs(err, vaulterr.ErrMessageDecode)

	bad := sampleMessage()
	bad.NumSigners = 5
	raw, err = Encode(bad)
	require.NoError(err)
	_, err = Decode(raw)
	require.NoError(err)
	_, err = Parse(raw)
	require.ErrorIs(err, vaulterr.ErrMalformedMessage)
	require.NotErrorIs(err, vaulterr.ErrMessageDecode)
}

func TestDecodeRejectsOversizedLengths(t *testing.T) {
	raw := []byte{0, 0, 0, 0xff, 0xff, 0xff, 0x7f}
	_, err := Decode(raw)
	require.ErrorIs(t, err, vaulterr.ErrMessageDecode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *TransactionMessage)
		ok     bool
	}{
		{"valid", func(m *TransactionMessage) {}, true},
		{"signers exceed keys", func(m *TransactionMessage) { m.NumSigners = 5 }, false},
		{"writable signers exceed signers", func(m *TransactionMessage) { m.NumWritableSigners = 3 }, false},
		{"writable non-signers exceed remainder", func(m *TransactionMessage) { m.NumWritableNonSigners = 3 }, false},
		{"all non-signers writable", func(m *TransactionMessage) { m.NumWritableNonSigners = 2 }, true},
		{"program index out of range", func(m *TransactionMessage) { m.Instructions[0].ProgramIDIndex = 4 }, false},
		{"account index out of range", func(m *TransactionMessage) { m.Instructions[1].AccountIndexes = []uint8{9} }, false},
		{"empty message", func(m *TransactionMessage) {
			*m = TransactionMessage{}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleMessage()
			tt.mutate(m)
			err := m.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, vaulterr.ErrMalformedMessage)
		})
	}
}

func TestValidateAccounts(t *testing.T) {
	m := sampleMessage()
	fund := m.AccountKeys[0]
	ephemeral := m.AccountKeys[1]

	good := func() []*solana.AccountMeta {
		return []*solana.AccountMeta{
			solana.NewAccountMeta(m.AccountKeys[0], true, true),
			solana.NewAccountMeta(m.AccountKeys[1], false, true),
			solana.NewAccountMeta(m.AccountKeys[2], true, false),
			solana.NewAccountMeta(m.AccountKeys[3], false, false),
		}
	}

	tests := []struct {
		name       string
		accounts   func() []*solana.AccountMeta
		fund       solana.PublicKey
		ephemerals []solana.PublicKey
		ok         bool
	}{
		{"exact", good, solana.PublicKey{}, nil, true},
		{"extra permissions are fine", func() []*solana.AccountMeta {
			a := good()
			a[3].IsWritable = true
			return a
		}, solana.PublicKey{}, nil, true},
		{"too few", func() []*solana.AccountMeta { return good()[:3] }, solana.PublicKey{}, nil, false},
		{"too many", func() []*solana.AccountMeta {
			return append(good(), solana.NewAccountMeta(solana.NewWallet().PublicKey(), false, false))
		}, solana.PublicKey{}, nil, false},
		{"swapped order", func() []*solana.AccountMeta {
			a := good()
			a[2], a[3] = a[3], a[2]
			return a
		}, solana.PublicKey{}, nil, false},
		{"missing signer", func() []*solana.AccountMeta {
			a := good()
			a[1].IsSigner = false
			return a
		}, solana.PublicKey{}, nil, false},
		{"missing writable", func() []*solana.AccountMeta {
			a := good()
			a[2].IsWritable = false
			return a
		}, solana.PublicKey{}, nil, false},
		{"fund exempt from signer flag", func() []*solana.AccountMeta {
			a := good()
			a[0].IsSigner = false
			return a
		}, fund, nil, true},
		{"ephemeral exempt from signer flag", func() []*solana.AccountMeta {
			a := good()
			a[1].IsSigner = false
			return a
		}, solana.PublicKey{}, []solana.PublicKey{ephemeral}, true},
		{"fund still needs writable", func() []*solana.AccountMeta {
			a := good()
			a[0].IsSigner = false
			a[0].IsWritable = false
			return a
		}, fund, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateAccounts(tt.accounts(), tt.fund, tt.ephemerals)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, vaulterr.ErrAccountMismatch)
		})
	}
}

func TestCompileTransfer(t *testing.T) {
	require := require.New(t)
	fund := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	ix := system.NewTransferInstruction(1_000, fund, recipient).Build()
	m, err := Compile(fund, ix)
	require.NoError(err)

	require.Equal([]solana.PublicKey{fund, recipient, solana.SystemProgramID}, m.AccountKeys)
	require.EqualValues(1, m.NumSigners)
	require.EqualValues(1, m.NumWritableSigners)
	require.EqualValues(1, m.NumWritableNonSigners)
	require.Len(m.Instructions, 1)
	require.EqualValues(2, m.Instructions[0].ProgramIDIndex)
	require.Equal([]uint8{0, 1}, m.Instructions[0].AccountIndexes)

	data, err := ix.Data()
	require.NoError(err)
	require.Equal(data, m.Instructions[0].Data)

	metas := m.AccountMetas(fund)
	require.False(metas[0].IsSigner)
	require.True(metas[0].IsWritable)
	require.True(metas[1].IsWritable)
	require.NoError(m.ValidateAccounts(metas, fund, nil))
}
