package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/actorstate/internal/table"
)

func TestValidateBatchRejectsEmpty(t *testing.T) {
	v := NewValidator()
	err := v.ValidateBatch(nil)
	require.Error(t, err)
}

func TestValidateBatchRejectsOversizedBatch(t *testing.T) {
	v := NewValidatorWithLimits(256, 1024, 4096, 2)
	batch := []table.Entry{
		{Type: "actor", Key: "a", Value: []byte("1")},
		{Type: "actor", Key: "b", Value: []byte("2")},
		{Type: "actor", Key: "c", Value: []byte("3")},
	}
	err := v.ValidateBatch(batch)
	require.Error(t, err)
}

func TestValidateBatchAcceptsValidEntries(t *testing.T) {
	v := NewValidator()
	batch := []table.Entry{
		{Type: "actor", Key: "a1", Value: []byte("v1")},
		{Type: "actor", Key: "a2", IsDelete: true},
	}
	assert.NoError(t, v.ValidateBatch(batch))
}

func TestValidateEntryRejectsEmptyType(t *testing.T) {
	v := NewValidator()
	err := v.ValidateEntry(table.Entry{Type: "", Key: "a", Value: []byte("v")})
	require.Error(t, err)
}

func TestValidateEntryRejectsEmptyKey(t *testing.T) {
	v := NewValidator()
	err := v.ValidateEntry(table.Entry{Type: "actor", Key: "", Value: []byte("v")})
	require.Error(t, err)
}

func TestValidateEntryAllowsNilValueOnDelete(t *testing.T) {
	v := NewValidator()
	err := v.ValidateEntry(table.Entry{Type: "actor", Key: "a", IsDelete: true})
	assert.NoError(t, err)
}

func TestValidateEntryRejectsOversizedValue(t *testing.T) {
	v := NewValidatorWithLimits(256, 1024, 8, 100)
	err := v.ValidateEntry(table.Entry{Type: "actor", Key: "a", Value: []byte("way too big for eight bytes")})
	require.Error(t, err)
}

func TestValidateKeyRejectsNullBytes(t *testing.T) {
	v := NewValidator()
	err := v.ValidateKey("a\x00b")
	require.Error(t, err)
}

func TestValidateKeyAllowsTabAndNewline(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateKey("a\tb\nc"))
}

func TestValidateKeyRejectsOtherControlCharacters(t *testing.T) {
	v := NewValidator()
	err := v.ValidateKey("a\x01b")
	require.Error(t, err)
}

func TestValidateAscendingSeqsAcceptsNonDecreasing(t *testing.T) {
	v := NewValidator()
	entries := []table.Entry{{Seq: 1}, {Seq: 1}, {Seq: 2}}
	assert.NoError(t, v.ValidateAscendingSeqs(entries))
}

func TestValidateAscendingSeqsRejectsOutOfOrder(t *testing.T) {
	v := NewValidator()
	entries := []table.Entry{{Seq: 2}, {Seq: 1}}
	err := v.ValidateAscendingSeqs(entries)
	require.Error(t, err)
}
