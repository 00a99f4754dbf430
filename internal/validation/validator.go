// Package validation checks entries and batches before they reach a
// StateTable's Prepare call. The table itself trusts its caller; this
// package is where an embedder puts the checks it wants enforced at that
// boundary.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	tableerr "github.com/devrev/actorstate/internal/errors"
	"github.com/devrev/actorstate/internal/table"
)

const (
	// MaxTypeSize bounds an entry's Type field.
	MaxTypeSize = 256
	// MaxKeySize bounds an entry's Key field.
	MaxKeySize = 1024
	// MaxValueSize bounds an entry's Value field.
	MaxValueSize = 4 * 1024 * 1024
	// MaxBatchEntries bounds the number of entries in a single Prepare
	// batch, so one replication group can't monopolize staging.
	MaxBatchEntries = 10000
)

// Validator validates entries and batches with a configurable set of
// limits. The zero value is not usable; construct with NewValidator or
// NewValidatorWithLimits.
type Validator struct {
	maxTypeSize     int
	maxKeySize      int
	maxValueSize    int
	maxBatchEntries int
}

// NewValidator returns a Validator using the package's default limits.
func NewValidator() *Validator {
	return &Validator{
		maxTypeSize:     MaxTypeSize,
		maxKeySize:      MaxKeySize,
		maxValueSize:    MaxValueSize,
		maxBatchEntries: MaxBatchEntries,
	}
}

// NewValidatorWithLimits returns a Validator using the given limits.
func NewValidatorWithLimits(maxTypeSize, maxKeySize, maxValueSize, maxBatchEntries int) *Validator {
	return &Validator{
		maxTypeSize:     maxTypeSize,
		maxKeySize:      maxKeySize,
		maxValueSize:    maxValueSize,
		maxBatchEntries: maxBatchEntries,
	}
}

// ValidateBatch validates every entry destined for a single Prepare call.
// An empty batch is rejected: Prepare requires at least one entry.
func (v *Validator) ValidateBatch(entries []table.Entry) error {
	if len(entries) == 0 {
		return tableerr.InvalidArgument("batch must contain at least one entry", nil)
	}
	if len(entries) > v.maxBatchEntries {
		return tableerr.InvalidArgument(
			fmt.Sprintf("batch has too many entries: %d > %d", len(entries), v.maxBatchEntries), nil)
	}
	for i, e := range entries {
		if err := v.ValidateEntry(e); err != nil {
			return tableerr.InvalidArgument(fmt.Sprintf("entry %d invalid", i), err)
		}
	}
	return nil
}

// ValidateEntry validates one entry's Type, Key, and Value.
func (v *Validator) ValidateEntry(e table.Entry) error {
	if err := v.ValidateType(e.Type); err != nil {
		return err
	}
	if err := v.ValidateKey(e.Key); err != nil {
		return err
	}
	if !e.IsDelete {
		if err := v.ValidateValue(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateType validates an entry's type discriminator.
func (v *Validator) ValidateType(typ string) error {
	if typ == "" {
		return tableerr.InvalidArgument("type cannot be empty", nil)
	}
	if len(typ) > v.maxTypeSize {
		return tableerr.InvalidArgument(fmt.Sprintf("type exceeds maximum size of %d bytes", v.maxTypeSize), nil)
	}
	if strings.Contains(typ, "\x00") {
		return tableerr.InvalidArgument("type cannot contain null bytes", nil)
	}
	return nil
}

// ValidateKey validates an entry's key.
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return tableerr.InvalidArgument("key cannot be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return tableerr.InvalidArgument(fmt.Sprintf("key exceeds maximum size of %d bytes", v.maxKeySize), nil)
	}
	for _, r := range key {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return tableerr.InvalidArgument("key cannot contain control characters", nil)
		}
	}
	if strings.Contains(key, "\x00") {
		return tableerr.InvalidArgument("key cannot contain null bytes", nil)
	}
	return nil
}

// ValidateValue validates a non-delete entry's value. Nil or empty values
// are allowed.
func (v *Validator) ValidateValue(value []byte) error {
	if value == nil {
		return nil
	}
	if len(value) > v.maxValueSize {
		return tableerr.InvalidArgument(fmt.Sprintf("value exceeds maximum size of %d bytes", v.maxValueSize), nil)
	}
	return nil
}

// ValidateAscendingSeqs checks that entries destined for ApplyMany (the
// secondary-replica catch-up path) arrive in non-decreasing seq order.
// StateTable itself does not enforce this on its own; a stream applying
// out-of-order entries would silently corrupt the committed view's
// ordering invariant. Limits play no part here, so this ignores the
// receiver's configured sizes and could equally be a free function; it
// stays a method so *Validator satisfies table.Validator as a whole.
func (v *Validator) ValidateAscendingSeqs(entries []table.Entry) error {
	var last uint64
	for i, e := range entries {
		if e.Seq < last {
			return tableerr.InvalidArgument(
				fmt.Sprintf("entry %d has seq %d out of order after %d", i, e.Seq, last), nil)
		}
		last = e.Seq
	}
	return nil
}
