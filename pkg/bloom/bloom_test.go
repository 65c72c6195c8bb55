package bloom

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkli08/veloxdb/pkg/record"
)

func keyRecord(s string) record.Record {
	return record.New(record.StringKey(s), record.StringKey(""))
}

func TestNewRejectsZeroArgs(t *testing.T) {
	_, err := New(0, 10)
	assert.Error(t, err)

	_, err = New(10, 0)
	assert.Error(t, err)
}

func TestAddAndPossiblyContains(t *testing.T) {
	f, err := New(1024, 10)
	require.NoError(t, err)

	keys := []string{"apple", "banana", "cherry"}
	for _, k := range keys {
		f.Add(keyRecord(k))
	}

	for _, k := range keys {
		assert.True(t, f.PossiblyContains(keyRecord(k)), "no false negatives allowed")
	}
}

func TestNoFalseNegativesAcrossManyKeys(t *testing.T) {
	f, err := New(10000, 500)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		f.Add(keyRecord(fmt.Sprintf("key-%d", i)))
	}

	for i := 0; i < 500; i++ {
		assert.True(t, f.PossiblyContains(keyRecord(fmt.Sprintf("key-%d", i))))
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	f, err := New(2048, 50)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		f.Add(keyRecord(fmt.Sprintf("rt-%d", i)))
	}

	buf := f.Serialize()
	require.Equal(t, f.SerializedSize(), len(buf))

	got, err := Deserialize(buf)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		assert.True(t, got.PossiblyContains(keyRecord(fmt.Sprintf("rt-%d", i))))
	}
}

func TestDeserializeShortBufferFails(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	assert.Error(t, err)
}

// TestBloomSoundnessProperty is the §8 "Bloom soundness" property: for any
// key added to a filter, PossiblyContains is true. One-sided — false
// positives are allowed, false negatives are not.
func TestBloomSoundnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("every added key possibly-contains true", prop.ForAll(
		func(keys []string) bool {
			f, err := New(uint64(len(keys)*20+64), uint64(len(keys)+1))
			if err != nil {
				return false
			}
			for _, k := range keys {
				f.Add(keyRecord(k))
			}
			for _, k := range keys {
				if !f.PossiblyContains(keyRecord(k)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
