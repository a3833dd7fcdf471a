package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestDeduplicates(t *testing.T) {
	r := NewRequest(3, 1, 3, 2, 1)
	assert.Equal(t, []KeyID{3, 1, 2}, r.IDs())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "3,1,2", r.Join())
	assert.True(t, NewRequest().Empty())

	ids := r.IDs()
	ids[0] = 99
	assert.Equal(t, KeyID(3), r.IDs()[0])
}

func TestParseKeyIDs(t *testing.T) {
	ids, err := ParseKeyIDs(" 1, 2,,30 ")
	require.NoError(t, err)
	assert.Equal(t, []KeyID{1, 2, 30}, ids)

	_, err = ParseKeyIDs("1,x")
	assert.Error(t, err)
}

func TestRequestChunks(t *testing.T) {
	r := NewRequest(1, 2, 3, 4, 5)

	assert.Len(t, r.Chunks(StreamParam, 0), 1)
	assert.Len(t, r.Chunks(StreamParam, 6000), 1)

	// "key_ids=" + "1%2C2" is 13 bytes.
	chunks := r.Chunks(StreamParam, 13)
	require.Len(t, chunks, 3)
	assert.Equal(t, []KeyID{1, 2}, chunks[0].IDs())
	assert.Equal(t, []KeyID{3, 4}, chunks[1].IDs())
	assert.Equal(t, []KeyID{5}, chunks[2].IDs())

	// An id larger than the budget still gets a chunk of its own.
	big := NewRequest(123456789, 987654321)
	assert.Len(t, big.Chunks(StreamParam, 5), 2)
}

func TestRequestChunksCoverEverything(t *testing.T) {
	var ids []KeyID
	for i := 1; i <= 2000; i++ {
		ids = append(ids, KeyID(i*7919))
	}
	r := NewRequest(ids...)

	var joined []string
	total := 0
	for _, c := range r.Chunks(StreamParam, 600) {
		q := StreamParam + "=" + strings.ReplaceAll(c.Join(), ",", "%2C")
		assert.LessOrEqual(t, len(q), 600)
		joined = append(joined, c.Join())
		total += c.Len()
	}
	assert.Equal(t, r.Len(), total)
	assert.Equal(t, r.Join(), strings.Join(joined, ","))
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    Event
		wantErr bool
	}{
		{"progress", `{"processed":1,"total":3,"percent":33}`, Progress(1, 3, 33), false},
		{"progress with other status", `{"status":"running","processed":2,"total":3,"percent":66.7}`, Progress(2, 3, 67), false},
		{"progress without percent", `{"processed":2,"total":4}`, Progress(2, 4, 0), false},
		{"done", `{"status":"done","message":"验证完成"}`, Done("验证完成"), false},
		{"error", `{"status":"error","message":"密钥验证失败"}`, Failed("密钥验证失败"), false},
		{"not json", `processed=1`, Event{}, true},
		{"missing total", `{"processed":1}`, Event{}, true},
		{"array", `[1,2,3]`, Event{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.data))
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedEvent))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
