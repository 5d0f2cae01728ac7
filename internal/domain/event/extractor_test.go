package event

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := NewExtractor(ExtractorOptions{DecodeKeys: true})
	require.NoError(t, err)
	return ex
}

func TestLoadBatchFile(t *testing.T) {
	t.Parallel()

	batch, err := LoadBatchFile("testdata/example.json")
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "5b1c0a3e-7f0e-4b7e-9d0e-3c1f1d2a0001", batch.Records[0].MessageID)

	ex := newTestExtractor(t)
	first, err := ex.Objects(batch.Records[0].Body)
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{
		{Area: "q-bucket", Key: "eicar.txt"},
		{Area: "q-bucket", Key: "docs/read me.md"},
	}, first)

	second, err := ex.Objects(batch.Records[1].Body)
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{Area: "q-bucket", Key: "report(2).pdf"}}, second)
}

func TestExtractor_RawKeys(t *testing.T) {
	t.Parallel()

	ex, err := NewExtractor(ExtractorOptions{})
	require.NoError(t, err)
	refs, err := ex.Objects(`{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":"a+b"}}}]}`)
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{Area: "b", Key: "a+b"}}, refs)
}

func TestExtractor_UnwrapsFanoutEnvelope(t *testing.T) {
	t.Parallel()

	body := `{"Type":"Notification","Message":"{\"Records\":[{\"s3\":{\"bucket\":{\"name\":\"q\"},\"object\":{\"key\":\"x.bin\"}}}]}"}`
	refs, err := newTestExtractor(t).Objects(body)
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{Area: "q", Key: "x.bin"}}, refs)
}

func TestExtractor_TestEventYieldsNothing(t *testing.T) {
	t.Parallel()

	refs, err := newTestExtractor(t).Objects(`{"Service":"Amazon S3","Event":"s3:TestEvent"}`)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestExtractor_Errors(t *testing.T) {
	t.Parallel()

	ex := newTestExtractor(t)
	tests := map[string]string{
		"empty body":   "",
		"invalid json": "{not json",
		"missing key":  `{"Records":[{"s3":{"bucket":{"name":"q"},"object":{}}}]}`,
		"bad escape":   `{"Records":[{"s3":{"bucket":{"name":"q"},"object":{"key":"%zz"}}}]}`,
	}
	for name, body := range tests {
		_, err := ex.Objects(body)
		assert.Error(t, err, name)
	}

	_, err := ex.Objects("")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestExtractor_CustomExpression(t *testing.T) {
	t.Parallel()

	ex, err := NewExtractor(ExtractorOptions{Expression: "items[].{area: bucket, key: name}"})
	require.NoError(t, err)
	refs, err := ex.Objects(`{"items":[{"bucket":"in","name":"one"},{"bucket":"in","name":"two"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []ObjectRef{{Area: "in", Key: "one"}, {Area: "in", Key: "two"}}, refs)

	_, err = NewExtractor(ExtractorOptions{Expression: "Records[.bad"})
	assert.Error(t, err)
}

func TestExtractor_SharedAcrossGoroutines(t *testing.T) {
	t.Parallel()

	ex := newTestExtractor(t)
	assert.Equal(t, DefaultObjectExpression, ex.Expression())

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("obj-%d.bin", i)
			body := fmt.Sprintf(`{"Records":[{"s3":{"bucket":{"name":"q"},"object":{"key":%q}}}]}`, key)
			refs, err := ex.Objects(body)
			if err == nil && (len(refs) != 1 || refs[0].Key != key) {
				err = fmt.Errorf("unexpected refs %v", refs)
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}
