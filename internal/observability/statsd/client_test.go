package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) net.PacketConn {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func readLine(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClientEmitsLines(t *testing.T) {
	t.Parallel()

	pc := listenUDP(t)
	client, err := NewClient(Config{
		Address: pc.LocalAddr().String(),
		Prefix:  " scanworker. ",
		Tags:    map[string]string{"env": "prod", " ": "dropped"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	client.Count("scan.verdict", 1, map[string]string{"status": " infected ", "env": "stage"})
	assert.Equal(t, "scanworker.scan.verdict:1|c|#env:stage,status:infected", readLine(t, pc))

	client.Timing("scan.duration", 1500*time.Microsecond, nil)
	assert.Equal(t, "scanworker.scan.duration:1.5|ms|#env:prod", readLine(t, pc))

	client.Gauge("worker.in_flight", 3, nil)
	assert.Equal(t, "scanworker.worker.in_flight:3|g|#env:prod", readLine(t, pc))
}

func TestClientCloseDropsLaterWrites(t *testing.T) {
	t.Parallel()

	pc := listenUDP(t)
	client, err := NewClient(Config{Address: pc.LocalAddr().String()})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	client.Count("ignored", 1, nil)

	var nilClient *Client
	nilClient.Count("ignored", 1, nil)
	require.NoError(t, nilClient.Close())
}

func TestNewClientErrors(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Address: "   "})
	require.Error(t, err)

	_, err = NewClient(Config{Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" job/metric ":       "job_metric",
		"foo..bar":           "foo.bar",
		".leading.":          "leading",
		"a:b|c":              "a_b_c",
		"worker.redelivered": "worker.redelivered",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanName(in), in)
	}
}

func TestFormatLine(t *testing.T) {
	t.Parallel()

	assert.Empty(t, formatLine("", "1", "c", nil))
	assert.Equal(t, "m:1|c", formatLine("m", "1", "c", nil))
	assert.Equal(t, "m:2|g|#a:1,b:2", formatLine("m", "2", "g", map[string]string{"b": "2", "a": "1"}))
}

func TestMergeTagsDoesNotMutateBase(t *testing.T) {
	t.Parallel()

	base := map[string]string{"env": "prod"}
	merged := mergeTags(base, map[string]string{"env": "stage", "": "x"})
	assert.Equal(t, map[string]string{"env": "stage"}, merged)
	assert.Equal(t, "prod", base["env"])
}

func TestRecorderNamed(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	rec.Count("a", 2, map[string]string{"k": "v"})
	rec.Timing("b", time.Second, nil)
	rec.Count("a", 1, nil)

	got := rec.Named("a")
	require.Len(t, got, 2)
	assert.InDelta(t, 2.0, got[0].Value, 0)
	assert.Equal(t, "v", got[0].Tags["k"])
	assert.InDelta(t, 1000.0, rec.Named("b")[0].Value, 0)
}
