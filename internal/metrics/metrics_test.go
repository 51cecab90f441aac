package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersAndSnapshot(t *testing.T) {
	m := New()
	m.IncReceived("HEARTBEAT")
	m.IncReceived("HEARTBEAT")
	m.IncSent("COMMAND_LONG")
	m.IncFailed("COMMAND_LONG")
	m.IncDropped("ATTITUDE")
	m.IncLinkOpened()
	m.IncLinkFaulted()

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap["received_frames"].(map[string]int64)["HEARTBEAT"])
	assert.Equal(t, int64(1), snap["sent_frames"].(map[string]int64)["COMMAND_LONG"])
	assert.Equal(t, int64(1), snap["failed_frames"].(map[string]int64)["COMMAND_LONG"])
	assert.Equal(t, int64(1), snap["dropped_frames"].(map[string]int64)["ATTITUDE"])
	assert.Equal(t, int64(1), snap["links_opened"])
	assert.Equal(t, int64(1), snap["links_faulted"])
}

func TestSnapshotIsDetached(t *testing.T) {
	m := New()
	m.IncSent("HEARTBEAT")
	snap := m.GetSnapshot()
	m.IncSent("HEARTBEAT")

	assert.Equal(t, int64(1), snap["sent_frames"].(map[string]int64)["HEARTBEAT"])
}
