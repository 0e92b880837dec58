package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loragw/gateway-agent/internal/entropy"
	"github.com/loragw/gateway-agent/internal/region"
)

func TestBeaconReportCarriesFields(t *testing.T) {
	remote := entropy.Entropy{Version: entropy.Version1, Data: []byte("remote-half"), Timestamp: time.Now()}
	local := entropy.Entropy{Version: entropy.Version1, Data: []byte("local-half"), Timestamp: time.Now()}
	b, err := New(remote, local, testParams())
	require.NoError(t, err)

	r := b.Report()
	require.Equal(t, b.Data[:], r.Data)
	require.Equal(t, b.Frequency, r.Frequency)
	require.Equal(t, DatarateString(b.Datarate), r.Datarate)
	require.Equal(t, b.ConductedPower, r.ConductedPower)
	require.Equal(t, remote.Data, r.RemoteEntropy)
	require.Equal(t, local.Data, r.LocalEntropy)
	require.Nil(t, r.Signature)
}

func TestWitnessReportCarriesFields(t *testing.T) {
	data := []byte("observed-beacon-bytes")
	dr := region.Datarate{SpreadingFactor: 9, Bandwidth: 500000}
	gw := []byte("gateway-pub-key")

	r := WitnessReport(data, 903100000, dr, -90, 5.5, gw)

	require.Equal(t, data, r.Data)
	require.Equal(t, uint32(903100000), r.Frequency)
	require.Equal(t, DatarateString(dr), r.Datarate)
	require.Equal(t, int32(-90), r.Rssi)
	require.Equal(t, float32(5.5), r.Snr)
	require.Equal(t, gw, r.Gateway)
	require.Nil(t, r.Signature)
}
