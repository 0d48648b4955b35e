package cmd

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mezonai/dpos/block"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/ids"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2016, 5, 24, 17, 0, 0, 0, time.UTC)

const testNetworkYML = `
network:
  active_delegates: 3
  block_time: 10
  fees:
    - height: 1
      send: 10
      vote: 20
      secondsignature: 30
      delegate: 40
genesis:
  secret: genesis secret
  delegates:
    - username: d1
      secret: d1 secret
      balance: 1000000
    - username: d2
      secret: d2 secret
      balance: 2000000
    - username: d3
      secret: d3 secret
      balance: 3000000
`

func writeNodeFiles(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	network := filepath.Join(dir, "network.yml")
	require.NoError(t, os.WriteFile(network, []byte(testNetworkYML), 0o600))
	dataDir := filepath.Join(dir, "data")
	ini := filepath.Join(dir, "node.ini")
	require.NoError(t, os.WriteFile(ini, []byte(`
[node]
data_dir = `+dataDir+`
db_type = bolt
network_config = `+network+`

[forging]
secrets = d1 secret,d2 secret,d3 secret
force = true
`), 0o600))
	return ini, dataDir
}

func TestOpenNodeBuildsGenesisOnce(t *testing.T) {
	ini, dataDir := writeNodeFiles(t)
	ctx := context.Background()

	n, err := openNode(ctx, ini, &utils.FixedClock{T: testEpoch})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n.ledger.Height())
	genesisID := n.ledger.LastBlock().ID
	require.NoError(t, n.Close())

	saved, err := block.LoadGenesis(filepath.Join(dataDir, "genesis.json"))
	require.NoError(t, err)
	assert.Equal(t, genesisID, saved.ID)

	n, err = openNode(ctx, ini, &utils.FixedClock{T: testEpoch})
	require.NoError(t, err)
	defer n.Close()
	assert.Equal(t, genesisID, n.ledger.LastBlock().ID)
}

func TestForgeThenTruncate(t *testing.T) {
	ini, _ := writeNodeFiles(t)
	ctx := context.Background()
	clock := &utils.FixedClock{T: testEpoch}

	n, err := openNode(ctx, ini, clock)
	require.NoError(t, err)
	for slot := 1; slot <= 3; slot++ {
		clock.T = testEpoch.Add(time.Duration(slot*10) * time.Second)
		require.NoError(t, n.scheduler.Forge(ctx))
	}
	assert.Equal(t, int64(4), n.ledger.Height())
	require.NoError(t, n.Close())

	require.NoError(t, truncateChain(ctx, ini, 2))

	n, err = openNode(ctx, ini, clock)
	require.NoError(t, err)
	defer n.Close()
	assert.Equal(t, int64(2), n.ledger.Height())
}

func TestBuildGenesisFileMatchesNode(t *testing.T) {
	ini, dataDir := writeNodeFiles(t)
	out := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, buildGenesisFile(filepath.Join(filepath.Dir(ini), "network.yml"), out))

	built, err := block.LoadGenesis(out)
	require.NoError(t, err)
	assert.Equal(t, int32(9), built.NumberOfTransactions)

	n, err := openNode(context.Background(), ini, &utils.FixedClock{T: testEpoch})
	require.NoError(t, err)
	defer n.Close()
	assert.Equal(t, built.ID, n.ledger.LastBlock().ID)
	assert.FileExists(t, filepath.Join(dataDir, "genesis.json"))
}

func TestKeysCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"keys", "--secret", "d1 secret"})
	require.NoError(t, rootCmd.Execute())

	kp := crypto.KeypairFromSecret("d1 secret")
	assert.Contains(t, out.String(), ids.AddressFromPubData(kp.PublicKey))
	assert.Contains(t, out.String(), kp.PublicKeyHex())

	out.Reset()
	keysSecret = ""
	rootCmd.SetArgs([]string{"keys", "--public-key", kp.PublicKeyHex()})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "address:    "+ids.AddressFromPubData(kp.PublicKey)+"\n", out.String())
	keysPublicKey = ""
}

func TestStopMetricsServerReportsShutdownError(t *testing.T) {
	var logs bytes.Buffer
	logx.SetOutput(&logs)
	t.Cleanup(func() { logx.SetOutput(logx.RotationWriter()) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	entered, unblock := make(chan struct{}), make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-unblock
	}), ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(ln) }()
	go func() {
		if resp, err := http.Get("http://" + ln.Addr().String()); err == nil {
			_ = resp.Body.Close()
		}
	}()
	<-entered
	defer close(unblock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = stopMetricsServer(ctx, srv)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, logs.String(), "Metrics server did not shut down cleanly")
}
