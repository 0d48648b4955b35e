package monitoring

import (
	"net/http"
	"time"

	"github.com/mezonai/dpos/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type TxRejectedReason string

var (
	TxInvalidSignature    TxRejectedReason = "invalid_signature"
	TxSenderNotExist      TxRejectedReason = "sender_not_exist"
	TxInvalidFee          TxRejectedReason = "invalid_fee"
	TxInsufficientBalance TxRejectedReason = "insufficient_balance"
	TxMempoolFull         TxRejectedReason = "mempool_full"
	TxDuplicated          TxRejectedReason = "duplicated"
	TxAlreadyConfirmed    TxRejectedReason = "already_confirmed"
	TxConflicting         TxRejectedReason = "conflicting"
	TxMalformed           TxRejectedReason = "malformed"
	TxSenderBlacklisted   TxRejectedReason = "sender_blacklisted"
	TxRejectedUnknown     TxRejectedReason = "other"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	mempoolSize       prometheus.Gauge
	blockTime         prometheus.Histogram
	rejectedTxCount   *prometheus.CounterVec
	rejectedBlocks    prometheus.Counter
	blockHeight       prometheus.Gauge
	txInBlock         prometheus.Histogram
	appliedBlocks     prometheus.Counter
	deletedBlocks     prometheus.Counter
	forkCount         *prometheus.CounterVec
	roundsFinished    prometheus.Counter
	missedBlocks      prometheus.Counter
	forgedBlocks      prometheus.Counter
	forgeFailures     prometheus.Counter
	consensus         prometheus.Gauge
	peerCount         prometheus.Gauge
	panicCount        prometheus.Counter
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		mempoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_node_mempool_size",
				Help: "The total unconfirmed transactions held in node's pool",
			},
		),
		blockTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "dpos_node_block_apply_seconds",
				Help: "Duration in second of applying one block to the ledger",
			},
		),
		rejectedTxCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpos_node_rejected_tx_count",
				Help: "The total number of rejected transactions",
			},
			[]string{"reason"},
		),
		rejectedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_rejected_block_count",
				Help: "The total number of blocks that failed verification",
			},
		),
		blockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_node_block_height",
				Help: "The current block height",
			},
		),
		txInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "dpos_node_tx_in_block",
				Help: "Number of tx in block",
			},
		),
		appliedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_applied_block_count",
				Help: "The total number of blocks applied to the ledger",
			},
		),
		deletedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_deleted_block_count",
				Help: "The total number of blocks rolled back from the tip",
			},
		),
		forkCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpos_node_fork_count",
				Help: "Fork notifications by fork type",
			},
			[]string{"type"},
		),
		roundsFinished: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_rounds_finished_count",
				Help: "The total number of rounds closed by this node",
			},
		),
		missedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_missed_block_count",
				Help: "The total number of delegate slots missed in closed rounds",
			},
		),
		forgedBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_forged_block_count",
				Help: "The total number of blocks forged by local delegates",
			},
		),
		forgeFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_forge_failure_count",
				Help: "The total number of forging attempts that failed",
			},
		),
		consensus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_node_broadhash_consensus_percent",
				Help: "Share of peers agreeing with the local broadhash",
			},
		),
		peerCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_node_peer_count",
				Help: "The total number of peers used for consensus",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_node_panic_count",
				Help: "The total number of recovered goroutine panics",
			},
		),
	}
}

var nodeMetrics = newNodePromMetrics()

// InitMetrics marks the node start time. Metrics are registered at package load.
func InitMetrics() {
	nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func SetMempoolSize(size int) {
	nodeMetrics.mempoolSize.Set(float64(size))
}

func RecordBlockTime(duration time.Duration) {
	nodeMetrics.blockTime.Observe(duration.Seconds())
}

func RecordRejectedTx(reason TxRejectedReason) {
	nodeMetrics.rejectedTxCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func IncreaseRejectedBlockCount() {
	nodeMetrics.rejectedBlocks.Inc()
}

func SetBlockHeight(blockHeight int64) {
	nodeMetrics.blockHeight.Set(float64(blockHeight))
}

func RecordTxInBlock(txCount int) {
	nodeMetrics.txInBlock.Observe(float64(txCount))
}

func IncreaseAppliedBlockCount() {
	nodeMetrics.appliedBlocks.Inc()
}

func IncreaseDeletedBlockCount() {
	nodeMetrics.deletedBlocks.Inc()
}

func RecordFork(forkType string) {
	nodeMetrics.forkCount.With(prometheus.Labels{
		"type": forkType,
	}).Inc()
}

func RecordRoundFinished(missed int) {
	nodeMetrics.roundsFinished.Inc()
	nodeMetrics.missedBlocks.Add(float64(missed))
}

func IncreaseForgedBlockCount() {
	nodeMetrics.forgedBlocks.Inc()
}

func IncreaseForgeFailureCount() {
	nodeMetrics.forgeFailures.Inc()
}

func SetConsensus(percent int) {
	nodeMetrics.consensus.Set(float64(percent))
}

func SetPeerCount(peers int) {
	nodeMetrics.peerCount.Set(float64(peers))
}

func IncreasePanicCount() {
	nodeMetrics.panicCount.Inc()
}
