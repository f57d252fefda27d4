// Package engine wires the five subsystems, the ledger, identity, cache,
// and federation into one running node, and owns the cross-subsystem
// signal routing and scheduled sweeps that spec.md §2's data-flow diagram
// describes but no single subsystem package can own by itself.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/liminalvillage/integral-sub001/internal/cache"
	"github.com/liminalvillage/integral-sub001/internal/cds"
	"github.com/liminalvillage/integral-sub001/internal/cos"
	"github.com/liminalvillage/integral-sub001/internal/cryptosign"
	"github.com/liminalvillage/integral-sub001/internal/federation"
	"github.com/liminalvillage/integral-sub001/internal/frs"
	"github.com/liminalvillage/integral-sub001/internal/identity"
	"github.com/liminalvillage/integral-sub001/internal/itc"
	"github.com/liminalvillage/integral-sub001/internal/ledger"
	"github.com/liminalvillage/integral-sub001/internal/oad"
	"github.com/liminalvillage/integral-sub001/internal/storage/memory"
	"github.com/liminalvillage/integral-sub001/internal/storage/postgres"
	"github.com/liminalvillage/integral-sub001/pkg/config"
	"github.com/liminalvillage/integral-sub001/pkg/logging"
	"github.com/liminalvillage/integral-sub001/pkg/metrics"
)

// Engine bundles one node's worth of subsystem services. Every field is
// safe for concurrent use by the HTTP transport and the scheduler.
type Engine struct {
	NodeID string

	Ledger     *ledger.Ledger
	Identity   *identity.Service
	CDS        *cds.Service
	OAD        *oad.Service
	ITC        *itc.Service
	COS        *cos.Service
	FRS        *frs.Service
	Federation *federation.Service

	logger  *logging.Logger
	metrics *metrics.Metrics

	sqlDB *sql.DB // non-nil only when backed by postgres; kept for clean shutdown
}

// New wires an Engine from cfg. Storage backend is selected by
// cfg.Database.Driver ("memory" or "postgres"); the cache backend is
// selected by cache.FromConfig based on cfg.Cache.Addr.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*Engine, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.Global()
	}

	ledgerStore, sqlDB, err := openLedgerStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}

	signKey, err := nodeSigningKey(cfg.Node, logger)
	if err != nil {
		return nil, fmt.Errorf("load node signing key: %w", err)
	}

	valuationWindow, err := cache.FromConfig(ctx, cfg.Cache, 12)
	if err != nil {
		return nil, fmt.Errorf("build valuation cache: %w", err)
	}
	bandWindow, err := cache.FromConfig(ctx, cfg.Cache, 8)
	if err != nil {
		return nil, fmt.Errorf("build equivalence-band cache: %w", err)
	}

	nodeID := cfg.Node.ID
	l := ledger.New(nodeID, ledgerStore, logger, m)

	identityDir := memory.NewIdentityDirectory()
	identitySvc := identity.New(identityDir, cds.DefaultThresholds().WMax)
	if err := identitySvc.Register(ctx, identity.Member{
		ID: nodeID, PublicKey: signKey.Public(), Weight: 1.0,
	}); err != nil {
		return nil, fmt.Errorf("register node identity: %w", err)
	}

	cdsThresholds := cds.Thresholds{
		ConsensusThreshold:    cfg.Policy.ConsensusThreshold,
		MinConsensusThreshold: cfg.Policy.MinConsensusThreshold,
		ObjectionThreshold:    cfg.Policy.ObjectionThreshold,
		EscalationEnabled:     cfg.Policy.EscalationEnabled,
		WMax:                  cds.DefaultThresholds().WMax,
	}

	cdsSvc := cds.New(nodeID, memory.NewCDSStore(), l, logger, cdsThresholds, identitySvc)
	oadSvc := oad.New(nodeID, memory.NewOADStore(), l, logger, oad.DefaultEcoWeights(), oad.DefaultCertificationPolicy())
	cosCoeff := cos.DefaultBottleneckCoefficients()
	cosCoeff.BottleneckThreshold = cfg.Policy.BottleneckThreshold
	cosSvc := cos.New(nodeID, memory.NewCOSStore(), l, logger, cosCoeff)
	itcSvc := itc.New(nodeID, memory.NewITCStore(), l, logger, itc.DefaultWeightingPolicy(nodeID), itc.DefaultDecayRule(), bandWindow)
	frsSvc := frs.New(nodeID, memory.NewFRSStore(), l, logger, frs.DefaultDetectorThresholds(), frs.DefaultIndexCoefficients(), valuationWindow)
	fedSvc := federation.New(nodeID, memory.NewFederationStore(), l, logger, signKey, identitySvc)

	return &Engine{
		NodeID:     nodeID,
		Ledger:     l,
		Identity:   identitySvc,
		CDS:        cdsSvc,
		OAD:        oadSvc,
		ITC:        itcSvc,
		COS:        cosSvc,
		FRS:        frsSvc,
		Federation: fedSvc,
		logger:     logger,
		metrics:    m,
		sqlDB:      sqlDB,
	}, nil
}

// Close releases the underlying database connection, if any.
func (e *Engine) Close() error {
	if e.sqlDB != nil {
		return e.sqlDB.Close()
	}
	return nil
}

// lastSignalPacketID returns the most recently ledgered signal packet id
// for this node, or "" if none has been created yet.
func (e *Engine) lastSignalPacketID(ctx context.Context) (string, error) {
	entries, err := e.Ledger.Trail(ctx, ledger.Filter{EntryTypePrefix: "frs.signal_packet_created"})
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].RelatedIDs["packet_id"], nil
}

func openLedgerStore(ctx context.Context, cfg config.DatabaseConfig) (ledger.Store, *sql.DB, error) {
	if cfg.Driver != "postgres" {
		return memory.NewLedgerStore(), nil, nil
	}
	db, err := postgres.Open(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(db.DB); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return postgres.NewLedgerStore(db), db.DB, nil
}

// nodeSigningKey loads the node's Schnorr key following cfg.Node's
// precedence: an explicit hex PrivateKey wins, then a KeySeed stretched
// through HKDF (NodeConfig.KeySeed is salted with the node id so the same
// seed never yields the same key for two different nodes), and finally a
// fresh ephemeral key when neither is configured. An ephemeral key means
// federation envelopes signed by this process won't verify against any
// previously-announced key for this node id; fine for local development,
// not for a rejoining production node.
func nodeSigningKey(cfg config.NodeConfig, logger *logging.Logger) (cryptosign.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return cryptosign.ParsePrivateKeyHex(cfg.PrivateKey)
	}
	if cfg.KeySeed != "" {
		return cryptosign.DeriveKeyFromSeed([]byte(cfg.KeySeed), cfg.ID)
	}
	logger.WithFields(nil).Warn("no NODE_PRIVATE_KEY or NODE_KEY_SEED configured, generating ephemeral signing key")
	return cryptosign.GenerateKey()
}
