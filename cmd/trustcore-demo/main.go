// Command trustcore-demo exercises a trust core actor end to end: it
// loads or creates a local identity, opens a badger-backed persistence
// store, admits a small root-endorsement chain, saves it, exports a
// snapshot, and replays that snapshot into a second actor to confirm
// it reaches the same trust verdict. It is a development harness, not
// the node's production entry point — the core has no CLI surface of
// its own, per §6.
package main

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/juergengeck/trustcore/internal/config"
	"github.com/juergengeck/trustcore/pkg/actor"
	"github.com/juergengeck/trustcore/pkg/cryptocap"
	"github.com/juergengeck/trustcore/pkg/hashid"
	"github.com/juergengeck/trustcore/pkg/model"
	"github.com/juergengeck/trustcore/pkg/persistence"
	"github.com/juergengeck/trustcore/pkg/rootprovider"
	"github.com/juergengeck/trustcore/pkg/wire"
)

func main() {
	fmt.Println("Starting trustcore demo")

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Root set mode: %s\n", cfg.RootSetMode)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal(fmt.Sprintf("create data dir: %s", err))
	}

	cap, err := cryptocap.LoadOrCreate(cfg.DataDir)
	if err != nil {
		log.Fatal(fmt.Sprintf("load or create identity: %s", err))
	}

	rootPub, err := cap.LocalPublicKey()
	if err != nil {
		log.Fatal(fmt.Sprintf("read local public key: %s", err))
	}
	rootKeyID := cap.Hash(rootPub)

	roots := rootprovider.NewStaticProvider([]hashid.Hash{rootKeyID}, []hashid.Hash{rootKeyID})

	a := actor.New(cap, roots, actor.Config{QueueDepth: cfg.ActorQueueDepth}, nil)
	defer a.Close()

	a.RegisterKey(rootKeyID, rootPub)

	rootPerson, err := hashid.NewPersonID("root")
	if err != nil {
		log.Fatal(fmt.Sprintf("build root person id: %s", err))
	}

	rootProfile := &model.Profile{
		ProfileID: hashid.FromBytes([]byte("profile:" + rootPerson.String())),
		PersonID:  rootPerson,
		Owner:     rootPerson,
		Timestamp: 1,
		Keys:      []hashid.Hash{rootKeyID},
	}
	if err := a.AdmitProfile(rootProfile); err != nil {
		log.Fatal(fmt.Sprintf("admit root profile: %s", err))
	}

	endorsedPub, err := cap.GenerateKeypair()
	if err != nil {
		log.Fatal(fmt.Sprintf("generate endorsed keypair: %s", err))
	}
	endorsedKeyID := cap.Hash(endorsedPub)
	a.RegisterKey(endorsedKeyID, endorsedPub)

	trustPayload := wire.EncodeTrustKeysPayload(model.TrustKeysPayload{
		SignerPersonID: rootPerson,
		EndorsedKeyID:  endorsedKeyID,
	})
	cert, err := a.Certify(model.KindTrustKeys, trustPayload, 1)
	if err != nil {
		log.Fatal(fmt.Sprintf("certify trust keys: %s", err))
	}
	if err := a.AdmitCertificate(cert); err != nil {
		log.Fatal(fmt.Sprintf("admit certificate: %s", err))
	}

	verdict := a.IsKeyTrusted(endorsedKeyID)
	fmt.Printf("Endorsed key trusted: %v reason: %s\n", verdict.Trusted, verdict.Reason)

	store, err := persistence.Open(persistence.Config{
		Path:             cfg.DataDir + "/graph",
		MinimumFreeSpace: cfg.MinimumFreeSpaceGB,
	})
	if err != nil {
		log.Fatal(fmt.Sprintf("open persistence store: %s", err))
	}
	defer store.Close()

	if err := a.Save(store); err != nil {
		log.Fatal(fmt.Sprintf("save trust graph: %s", err))
	}
	fmt.Println("Saved trust graph")

	var snapshot bytes.Buffer
	if err := a.ExportSnapshot(&snapshot, true); err != nil {
		log.Fatal(fmt.Sprintf("export snapshot: %s", err))
	}
	fmt.Printf("Exported snapshot: %d compressed bytes\n", snapshot.Len())

	replica := actor.New(cap, roots, actor.Config{QueueDepth: cfg.ActorQueueDepth}, nil)
	defer replica.Close()
	replica.RegisterKey(rootKeyID, rootPub)
	replica.RegisterKey(endorsedKeyID, endorsedPub)

	result, err := replica.ImportSnapshot(&snapshot, true)
	if err != nil {
		log.Fatal(fmt.Sprintf("import snapshot: %s", err))
	}
	fmt.Printf("Imported snapshot into replica: %d certificates, %d profiles\n",
		result.CertificatesLoaded, result.ProfilesLoaded)

	replicaVerdict := replica.IsKeyTrusted(endorsedKeyID)
	fmt.Printf("Replica's verdict for the endorsed key: %v reason: %s\n",
		replicaVerdict.Trusted, replicaVerdict.Reason)
}
