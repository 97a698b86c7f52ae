// Benchmarks runs one reconciliation benchmark described by a parameter
// file: as both peers in-process, or as one side of a two-process pair
// coordinated through a lock file.
//
// Do not run multiple instances of -m server or -m client in the same
// directory at the same time; the lock-file handshake assumes one pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/nislab/gensync/internal/api"
	"github.com/nislab/gensync/internal/bench"
	"github.com/nislab/gensync/internal/db"
	"github.com/nislab/gensync/internal/metrics"
	"github.com/nislab/gensync/pkg/gensync"
	"github.com/nislab/gensync/pkg/models"
)

// lockFile signals that a split-mode server is ready; the client deletes
// it on observation.
const lockFile = ".cpisync_benchmarks_server_lock"

// lockPollInterval paces the client's wait for the server lock file.
const lockPollInterval = 100 * time.Millisecond

// Exit codes.
const (
	exitOK       = 0
	exitArgError = 1
	exitRuntime  = 2
	exitSyncFail = 3
)

type runningMode int

const (
	modeBoth runningMode = iota
	modeServer
	modeClient
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: benchmarks -p PARAMS_FILE [OPTIONS]

OPTIONS:
    -h print this message and exit
    -g generate synthetic sets instead of loading them from PARAMS_FILE
       (both mode only; server and client modes always use file data)
    -m MODE mode of operation ("server", "client", or "both")
    -r PEER_HOSTNAME host name of the peer (required when -m is client)
    -i CHUNK add elements incrementally in chunks of CHUNK (not in both mode)
`)
}

func main() {
	var (
		paramFile    string
		modeStr      string
		peerHostname string
		generateSets bool
		chunk        int
		help         bool
	)
	flag.StringVar(&paramFile, "p", "", "parameter file")
	flag.StringVar(&modeStr, "m", "both", "mode: server, client, or both")
	flag.StringVar(&peerHostname, "r", "", "peer hostname (client mode)")
	flag.BoolVar(&generateSets, "g", false, "generate synthetic sets")
	flag.IntVar(&chunk, "i", 0, "incremental add chunk size")
	flag.BoolVar(&help, "h", false, "print help")
	flag.Usage = usage
	flag.Parse()

	if help {
		usage()
		os.Exit(exitOK)
	}

	var mode runningMode
	switch modeStr {
	case "both":
		mode = modeBoth
	case "server":
		mode = modeServer
	case "client":
		mode = modeClient
	default:
		fmt.Fprintln(os.Stderr, "Invalid option for running mode.")
		usage()
		os.Exit(exitArgError)
	}

	// Combinations that make no sense.
	if paramFile == "" {
		fmt.Fprintln(os.Stderr, "You need to pass the parameters file.")
		usage()
		os.Exit(exitArgError)
	}
	if peerHostname == "" && mode == modeClient {
		fmt.Fprintln(os.Stderr, "When mode is client, you need to pass the hostname of the server.")
		usage()
		os.Exit(exitArgError)
	}
	if mode != modeBoth && generateSets {
		fmt.Fprintln(os.Stderr, "Sets can be generated only in both mode.")
		usage()
		os.Exit(exitArgError)
	}
	if chunk != 0 && mode == modeBoth {
		fmt.Fprintln(os.Stderr, "Incremental mode requires -m server or -m client.")
		usage()
		os.Exit(exitArgError)
	}

	log.Println("Starting gensync benchmark runner...")

	bp, err := bench.Load(paramFile)
	if err != nil {
		log.Printf("Loading %s: %v", paramFile, err)
		os.Exit(exitRuntime)
	}

	// The runner owns the one seeded randomness source in the process.
	seed := int64(1)
	if s := os.Getenv("SEED"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			seed = v
		}
	}
	rng := rand.New(rand.NewSource(seed))

	// Optional observation store and monitor, gated the same way the
	// engine config is everywhere: by environment.
	var store *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		store, err = db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting observations. Error: %v", err)
			store = nil
		} else {
			defer store.Close()
			if err := store.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	}
	var hub *api.Hub
	if port := os.Getenv("MONITOR_PORT"); port != "" {
		hub = api.NewHub()
		go hub.Run()
		router := api.SetupRouter(store, hub)
		go func() {
			if err := router.Run(":" + port); err != nil {
				log.Printf("Warning: monitor server stopped: %v", err)
			}
		}()
		log.Printf("Benchmark monitor listening on :%s", port)
	}

	observ := bench.NewBenchObserv(bp.Protocol.String(), bp.Params.String())

	code := exitOK
	switch mode {
	case modeBoth:
		code = runBoth(bp, rng, generateSets, observ)
	case modeServer:
		code = runServer(bp, rng, chunk, observ)
	case modeClient:
		code = runClient(bp, rng, peerHostname, chunk, observ)
	}

	fmt.Print(observ.String())
	if store != nil {
		if err := store.SaveObservation(context.Background(), observ); err != nil {
			log.Printf("Warning: persisting observation: %v", err)
		}
	}
	api.BroadcastObservation(hub, observ)

	os.Exit(code)
}

// newBuilder configures a builder from the loaded parameters.
func newBuilder(bp *bench.BenchParams, rng *rand.Rand) *gensync.Builder {
	b := gensync.NewBuilder()
	b.SetProtocol(bp.Protocol)
	b.SetComm(gensync.SocketComm)
	b.SetRng(rng)
	bp.Params.Apply(b)
	return b
}

// addAll feeds a generator into a session, optionally in chunks.
func addAll(g *gensync.GenSync, src bench.DataObjectGenerator, chunk int) int {
	added := 0
	for {
		d, ok := src.Produce()
		if !ok {
			break
		}
		g.AddElem(d)
		added++
		if chunk > 0 && added%chunk == 0 {
			log.Printf("Incrementally added %d elements", added)
		}
	}
	return added
}

// addWithReps adds an element with a Zipf-distributed repetition count.
func addWithReps(g *gensync.GenSync, z *bench.Zipf, d *models.DataObject) {
	for rep := 0; rep < z.Draw(bench.MaxCard/bench.RepRatio); rep++ {
		g.AddElem(d)
	}
}

// generatePair fills two sessions with synthetic Zipfian multisets and
// returns the ground-truth local element lists for accuracy evaluation.
func generatePair(a, b *gensync.GenSync, rng *rand.Rand) (aOnly, bOnly []*models.DataObject) {
	z := bench.NewZipf(rng, bench.ZipfAlpha)
	gen := bench.NewRandGen(rng, bench.MaxElem)

	common := bench.MaxCard*3/100 + rng.Intn(bench.MaxCard/2-bench.MaxCard*3/100)
	cardA, cardB := 0, 0
	for cardA < common+1 {
		cardA = 128 + rng.Intn(bench.MaxCard-128)
	}
	for cardB < common+1 {
		cardB = 128 + rng.Intn(bench.MaxCard-128)
	}
	log.Printf("Benchmarks generated sets:  Peer A: %d, Peer B: %d, Common: %d", cardA, cardB, common)

	seen := make(map[string]bool)
	draw := func() *models.DataObject {
		for {
			d, _ := gen.Produce()
			if !seen[d.Key()] {
				seen[d.Key()] = true
				return d
			}
		}
	}

	for i := 0; i < common; i++ {
		d := draw()
		addWithReps(a, z, d)
		addWithReps(b, z, d)
	}
	for i := 0; i < cardA-common; i++ {
		d := draw()
		addWithReps(a, z, d)
		aOnly = append(aOnly, d)
	}
	for i := 0; i < cardB-common; i++ {
		d := draw()
		addWithReps(b, z, d)
		bOnly = append(bOnly, d)
	}
	return aOnly, bOnly
}

// runBoth reconciles a server/client pair inside this process over an
// in-memory pipe.
func runBoth(bp *bench.BenchParams, rng *rand.Rand, generateSets bool, observ *bench.BenchObserv) int {
	clientComm, serverComm := gensync.NewPipePair()

	sb := newBuilder(bp, rng)
	sb.SetComm(gensync.PipeComm)
	sb.SetCommunicant(serverComm)
	server, err := sb.Build()
	if err != nil {
		log.Printf("Building server session: %v", err)
		return exitRuntime
	}

	cb := newBuilder(bp, rng)
	cb.SetComm(gensync.PipeComm)
	cb.SetCommunicant(clientComm)
	client, err := cb.Build()
	if err != nil {
		log.Printf("Building client session: %v", err)
		return exitRuntime
	}

	var aOnly, bOnly []*models.DataObject
	if generateSets {
		aOnly, bOnly = generatePair(server, client, rng)
	} else {
		addAll(server, bp.AElems, 0)
		addAll(client, bp.BElems, 0)
	}

	log.Println("Sets are ready, reconciliation starts...")

	var wg sync.WaitGroup
	var serverOK, clientOK bool
	var serverErr, clientErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverOK, serverErr = server.ServerSyncBegin(0)
	}()
	clientOK, clientErr = client.ClientSyncBegin(0)
	wg.Wait()

	recordOutcome(observ, server, client, serverOK, clientOK, serverErr, clientErr)

	if generateSets {
		if res := client.LastResult(0); res != nil {
			selfAcc := metrics.Evaluate(res.SelfMinusOther, bOnly)
			otherAcc := metrics.Evaluate(res.OtherMinusSelf, aOnly)
			log.Printf("Client accuracy: self-minus-other precision %.4f recall %.4f, other-minus-self precision %.4f recall %.4f",
				selfAcc.Precision(), selfAcc.Recall(), otherAcc.Precision(), otherAcc.Recall())
		}
	}

	if serverErr != nil || clientErr != nil {
		return exitSyncFail
	}
	return exitOK
}

// runServer runs the listening side and raises the lock file once ready.
func runServer(bp *bench.BenchParams, rng *rand.Rand, chunk int, observ *bench.BenchObserv) int {
	b := newBuilder(bp, rng)
	g, err := b.Build()
	if err != nil {
		log.Printf("Building server session: %v", err)
		return exitRuntime
	}
	addAll(g, bp.AElems, chunk)

	lock, err := os.Create(lockFile)
	if err != nil {
		log.Printf("Creating lock file: %v", err)
		return exitRuntime
	}
	lock.Close()

	ok, serr := g.ServerSyncBegin(0)
	observ.ServerStats = g.PrintStats(0)
	observ.ServerSuccess = ok
	if serr != nil {
		observ.ServerError = serr.Error()
		log.Printf("Sync exception: %v", serr)
		return exitSyncFail
	}
	return exitOK
}

// runClient waits for the server's lock file, removes it, and connects.
func runClient(bp *bench.BenchParams, rng *rand.Rand, peerHostname string, chunk int, observ *bench.BenchObserv) int {
	b := newBuilder(bp, rng)
	b.SetHost(peerHostname)
	g, err := b.Build()
	if err != nil {
		log.Printf("Building client session: %v", err)
		return exitRuntime
	}
	addAll(g, bp.AElems, chunk)

	waitMsgPrinted := false
	for {
		if _, err := os.Stat(lockFile); err == nil {
			if err := os.Remove(lockFile); err != nil {
				log.Printf("Warning: removing lock file: %v", err)
			}
			break
		}
		if !waitMsgPrinted {
			log.Println("Waiting for the server to create the lock file.")
			waitMsgPrinted = true
		}
		time.Sleep(lockPollInterval)
	}
	log.Println("Client detects that the server is ready to start.")

	ok, cerr := g.ClientSyncBegin(0)
	observ.ClientStats = g.PrintStats(0)
	observ.ClientSuccess = ok
	if cerr != nil {
		observ.ClientError = cerr.Error()
		log.Printf("Sync exception: %v", cerr)
		return exitSyncFail
	}
	return exitOK
}

func recordOutcome(observ *bench.BenchObserv, server, client *gensync.GenSync,
	serverOK, clientOK bool, serverErr, clientErr error) {
	observ.ServerStats = server.PrintStats(0)
	observ.ClientStats = client.PrintStats(0)
	observ.ServerSuccess = serverOK
	observ.ClientSuccess = clientOK
	if serverErr != nil {
		observ.ServerError = serverErr.Error()
		log.Printf("Sync Exception [server]: %v", serverErr)
	}
	if clientErr != nil {
		observ.ClientError = clientErr.Error()
		log.Printf("Sync Exception [client]: %v", clientErr)
	}
}
